package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/domain/label"
	"github.com/kailas-cloud/triage/internal/domain/message"
)

const messageColumns = `id, external_id, thread_parent_id, channel, author, text, ts,
	classification, confidence, is_relevant, vector, issue_id`

// SaveMessage inserts a message. A second message with the same external id
// fails with domain.ErrDuplicateMessage.
func (s *Store) SaveMessage(ctx context.Context, m *message.Message) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING
	`,
		m.ID(), m.ExternalID(), m.ThreadParentID(), m.Channel(), m.Author(), m.Text(),
		m.Timestamp().UnixMilli(), m.Classification().String(), m.Confidence(), m.IsRelevant(),
		vectorToBlob(m.Vector()), m.IssueID(),
	)
	if err != nil {
		return fmt.Errorf("saving message %s: %w", m.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving message %s: %w", m.ID(), err)
	}
	if n == 0 {
		return domain.ErrDuplicateMessage
	}
	return nil
}

// MessageByExternalID loads the message stored for an external id.
func (s *Store) MessageByExternalID(ctx context.Context, externalID string) (message.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE external_id = ?`, externalID)
	return oneMessage(row, "external id "+externalID)
}

// LatestInChannel returns the newest message in a channel, skipping the given external id.
func (s *Store) LatestInChannel(ctx context.Context, channel, excludeExternalID string) (message.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE channel = ? AND external_id <> ?
		ORDER BY ts DESC, rowid DESC
		LIMIT 1
	`, channel, excludeExternalID)
	return oneMessage(row, "channel "+channel)
}

// MessagesForIssue returns up to limit messages of an issue, oldest first.
func (s *Store) MessagesForIssue(ctx context.Context, issueID string, limit int) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE issue_id = ?
		ORDER BY ts ASC, rowid ASC
		LIMIT ?
	`, issueID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages for issue %s: %w", issueID, err)
	}
	defer rows.Close()

	var out []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

func oneMessage(row *sql.Row, what string) (message.Message, error) {
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return message.Message{}, domain.ErrMessageNotFound
		}
		return message.Message{}, fmt.Errorf("getting message by %s: %w", what, err)
	}
	return m, nil
}

func scanMessage(row scanner) (message.Message, error) {
	var (
		id, externalID, parentID, channel, author, text, classification, issueID string
		ts                                                                      int64
		confidence                                                              float64
		relevant                                                                bool
		vec                                                                     []byte
	)
	if err := row.Scan(&id, &externalID, &parentID, &channel, &author, &text, &ts,
		&classification, &confidence, &relevant, &vec, &issueID); err != nil {
		return message.Message{}, err
	}
	return message.Reconstruct(id, externalID, parentID, channel, author, text,
		time.UnixMilli(ts).UTC(), label.Label(classification), confidence, relevant,
		blobToVector(vec), issueID), nil
}
