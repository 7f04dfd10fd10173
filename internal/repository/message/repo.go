package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/triage/internal/db"
	"github.com/kailas-cloud/triage/internal/domain"
	dommsg "github.com/kailas-cloud/triage/internal/domain/message"
)

const (
	keyPrefix    = domain.KeyPrefix + "message:"
	extKeyPrefix = domain.KeyPrefix + "message_ext:"
	// IndexName is the FT index over message documents.
	IndexName = domain.KeyPrefix + "messages:idx"
)

// store is the consumer interface for messages (ISP).
//
//nolint:interfacebloat // message repo needs json + kv + index operations
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, q *db.Query) (*db.SearchResult, error)
}

// Repo stores messages as JSON documents with a unique external id.
type Repo struct {
	store store
}

// New creates a message repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func messageKey(id string) string     { return keyPrefix + id }
func externalKey(extID string) string { return extKeyPrefix + extID }

// IndexDefinition describes the messages index.
func IndexDefinition() *db.IndexDefinition {
	return db.NewIndex(IndexName).
		OnJSON().
		Prefix(keyPrefix).
		TagAs("$.channel", "channel").
		TagAs("$.external_id", "external_id").
		TagAs("$.issue_id", "issue_id").
		NumericAs("$.ts", "ts", true).
		MustBuild()
}

// EnsureIndex creates the messages index when it is missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check messages index: %w", err)
	}
	if exists {
		return nil
	}
	if err := r.store.CreateIndex(ctx, IndexDefinition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

// SaveMessage stores a message. A second message with the same external id
// fails with domain.ErrDuplicateMessage.
func (r *Repo) SaveMessage(ctx context.Context, m *dommsg.Message) error {
	data, err := json.Marshal(toDoc(m))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	extKey := externalKey(m.ExternalID())
	claimed, err := r.store.SetNX(ctx, extKey, []byte(m.ID()))
	if err != nil {
		return fmt.Errorf("claim external id %s: %w", m.ExternalID(), err)
	}
	if !claimed {
		return domain.ErrDuplicateMessage
	}

	if err := r.store.JSONSet(ctx, messageKey(m.ID()), "$", data); err != nil {
		// Release the claim so a retry can store the message.
		if delErr := r.store.Del(ctx, extKey); delErr != nil {
			return fmt.Errorf("save message %s: %w (rollback: %w)", m.ID(), err, delErr)
		}
		return fmt.Errorf("save message %s: %w", m.ID(), err)
	}
	return nil
}

// MessageByExternalID loads the message stored for an external id.
func (r *Repo) MessageByExternalID(ctx context.Context, externalID string) (dommsg.Message, error) {
	id, err := r.store.Get(ctx, externalKey(externalID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return dommsg.Message{}, domain.ErrMessageNotFound
		}
		return dommsg.Message{}, fmt.Errorf("resolve external id %s: %w", externalID, err)
	}
	return r.get(ctx, string(id))
}

// LatestInChannel returns the newest message in a channel, skipping the given external id.
func (r *Repo) LatestInChannel(ctx context.Context, channel, excludeExternalID string) (dommsg.Message, error) {
	query := db.TagEq("channel", channel)
	if excludeExternalID != "" {
		query = db.And(query, db.Not(db.TagEq("external_id", excludeExternalID)))
	}
	res, err := r.store.Search(ctx, &db.Query{
		IndexName:    IndexName,
		Query:        query,
		SortBy:       "ts",
		Descending:   true,
		Limit:        1,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return dommsg.Message{}, fmt.Errorf("latest in channel %s: %w", channel, err)
	}
	msgs, err := decodeEntries(res.Entries)
	if err != nil {
		return dommsg.Message{}, err
	}
	if len(msgs) == 0 {
		return dommsg.Message{}, domain.ErrMessageNotFound
	}
	return msgs[0], nil
}

// MessagesForIssue returns up to limit messages of an issue, oldest first.
func (r *Repo) MessagesForIssue(ctx context.Context, issueID string, limit int) ([]dommsg.Message, error) {
	res, err := r.store.Search(ctx, &db.Query{
		IndexName:    IndexName,
		Query:        db.TagEq("issue_id", issueID),
		SortBy:       "ts",
		Limit:        limit,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return nil, fmt.Errorf("messages for issue %s: %w", issueID, err)
	}
	return decodeEntries(res.Entries)
}

func (r *Repo) get(ctx context.Context, id string) (dommsg.Message, error) {
	raw, err := r.store.JSONGet(ctx, messageKey(id), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return dommsg.Message{}, domain.ErrMessageNotFound
		}
		return dommsg.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	d, err := decodeDoc(raw)
	if err != nil {
		return dommsg.Message{}, err
	}
	return d.toDomain(), nil
}

func decodeEntries(entries []db.SearchEntry) ([]dommsg.Message, error) {
	out := make([]dommsg.Message, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Fields["$"]
		if !ok {
			continue
		}
		d, err := decodeDoc([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, d.toDomain())
	}
	return out, nil
}
