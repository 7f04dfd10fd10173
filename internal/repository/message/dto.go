package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/triage/internal/domain/label"
	dommsg "github.com/kailas-cloud/triage/internal/domain/message"
)

// messageDoc is the JSON document stored at triage:message:<id>.
type messageDoc struct {
	ID             string    `json:"id"`
	ExternalID     string    `json:"external_id"`
	ThreadParentID string    `json:"thread_parent_id,omitempty"`
	Channel        string    `json:"channel"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	TS             int64     `json:"ts"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	IsRelevant     bool      `json:"is_relevant"`
	Vector         []float32 `json:"vector,omitempty"`
	IssueID        string    `json:"issue_id"`
}

func toDoc(m *dommsg.Message) messageDoc {
	return messageDoc{
		ID:             m.ID(),
		ExternalID:     m.ExternalID(),
		ThreadParentID: m.ThreadParentID(),
		Channel:        m.Channel(),
		Author:         m.Author(),
		Text:           m.Text(),
		TS:             m.Timestamp().UnixMilli(),
		Classification: m.Classification().String(),
		Confidence:     m.Confidence(),
		IsRelevant:     m.IsRelevant(),
		Vector:         m.Vector(),
		IssueID:        m.IssueID(),
	}
}

func (d messageDoc) toDomain() dommsg.Message {
	return dommsg.Reconstruct(
		d.ID, d.ExternalID, d.ThreadParentID, d.Channel, d.Author, d.Text,
		time.UnixMilli(d.TS).UTC(), label.Label(d.Classification), d.Confidence, d.IsRelevant,
		d.Vector, d.IssueID,
	)
}

func decodeDoc(raw []byte) (messageDoc, error) {
	var d messageDoc
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var docs []messageDoc
		if err := json.Unmarshal(raw, &docs); err != nil {
			return d, fmt.Errorf("unmarshal message: %w", err)
		}
		if len(docs) == 0 {
			return d, fmt.Errorf("unmarshal message: empty result")
		}
		return docs[0], nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("unmarshal message: %w", err)
	}
	return d, nil
}
