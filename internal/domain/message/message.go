// Package message holds the persisted chat message entity.
package message

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/label"
)

// Message is a relevant chat message assigned to an issue. Immutable once stored.
type Message struct {
	id             string
	externalID     string
	threadParentID string
	channel        string
	author         string
	text           string
	timestamp      time.Time
	classification label.Label
	confidence     float64
	relevant       bool
	vector         []float32
	issueID        string
}

// New builds a message from an event and its classification, assigned to issueID.
func New(ev event.Event, l label.Label, confidence float64, vector []float32, issueID string) Message {
	return Message{
		id:             uuid.NewString(),
		externalID:     ev.ExternalID(),
		threadParentID: ev.ThreadParentID(),
		channel:        ev.Channel(),
		author:         ev.Author(),
		text:           ev.Text(),
		timestamp:      ev.Timestamp(),
		classification: l,
		confidence:     clamp01(confidence),
		relevant:       true,
		vector:         vector,
		issueID:        issueID,
	}
}

// Reconstruct creates a Message without validation (storage hydration).
func Reconstruct(
	id, externalID, threadParentID, channel, author, text string, ts time.Time,
	classification label.Label, confidence float64, relevant bool, vector []float32, issueID string,
) Message {
	return Message{
		id: id, externalID: externalID, threadParentID: threadParentID, channel: channel,
		author: author, text: text, timestamp: ts, classification: classification,
		confidence: confidence, relevant: relevant, vector: vector, issueID: issueID,
	}
}

func (m *Message) ID() string                  { return m.id }
func (m *Message) ExternalID() string          { return m.externalID }
func (m *Message) ThreadParentID() string      { return m.threadParentID }
func (m *Message) Channel() string             { return m.channel }
func (m *Message) Author() string              { return m.author }
func (m *Message) Text() string                { return m.text }
func (m *Message) Timestamp() time.Time        { return m.timestamp }
func (m *Message) Classification() label.Label { return m.classification }
func (m *Message) Confidence() float64         { return m.confidence }
func (m *Message) IsRelevant() bool            { return m.relevant }
func (m *Message) Vector() []float32           { return m.vector }
func (m *Message) IssueID() string             { return m.issueID }

// WordCount returns the number of whitespace-separated words in the text.
func (m *Message) WordCount() int { return WordCount(m.text) }

// WordCount counts whitespace-separated words.
func WordCount(s string) int { return len(strings.Fields(s)) }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
