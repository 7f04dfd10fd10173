// Package event holds the inbound chat event accepted by the ingestion pipeline.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/triage/internal/domain"
)

// MaxTextSize is the maximum accepted message text size in bytes.
const MaxTextSize = 40000

// Event is a single delivery from the chat platform (immutable value object).
type Event struct {
	externalID     string
	threadParentID string
	channel        string
	author         string
	text           string
	timestamp      time.Time
	botID          string
}

// New validates and creates an Event. ExternalID, Channel and Text are required;
// a zero timestamp is replaced with now.
func New(externalID, threadParentID, channel, author, text string, ts time.Time) (Event, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Event{}, fmt.Errorf("%w: external id is required", domain.ErrInvalidEvent)
	}
	if strings.TrimSpace(channel) == "" {
		return Event{}, fmt.Errorf("%w: channel is required", domain.ErrInvalidEvent)
	}
	if strings.TrimSpace(text) == "" {
		return Event{}, fmt.Errorf("%w: text is required", domain.ErrInvalidEvent)
	}
	if len(text) > MaxTextSize {
		return Event{}, fmt.Errorf("%w: text too large (max %d bytes)", domain.ErrInvalidEvent, MaxTextSize)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		externalID:     externalID,
		threadParentID: strings.TrimSpace(threadParentID),
		channel:        channel,
		author:         author,
		text:           text,
		timestamp:      ts.UTC(),
	}, nil
}

// WithBotID returns a copy marked as posted by a bot integration.
func (e Event) WithBotID(botID string) Event {
	e.botID = botID
	return e
}

// ExternalID returns the delivery-layer event id.
func (e Event) ExternalID() string { return e.externalID }

// ThreadParentID returns the parent event id for threaded replies, or "".
func (e Event) ThreadParentID() string { return e.threadParentID }

// Channel returns the channel the event was posted in.
func (e Event) Channel() string { return e.channel }

// Author returns the posting user.
func (e Event) Author() string { return e.author }

// Text returns the message body.
func (e Event) Text() string { return e.text }

// Timestamp returns the event time in UTC.
func (e Event) Timestamp() time.Time { return e.timestamp }

// BotID returns the bot integration id, or "" for human posts.
func (e Event) BotID() string { return e.botID }

// IsBot reports whether the event was posted by a bot.
func (e Event) IsBot() bool { return e.botID != "" }

// ParseSlackTS converts a Slack "1712345678.000200" timestamp into a time.Time.
func ParseSlackTS(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	var s, us int64
	if _, err := fmt.Sscanf(sec, "%d", &s); err != nil {
		return time.Time{}, fmt.Errorf("parse slack ts %q: %w", ts, err)
	}
	if frac != "" {
		frac = (frac + "000000")[:6]
		if _, err := fmt.Sscanf(frac, "%d", &us); err != nil {
			return time.Time{}, fmt.Errorf("parse slack ts %q: %w", ts, err)
		}
	}
	return time.Unix(s, us*int64(time.Microsecond)).UTC(), nil
}
