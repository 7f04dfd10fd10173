// Package notify fans out dashboard notifications to live subscribers.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a notification type.
type Kind string

// Notification kinds.
const (
	KindNewMessage    Kind = "new_message"
	KindIssueResolved Kind = "issue_resolved"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Notification is one dashboard update.
type Notification struct {
	Seq       int64     `json:"seq"`
	Kind      Kind      `json:"type"`
	IssueID   string    `json:"issue_id"`
	MessageID string    `json:"message_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Text      string    `json:"text,omitempty"`
	NewIssue  bool      `json:"new_issue,omitempty"`
	At        time.Time `json:"at"`
}

// Hub delivers notifications to subscribers. Sends never block: a subscriber
// whose buffer is full misses the notification and the drop is counted.
type Hub struct {
	mu      sync.RWMutex
	seq     int64
	subs    map[string]chan Notification
	buffer  int
	dropped int64
}

// NewHub creates a hub with DefaultBuffer per subscriber.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Notification), buffer: DefaultBuffer}
}

// WithBuffer sets the per-subscriber channel capacity.
func (h *Hub) WithBuffer(n int) *Hub {
	if n > 0 {
		h.buffer = n
	}
	return h
}

// Publish assigns the next sequence number and delivers n to every subscriber.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	n.Seq = h.seq
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	id := uuid.NewString()
	ch := make(chan Notification, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
