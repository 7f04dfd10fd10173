package issue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/triage/internal/domain/label"
)

// Status is the issue lifecycle state.
type Status string

const (
	// StatusOpen is an issue still receiving messages.
	StatusOpen Status = "open"
	// StatusClosed is a resolved issue. Any new assignment reopens it.
	StatusClosed Status = "closed"
)

// MaxTitleRunes bounds the fallback title taken from message text.
const MaxTitleRunes = 50

// Issue is the cluster aggregate: a persistent group of related messages.
type Issue struct {
	id             string
	title          string
	summary        string
	classification label.Label
	status         Status
	vector         []float32
	metadataVector []float32
	createdAt      time.Time
	updatedAt      time.Time
}

// New creates an open issue with a fresh id. An empty title is replaced by
// the summary, then by a prefix of fallbackText.
func New(title, summary, fallbackText string, classification label.Label, now time.Time) (Issue, error) {
	title = draftTitle(title, summary, fallbackText)
	if title == "" {
		return Issue{}, fmt.Errorf("issue title is required")
	}
	now = now.UTC()
	return Issue{
		id:             uuid.NewString(),
		title:          title,
		summary:        summary,
		classification: classification,
		status:         StatusOpen,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstruct creates an Issue without validation (storage hydration).
func Reconstruct(
	id, title, summary string, classification label.Label, status Status,
	vector, metadataVector []float32, createdAt, updatedAt time.Time,
) Issue {
	return Issue{
		id: id, title: title, summary: summary, classification: classification, status: status,
		vector: vector, metadataVector: metadataVector, createdAt: createdAt, updatedAt: updatedAt,
	}
}

// ID returns the issue identifier.
func (i *Issue) ID() string { return i.id }

// Title returns the short display title.
func (i *Issue) Title() string { return i.title }

// Summary returns the classifier summary the issue was created from.
func (i *Issue) Summary() string { return i.summary }

// Classification returns the issue label, or label.None.
func (i *Issue) Classification() label.Label { return i.classification }

// Status returns the lifecycle state.
func (i *Issue) Status() Status { return i.status }

// Vector returns the representative (centroid) vector, or nil.
func (i *Issue) Vector() []float32 { return i.vector }

// MetadataVector returns the embedding of title and summary, or nil.
func (i *Issue) MetadataVector() []float32 { return i.metadataVector }

// CreatedAt returns the creation time.
func (i *Issue) CreatedAt() time.Time { return i.createdAt }

// UpdatedAt returns the time of the last assignment.
func (i *Issue) UpdatedAt() time.Time { return i.updatedAt }

// HasVector reports whether a centroid is present.
func (i *Issue) HasVector() bool { return len(i.vector) > 0 }

// MetadataText is the text embedded into the metadata vector.
func (i *Issue) MetadataText() string {
	return strings.TrimSpace(i.title + " " + i.summary)
}

// DraftMetadataText is MetadataText of the issue New would create from the
// same summary and fallback text.
func DraftMetadataText(summary, fallbackText string) string {
	return strings.TrimSpace(draftTitle("", summary, fallbackText) + " " + summary)
}

func draftTitle(title, summary, fallbackText string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	if title = strings.TrimSpace(summary); title != "" {
		return title
	}
	return Truncate(fallbackText, MaxTitleRunes)
}

// Touch records a new assignment: reopens, bumps updatedAt (never backwards)
// and overwrites the classification when the message carries a relevant label.
func (i *Issue) Touch(now time.Time, l label.Label) {
	i.status = StatusOpen
	if now = now.UTC(); now.After(i.updatedAt) {
		i.updatedAt = now
	}
	if !l.IsZero() && l != label.Irrelevant {
		i.classification = l
	}
}

// Close marks the issue resolved.
func (i *Issue) Close(now time.Time) {
	i.status = StatusClosed
	if now = now.UTC(); now.After(i.updatedAt) {
		i.updatedAt = now
	}
}

// SetVector sets the centroid in place.
func (i *Issue) SetVector(v []float32) { i.vector = v }

// SetMetadataVector sets the metadata vector in place.
func (i *Issue) SetMetadataVector(v []float32) { i.metadataVector = v }

// Truncate returns at most n runes of s, trimmed.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
