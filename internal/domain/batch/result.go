// Package batch holds per-event outcomes of a bulk ingestion request.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusStored  ItemStatus = "stored"
	StatusIgnored ItemStatus = "ignored" // duplicate or irrelevant
	StatusError   ItemStatus = "error"
)

// Result is the outcome of ingesting one event in a batch.
type Result struct {
	externalID string
	status     ItemStatus
	messageID  string
	issueID    string
	err        error
}

// NewStored creates a result for an event persisted as a message.
func NewStored(externalID, messageID, issueID string) Result {
	return Result{externalID: externalID, status: StatusStored, messageID: messageID, issueID: issueID}
}

// NewIgnored creates a result for a duplicate or irrelevant event.
func NewIgnored(externalID string) Result {
	return Result{externalID: externalID, status: StatusIgnored}
}

// NewError creates a failed batch result.
func NewError(externalID string, err error) Result {
	return Result{externalID: externalID, status: StatusError, err: err}
}

// ExternalID returns the event identifier.
func (r Result) ExternalID() string { return r.externalID }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// MessageID returns the stored message id, or "".
func (r Result) MessageID() string { return r.messageID }

// IssueID returns the issue the message joined, or "".
func (r Result) IssueID() string { return r.issueID }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
