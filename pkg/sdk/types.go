package triage

import "time"

// Label is a message or issue classification.
type Label string

// Label constants.
const (
	LabelNone            Label = ""
	LabelBugReport       Label = "bug_report"
	LabelSupportQuestion Label = "support_question"
	LabelFeatureRequest  Label = "feature_request"
	LabelProductQuestion Label = "product_question"
	LabelIrrelevant      Label = "irrelevant"
)

// IssueStatus is the issue lifecycle state.
type IssueStatus string

// IssueStatus constants. An empty status in a list query matches both.
const (
	StatusOpen   IssueStatus = "open"
	StatusClosed IssueStatus = "closed"
)

// Event is one inbound chat message.
// ExternalID, Channel and Text are required; a zero Timestamp means now.
type Event struct {
	ExternalID     string
	ThreadParentID string
	Channel        string
	Author         string
	Text           string
	Timestamp      time.Time
}

// Message is a stored message assigned to an issue.
type Message struct {
	ID             string
	ExternalID     string
	ThreadParentID string
	Channel        string
	Author         string
	Text           string
	Timestamp      time.Time
	Classification Label
	Confidence     float64
	IssueID        string
}

// Issue is a cluster of related messages.
type Issue struct {
	ID             string
	Title          string
	Summary        string
	Classification Label
	Status         IssueStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IssuePage is one page of issues, most recently updated first.
type IssuePage struct {
	Issues []Issue
	Total  int
	Offset int
	Limit  int
}

// BatchStatus is the outcome kind of one batch item.
type BatchStatus string

// BatchStatus constants.
const (
	BatchStored  BatchStatus = "stored"
	BatchIgnored BatchStatus = "ignored"
	BatchError   BatchStatus = "error"
)

// BatchResult is the outcome of one event in IngestBatch.
type BatchResult struct {
	ExternalID string
	Status     BatchStatus
	MessageID  string
	IssueID    string
	Err        error
}

// NotificationKind distinguishes live notifications.
type NotificationKind string

// NotificationKind constants.
const (
	NotifyNewMessage    NotificationKind = "new_message"
	NotifyIssueResolved NotificationKind = "issue_resolved"
)

// Notification is a live change pushed to subscribers.
type Notification struct {
	Seq       int64
	Kind      NotificationKind
	IssueID   string
	MessageID string
	Channel   string
	Text      string
	NewIssue  bool
	At        time.Time
}
