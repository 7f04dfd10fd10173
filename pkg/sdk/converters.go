package triage

import (
	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	"github.com/kailas-cloud/triage/internal/usecase/notify"
)

func toInternalEvent(ev Event) (event.Event, error) {
	return event.New(ev.ExternalID, ev.ThreadParentID, ev.Channel, ev.Author, ev.Text, ev.Timestamp)
}

func fromInternalMessage(m *message.Message) Message {
	return Message{
		ID:             m.ID(),
		ExternalID:     m.ExternalID(),
		ThreadParentID: m.ThreadParentID(),
		Channel:        m.Channel(),
		Author:         m.Author(),
		Text:           m.Text(),
		Timestamp:      m.Timestamp(),
		Classification: Label(m.Classification()),
		Confidence:     m.Confidence(),
		IssueID:        m.IssueID(),
	}
}

func fromInternalIssue(i *issue.Issue) Issue {
	return Issue{
		ID:             i.ID(),
		Title:          i.Title(),
		Summary:        i.Summary(),
		Classification: Label(i.Classification()),
		Status:         IssueStatus(i.Status()),
		CreatedAt:      i.CreatedAt(),
		UpdatedAt:      i.UpdatedAt(),
	}
}

func fromInternalBatchResult(r dombatch.Result) BatchResult {
	return BatchResult{
		ExternalID: r.ExternalID(),
		Status:     BatchStatus(r.Status()),
		MessageID:  r.MessageID(),
		IssueID:    r.IssueID(),
		Err:        r.Err(),
	}
}

func fromInternalNotification(n notify.Notification) Notification {
	return Notification{
		Seq:       n.Seq,
		Kind:      NotificationKind(n.Kind),
		IssueID:   n.IssueID,
		MessageID: n.MessageID,
		Channel:   n.Channel,
		Text:      n.Text,
		NewIssue:  n.NewIssue,
		At:        n.At,
	}
}
