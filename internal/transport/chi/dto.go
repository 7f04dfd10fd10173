package chi

import (
	"time"

	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/message"
	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	"github.com/kailas-cloud/triage/internal/version"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type eventRequest struct {
	ExternalID     string    `json:"external_id"`
	ThreadParentID string    `json:"thread_parent_id,omitempty"`
	Channel        string    `json:"channel"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

func (r eventRequest) toDomain() (event.Event, error) {
	return event.New(r.ExternalID, r.ThreadParentID, r.Channel, r.Author, r.Text, r.Timestamp) //nolint:wrapcheck // validation error carries the sentinel
}

type batchRequest struct {
	Events []eventRequest `json:"events"`
}

type batchItemResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	MessageID  string `json:"message_id,omitempty"`
	IssueID    string `json:"issue_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type batchResponse struct {
	Items     []batchItemResponse `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ExternalID     string    `json:"external_id"`
	ThreadParentID string    `json:"thread_parent_id,omitempty"`
	Channel        string    `json:"channel"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	IsRelevant     bool      `json:"is_relevant"`
	IssueID        string    `json:"issue_id"`
}

type issueResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Classification string    `json:"classification"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type issueListResponse struct {
	Items  []issueResponse `json:"items"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

type budgetResponse struct {
	Provider        string     `json:"provider"`
	TokensLimit     int64      `json:"tokens_limit"`
	TokensUsed      int64      `json:"tokens_used"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

type usageResponse struct {
	Period        string           `json:"period"`
	PeriodStartAt time.Time        `json:"period_start_at"`
	PeriodEndAt   time.Time        `json:"period_end_at"`
	TotalUsed     int64            `json:"total_used"`
	Budgets       []budgetResponse `json:"budgets"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	IndexSize int               `json:"index_size"`
	Version   string            `json:"version"`
}

// slackEnvelope is the Events API request body.
type slackEnvelope struct {
	Type      string     `json:"type"`
	Challenge string     `json:"challenge,omitempty"`
	Event     slackEvent `json:"event"`
}

type slackEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// toDomain maps a Slack message event. The ts doubles as the external id;
// thread_ts is only a parent when it points at another message.
func (e slackEvent) toDomain() (event.Event, error) {
	ts, err := event.ParseSlackTS(e.TS)
	if err != nil {
		ts = time.Time{}
	}
	parent := ""
	if e.ThreadTS != "" && e.ThreadTS != e.TS {
		parent = e.ThreadTS
	}
	ev, err := event.New(e.TS, parent, e.Channel, e.User, e.Text, ts)
	if err != nil {
		return event.Event{}, err //nolint:wrapcheck // validation error carries the sentinel
	}
	return ev.WithBotID(e.BotID), nil
}

func messageToResponse(m *message.Message) messageResponse {
	return messageResponse{
		ID:             m.ID(),
		ExternalID:     m.ExternalID(),
		ThreadParentID: m.ThreadParentID(),
		Channel:        m.Channel(),
		Author:         m.Author(),
		Text:           m.Text(),
		Timestamp:      m.Timestamp(),
		Classification: string(m.Classification()),
		Confidence:     m.Confidence(),
		IsRelevant:     m.IsRelevant(),
		IssueID:        m.IssueID(),
	}
}

func issueToResponse(iss *issue.Issue) issueResponse {
	return issueResponse{
		ID:             iss.ID(),
		Title:          iss.Title(),
		Summary:        iss.Summary(),
		Classification: string(iss.Classification()),
		Status:         string(iss.Status()),
		CreatedAt:      iss.CreatedAt(),
		UpdatedAt:      iss.UpdatedAt(),
	}
}

func batchResultToResponse(r dombatch.Result) batchItemResponse {
	item := batchItemResponse{
		ExternalID: r.ExternalID(),
		Status:     string(r.Status()),
		MessageID:  r.MessageID(),
		IssueID:    r.IssueID(),
	}
	if r.Err() != nil {
		item.Error = safeDomainMessage(r.Err())
	}
	return item
}

func usageToResponse(report domusage.Report) usageResponse {
	budgets := make([]budgetResponse, 0, len(report.Budgets()))
	for _, b := range report.Budgets() {
		br := budgetResponse{
			Provider:        b.Provider(),
			TokensLimit:     b.Limit(),
			TokensUsed:      b.Used(),
			TokensRemaining: b.Remaining(),
			IsExhausted:     b.IsExhausted(),
		}
		if !b.ResetsAt().IsZero() {
			resetsAt := b.ResetsAt().UTC()
			br.ResetsAt = &resetsAt
		}
		budgets = append(budgets, br)
	}
	return usageResponse{
		Period:        string(report.Period()),
		PeriodStartAt: report.PeriodStart().UTC(),
		PeriodEndAt:   report.PeriodEnd().UTC(),
		TotalUsed:     report.TotalUsed(),
		Budgets:       budgets,
	}
}

func healthToResponse(r healthuc.Report) healthResponse {
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return healthResponse{Status: string(r.Status), Checks: checks, IndexSize: r.IndexSize, Version: version.String()}
}
