// Package chi is the HTTP front door: Slack deliveries, direct ingestion,
// dashboard queries and the live notification stream.
package chi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
	"github.com/kailas-cloud/triage/internal/domain/issue"
	domusage "github.com/kailas-cloud/triage/internal/domain/usage"
	"github.com/kailas-cloud/triage/internal/logger"
	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/triage/internal/usecase/ingest"
)

const (
	// DefaultHeartbeat is the idle interval between keepalive comments on the event stream.
	DefaultHeartbeat = 15 * time.Second

	maxBodyBytes = 1 << 20
)

// Server holds the HTTP handlers.
type Server struct {
	ingester Ingester
	queue    Queue
	issues   IssueQuerier
	usage    UsageReporter
	health   HealthChecker
	stream   Subscriber

	slackSecret string
	heartbeat   time.Duration
	now         func() time.Time

	done      chan struct{}
	closeOnce sync.Once

	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingester Ingester,
	queue Queue,
	issues IssueQuerier,
	usage UsageReporter,
	health HealthChecker,
	stream Subscriber,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingester:      ingester,
		queue:         queue,
		issues:        issues,
		usage:         usage,
		health:        health,
		stream:        stream,
		heartbeat:     DefaultHeartbeat,
		now:           time.Now,
		done:          make(chan struct{}),
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// WithSlackSecret enables Slack request signature verification.
func (s *Server) WithSlackSecret(secret string) *Server {
	s.slackSecret = secret
	return s
}

// WithHeartbeat sets the event stream keepalive interval.
func (s *Server) WithHeartbeat(d time.Duration) *Server {
	if d > 0 {
		s.heartbeat = d
	}
	return s
}

// CloseStreams ends every open event stream. http.Server.Shutdown does not
// cancel request contexts, so register this with RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SlackEvents handles POST /slack/events.
func (s *Server) SlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unreadable request body")
		return
	}
	log := logger.FromContextOr(r.Context(), s.logger)

	if s.slackSecret != "" {
		if err := verifySlackSignature(s.slackSecret, r.Header, body, s.now()); err != nil {
			log.Warn("slack signature rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid slack signature")
			return
		}
	}

	var env slackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON payload")
		return
	}

	switch env.Type {
	case "url_verification":
		log.Info("slack url verification")
		writeJSON(w, http.StatusOK, map[string]string{"challenge": env.Challenge})
	case "event_callback":
		// bot posts are dropped to avoid feedback loops
		if env.Event.Type != "message" || env.Event.BotID != "" {
			writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
			return
		}
		ev, err := env.Event.toDomain()
		if err != nil {
			log.Debug("slack event skipped", zap.String("ts", env.Event.TS), zap.Error(err))
			writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
			return
		}
		if err := s.queue.Submit(ev); err != nil {
			s.handleDomainError(w, r, err, http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
	}
}

// CreateEvent handles POST /events.
func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ev, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	msg, err := s.ingester.Ingest(r.Context(), ev)
	if err != nil {
		s.handleDomainError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	if msg == nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/issues/%s/messages", msg.IssueID()))
	writeJSON(w, http.StatusCreated, messageToResponse(msg))
}

// CreateEventBatch handles POST /events/batch.
func (s *Server) CreateEventBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8*maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "events must not be empty")
		return
	}
	if len(req.Events) > ingestuc.MaxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("batch size %d exceeds maximum %d", len(req.Events), ingestuc.MaxBatchSize))
		return
	}

	// Invalid items fail individually; the rest keep their position in the response.
	results := make([]dombatch.Result, len(req.Events))
	valid := make([]event.Event, 0, len(req.Events))
	positions := make([]int, 0, len(req.Events))
	for i, item := range req.Events {
		ev, err := item.toDomain()
		if err != nil {
			results[i] = dombatch.NewError(item.ExternalID, err)
			continue
		}
		valid = append(valid, ev)
		positions = append(positions, i)
	}
	if len(valid) > 0 {
		for j, res := range s.ingester.IngestBatch(r.Context(), valid) {
			results[positions[j]] = res
		}
	}

	resp := batchResponse{Items: make([]batchItemResponse, len(results))}
	for i, res := range results {
		resp.Items[i] = batchResultToResponse(res)
		if res.Status() == dombatch.StatusError {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListIssues handles GET /issues.
func (s *Server) ListIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "offset must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be an integer")
		return
	}

	page, err := s.issues.List(r.Context(), issue.Status(q.Get("status")), offset, limit)
	if err != nil {
		s.handleDomainError(w, r, err, http.StatusInternalServerError)
		return
	}

	items := make([]issueResponse, len(page.Items))
	for i := range page.Items {
		items[i] = issueToResponse(&page.Items[i])
	}
	writeJSON(w, http.StatusOK, issueListResponse{
		Items:  items,
		Total:  page.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	})
}

// GetIssue handles GET /issues/{id}.
func (s *Server) GetIssue(w http.ResponseWriter, r *http.Request) {
	iss, err := s.issues.Get(r.Context(), chirouter.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, issueToResponse(&iss))
}

// ListIssueMessages handles GET /issues/{id}/messages.
func (s *Server) ListIssueMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be an integer")
		return
	}

	msgs, err := s.issues.Messages(r.Context(), chirouter.URLParam(r, "id"), limit)
	if err != nil {
		s.handleDomainError(w, r, err, http.StatusInternalServerError)
		return
	}

	items := make([]messageResponse, len(msgs))
	for i := range msgs {
		items[i] = messageToResponse(&msgs[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// ResolveIssue handles PUT /issues/{id}/resolve.
func (s *Server) ResolveIssue(w http.ResponseWriter, r *http.Request) {
	iss, err := s.ingester.Resolve(r.Context(), chirouter.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, issueToResponse(&iss))
}

// StreamEvents handles GET /events/stream with server-sent events.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming not supported")
		return
	}
	// the server-wide write timeout would cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	notes, cancel := s.stream.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, "retry: 3000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	log := logger.FromContextOr(r.Context(), s.logger)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				log.Error("encode notification", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", n.Seq, data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// GetUsage handles GET /usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	switch p := r.URL.Query().Get("period"); p {
	case "", string(domusage.PeriodMonth):
	case string(domusage.PeriodDay):
		period = domusage.PeriodDay
	default:
		writeError(w, http.StatusBadRequest, codeValidationFailed, "period must be day or month")
		return
	}

	writeJSON(w, http.StatusOK, usageToResponse(s.usage.GetReport(r.Context(), period)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthToResponse(report))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", domain.ErrInvalidQuery, v)
	}
	return n, nil
}
