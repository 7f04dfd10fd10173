package triage

import (
	"context"

	healthuc "github.com/kailas-cloud/triage/internal/usecase/health"
	"github.com/kailas-cloud/triage/internal/version"
)

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded" // embedding provider down: messages cluster by thread and metadata only
	HealthError    = "error"    // storage unreachable
)

// HealthStatus is a point-in-time view of the client's dependencies.
type HealthStatus struct {
	Status    string
	Checks    map[string]string // database, embedding -> ok / error
	IndexSize int               // issues with a vector in the index
	Version   string
}

// Serving reports whether Ingest can still store messages.
func (h HealthStatus) Serving() bool { return h.Status != HealthError }

// Health pings storage and the embedding provider.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	out := HealthStatus{
		Status:    string(report.Status),
		Checks:    make(map[string]string, len(report.Checks)),
		IndexSize: report.IndexSize,
		Version:   version.Version,
	}
	for name, st := range report.Checks {
		out.Checks[name] = string(st)
	}
	return out
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
