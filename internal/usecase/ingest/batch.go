package ingest

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/triage/internal/domain"
	dombatch "github.com/kailas-cloud/triage/internal/domain/batch"
	"github.com/kailas-cloud/triage/internal/domain/event"
)

// MaxBatchSize is the maximum number of events per batch request.
const MaxBatchSize = 100

// IngestBatch ingests events in order with per-event results. Events are
// processed sequentially so a reply can join a thread opened earlier in the
// same batch. Once ctx is done the remaining events fail without being tried.
func (s *Service) IngestBatch(ctx context.Context, events []event.Event) []dombatch.Result {
	results := make([]dombatch.Result, len(events))

	if len(events) > MaxBatchSize {
		for i, ev := range events {
			results[i] = dombatch.NewError(
				ev.ExternalID(),
				fmt.Errorf("batch size exceeds %d: %w", MaxBatchSize, domain.ErrInvalidEvent),
			)
		}
		return results
	}

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			results[i] = dombatch.NewError(ev.ExternalID(), err)
			continue
		}
		msg, err := s.Ingest(ctx, ev)
		switch {
		case err != nil:
			results[i] = dombatch.NewError(ev.ExternalID(), err)
		case msg == nil:
			results[i] = dombatch.NewIgnored(ev.ExternalID())
		default:
			results[i] = dombatch.NewStored(ev.ExternalID(), msg.ID(), msg.IssueID())
		}
	}
	return results
}
