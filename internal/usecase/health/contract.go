package health

import "context"

// Consumer-side views of the components /health probes.
type (
	// DBPinger is the issue and message store.
	DBPinger interface {
		Ping(ctx context.Context) error
	}

	// EmbeddingChecker is the embedding provider chain.
	EmbeddingChecker interface {
		HealthCheck(ctx context.Context) error
	}

	// IndexSizer is the vector index of issue centroids.
	IndexSizer interface {
		Len() int
	}
)
