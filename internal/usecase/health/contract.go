package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding service availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
