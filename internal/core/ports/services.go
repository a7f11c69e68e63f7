package ports

import (
	"context"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// EventPublisher forwards the engine's semantic events to a message
// broker for an outside presentation layer. The engine never formats
// user-facing text.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// CacheService provides read-through caching for derived data such as
// region aggregates.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
