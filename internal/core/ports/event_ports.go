package ports

import (
	"context"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
)

// EventPublisher hands events to whatever fans them out. Delivery is best
// effort and at most once.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
