// Package breaker guards a poll store with a circuit breaker so that an
// unreachable database fails requests fast instead of piling them up.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
	"github.com/vncsmyrnk/pollstream/internal/metrics"
)

const (
	DefaultMaxFailures = 5
	DefaultOpenTimeout = 10 * time.Second
)

type Settings struct {
	// MaxFailures is the number of consecutive store failures that trip the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
}

type pollRepository struct {
	next ports.PollRepository
	cb   *gobreaker.CircuitBreaker
}

// NewPollRepository wraps next. Only errors marked domain.ErrStoreUnavailable
// count as failures; a missing poll or a bad option index is a healthy answer.
func NewPollRepository(next ports.PollRepository, s Settings) ports.PollRepository {
	if s.MaxFailures == 0 {
		s.MaxFailures = DefaultMaxFailures
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = DefaultOpenTimeout
	}

	maxFailures := s.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, domain.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.StoreBreakerStateChanges.WithLabelValues(to.String()).Inc()
			metrics.StoreBreakerState.Set(stateToFloat(to))
		},
	})
	metrics.StoreBreakerState.Set(stateToFloat(gobreaker.StateClosed))

	return &pollRepository{next: next, cb: cb}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (r *pollRepository) Insert(ctx context.Context, poll *domain.Poll) (*domain.Poll, error) {
	return r.execPoll(func() (*domain.Poll, error) {
		return r.next.Insert(ctx, poll)
	})
}

func (r *pollRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	return r.execPoll(func() (*domain.Poll, error) {
		return r.next.FindByID(ctx, id)
	})
}

func (r *pollRepository) FindAllOrderedByCreationDesc(ctx context.Context) ([]*domain.Poll, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		return r.next.FindAllOrderedByCreationDesc(ctx)
	})
	if err != nil {
		return nil, openErr(err)
	}
	return res.([]*domain.Poll), nil
}

func (r *pollRepository) Increment(ctx context.Context, id uuid.UUID, counter domain.Counter, amount int64) (*domain.Poll, error) {
	return r.execPoll(func() (*domain.Poll, error) {
		return r.next.Increment(ctx, id, counter, amount)
	})
}

func (r *pollRepository) Ping(ctx context.Context) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.next.Ping(ctx)
	})
	return openErr(err)
}

func (r *pollRepository) execPoll(fn func() (*domain.Poll, error)) (*domain.Poll, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, openErr(err)
	}
	return res.(*domain.Poll), nil
}

func openErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("store circuit breaker rejected call: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}
