package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
)

// PollRepository is the durable entity store. Increment must be a single
// indivisible operation at the store; implementations never load, mutate and
// save the whole document.
type PollRepository interface {
	Insert(ctx context.Context, poll *domain.Poll) (*domain.Poll, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	FindAllOrderedByCreationDesc(ctx context.Context) ([]*domain.Poll, error)
	Increment(ctx context.Context, id uuid.UUID, counter domain.Counter, amount int64) (*domain.Poll, error)
	Ping(ctx context.Context) error
}

type CreatePollInput struct {
	Question string
	Options  []string
}

type VoteInput struct {
	PollID      string
	OptionIndex int
}

type PollService interface {
	Create(ctx context.Context, input CreatePollInput) (*domain.Poll, error)
	Vote(ctx context.Context, input VoteInput) (*domain.Poll, error)
	Like(ctx context.Context, pollID string) (*domain.Poll, error)
	ListPolls(ctx context.Context) ([]*domain.Poll, error)
	GetPoll(ctx context.Context, id string) (*domain.Poll, error)
}
