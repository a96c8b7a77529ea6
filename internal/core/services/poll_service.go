package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
	"github.com/vncsmyrnk/pollstream/internal/logging"
	"github.com/vncsmyrnk/pollstream/internal/metrics"
)

type pollService struct {
	repo      ports.PollRepository
	publisher ports.EventPublisher
	clock     clockwork.Clock
}

func NewPollService(repo ports.PollRepository, publisher ports.EventPublisher, clock clockwork.Clock) ports.PollService {
	return &pollService{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
	}
}

func (s *pollService) Create(ctx context.Context, input ports.CreatePollInput) (*domain.Poll, error) {
	poll, err := domain.NewPoll(input.Question, input.Options, domain.Timestamp(s.clock.Now()))
	if err != nil {
		metrics.RecordMutation("create", err)
		return nil, err
	}

	stored, err := s.repo.Insert(ctx, poll)
	metrics.RecordMutation("create", err)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventPollCreated, stored)
	return stored, nil
}

// Vote checks the index against a fresh read of the poll, then lets the store
// apply the increment atomically. Two concurrent votes always both land.
func (s *pollService) Vote(ctx context.Context, input ports.VoteInput) (*domain.Poll, error) {
	poll, err := s.increment(ctx, input.PollID, domain.VotesCounter(input.OptionIndex))
	metrics.RecordMutation("vote", err)
	if err != nil {
		return nil, err
	}
	logging.WithPoll(poll.ID.String()).Debug("Vote recorded",
		"option_index", input.OptionIndex,
		"total_votes", poll.TotalVotes(),
	)

	s.publish(ctx, domain.EventPollUpdated, poll)
	return poll, nil
}

func (s *pollService) Like(ctx context.Context, pollID string) (*domain.Poll, error) {
	poll, err := s.increment(ctx, pollID, domain.LikesCounter())
	metrics.RecordMutation("like", err)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventPollLiked, poll)
	return poll, nil
}

func (s *pollService) ListPolls(ctx context.Context) ([]*domain.Poll, error) {
	polls, err := s.repo.FindAllOrderedByCreationDesc(ctx)
	if err != nil {
		return nil, err
	}
	if polls == nil {
		polls = []*domain.Poll{}
	}
	return polls, nil
}

func (s *pollService) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	pollID, err := parsePollID(id)
	if err != nil {
		return nil, err
	}

	return s.repo.FindByID(ctx, pollID)
}

func (s *pollService) increment(ctx context.Context, id string, counter domain.Counter) (*domain.Poll, error) {
	pollID, err := parsePollID(id)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !counter.IsLikes() && !current.HasOption(counter.OptionIndex()) {
		return nil, fmt.Errorf("%w: %d is not in [0, %d)", domain.ErrInvalidOption, counter.OptionIndex(), len(current.Options))
	}

	return s.repo.Increment(ctx, pollID, counter, 1)
}

// publish never fails the mutation: the state change is already durable.
func (s *pollService) publish(ctx context.Context, kind domain.EventKind, poll *domain.Poll) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.Event{Kind: kind, Poll: poll}); err != nil {
		logging.WithPoll(poll.ID.String()).Warn("Failed to publish poll event",
			"kind", kind,
			"error", err,
		)
	}
}

// An identifier that cannot be parsed cannot resolve to a poll.
func parsePollID(id string) (uuid.UUID, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrPollNotFound, id)
	}
	return pollID, nil
}
