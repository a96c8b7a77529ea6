package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
)

type entry struct {
	poll *domain.Poll
	seq  uint64
}

// pollRepository keeps polls in process memory. It has no atomic update
// primitive to lean on, so increments are serialised per poll id.
type pollRepository struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]entry
	seq   uint64

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	clock clockwork.Clock
}

func NewPollRepository(clock clockwork.Clock) ports.PollRepository {
	return &pollRepository{
		polls: make(map[uuid.UUID]entry),
		locks: make(map[uuid.UUID]*sync.Mutex),
		clock: clock,
	}
}

func (r *pollRepository) Insert(_ context.Context, poll *domain.Poll) (*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.polls[poll.ID]; exists {
		return nil, fmt.Errorf("failed to insert poll: duplicate id %s", poll.ID)
	}
	r.seq++
	r.polls[poll.ID] = entry{poll: poll.Clone(), seq: r.seq}
	return poll.Clone(), nil
}

func (r *pollRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	return e.poll.Clone(), nil
}

func (r *pollRepository) FindAllOrderedByCreationDesc(_ context.Context) ([]*domain.Poll, error) {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.polls))
	for _, e := range r.polls {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.poll.CreatedAt.Equal(b.poll.CreatedAt) {
			return a.poll.CreatedAt.After(b.poll.CreatedAt)
		}
		return a.seq > b.seq
	})

	polls := make([]*domain.Poll, 0, len(entries))
	for _, e := range entries {
		polls = append(polls, e.poll.Clone())
	}
	return polls, nil
}

func (r *pollRepository) Increment(_ context.Context, id uuid.UUID, counter domain.Counter, amount int64) (*domain.Poll, error) {
	if amount < 0 {
		return nil, fmt.Errorf("counters never decrease: %d", amount)
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	// Nothing else writes this poll while the per-id lock is held, so the
	// read and the write below cannot interleave with another increment.
	r.mu.RLock()
	e, ok := r.polls[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrPollNotFound
	}

	updated := e.poll.Clone()
	if counter.IsLikes() {
		updated.Likes += amount
	} else {
		if !updated.HasOption(counter.OptionIndex()) {
			return nil, domain.ErrInvalidOption
		}
		updated.Options[counter.OptionIndex()].Votes += amount
	}
	updated.UpdatedAt = domain.Timestamp(r.clock.Now())

	r.mu.Lock()
	r.polls[id] = entry{poll: updated, seq: e.seq}
	r.mu.Unlock()

	return updated.Clone(), nil
}

func (r *pollRepository) Ping(context.Context) error {
	return nil
}

func (r *pollRepository) lockFor(id uuid.UUID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}
