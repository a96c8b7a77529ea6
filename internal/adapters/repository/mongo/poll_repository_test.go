package mongo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
)

func setupRepository(t *testing.T) (ports.PollRepository, func() int) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := Connect(ctx, uri, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("quickpoll_test")
	require.NoError(t, EnsureIndexes(ctx, db))

	optionCount := func() int {
		var doc struct {
			Options []bson.M `bson:"options"`
		}
		cursor, err := db.Collection(pollsCollection).Find(ctx, bson.M{})
		require.NoError(t, err)
		defer cursor.Close(ctx)
		total := 0
		for cursor.Next(ctx) {
			require.NoError(t, cursor.Decode(&doc))
			total += len(doc.Options)
		}
		return total
	}

	return NewPollRepository(client, "quickpoll_test", clockwork.NewRealClock()), optionCount
}

func TestPollRepository(t *testing.T) {
	repo, optionCount := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older, err := domain.NewPoll("Older?", []string{"a", "b"}, base)
	require.NoError(t, err)
	newer, err := domain.NewPoll("Newer?", []string{"x", "y", "z"}, base.Add(time.Minute))
	require.NoError(t, err)

	t.Run("insert and find", func(t *testing.T) {
		for _, p := range []*domain.Poll{older, newer} {
			_, err := repo.Insert(ctx, p)
			require.NoError(t, err)
		}

		found, err := repo.FindByID(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, newer.Question, found.Question)
		assert.Equal(t, newer.Options, found.Options)
		assert.True(t, newer.CreatedAt.Equal(found.CreatedAt))

		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrPollNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		polls, err := repo.FindAllOrderedByCreationDesc(ctx)
		require.NoError(t, err)
		require.Len(t, polls, 2)
		assert.Equal(t, newer.ID, polls[0].ID)
		assert.Equal(t, older.ID, polls[1].ID)
	})

	t.Run("increment", func(t *testing.T) {
		updated, err := repo.Increment(ctx, newer.ID, domain.VotesCounter(2), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Options[2].Votes)

		updated, err = repo.Increment(ctx, newer.ID, domain.LikesCounter(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Likes)
		assert.True(t, updated.UpdatedAt.After(newer.UpdatedAt))
	})

	t.Run("out of range option leaves the document intact", func(t *testing.T) {
		before := optionCount()

		_, err := repo.Increment(ctx, newer.ID, domain.VotesCounter(3), 1)
		assert.ErrorIs(t, err, domain.ErrInvalidOption)
		_, err = repo.Increment(ctx, newer.ID, domain.VotesCounter(-1), 1)
		assert.ErrorIs(t, err, domain.ErrInvalidOption)
		_, err = repo.Increment(ctx, uuid.New(), domain.VotesCounter(0), 1)
		assert.ErrorIs(t, err, domain.ErrPollNotFound)

		assert.Equal(t, before, optionCount())
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Increment(ctx, older.ID, domain.VotesCounter(0), 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		found, err := repo.FindByID(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n), found.Options[0].Votes)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

func TestPingUnavailable(t *testing.T) {
	ctx := context.Background()
	client, err := Connect(ctx, "mongodb://127.0.0.1:1/quickpoll", 200*time.Millisecond)
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	err = NewPollRepository(client, "quickpoll", clockwork.NewRealClock()).Ping(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
