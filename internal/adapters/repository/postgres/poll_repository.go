package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
)

type pollRepository struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewPollRepository(db *sql.DB, clock clockwork.Clock) ports.PollRepository {
	return &pollRepository{
		db:    db,
		clock: clock,
	}
}

func (r *pollRepository) Insert(ctx context.Context, poll *domain.Poll) (*domain.Poll, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin transaction", err)
	}
	defer tx.Rollback()

	queryPoll := `
		INSERT INTO polls (id, question, likes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.ExecContext(ctx, queryPoll, poll.ID, poll.Question, poll.Likes, poll.CreatedAt, poll.UpdatedAt)
	if err != nil {
		return nil, classify("insert poll", err)
	}

	queryOption := `
		INSERT INTO poll_options (poll_id, position, text, votes)
		VALUES ($1, $2, $3, $4)
	`
	stmt, err := tx.PrepareContext(ctx, queryOption)
	if err != nil {
		return nil, classify("prepare option statement", err)
	}
	defer stmt.Close()

	for i, opt := range poll.Options {
		if _, err = stmt.ExecContext(ctx, poll.ID, i, opt.Text, opt.Votes); err != nil {
			return nil, classify("insert option", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit transaction", err)
	}

	return poll.Clone(), nil
}

func (r *pollRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	queryPoll := `
		SELECT id, question, likes, created_at, updated_at
		FROM polls
		WHERE id = $1
	`

	poll, err := scanPoll(r.db.QueryRowContext(ctx, queryPoll, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, classify("get poll", err)
	}

	options, err := fetchOptions(ctx, r.db, poll.ID)
	if err != nil {
		return nil, err
	}
	poll.Options = options

	return poll, nil
}

func (r *pollRepository) FindAllOrderedByCreationDesc(ctx context.Context) ([]*domain.Poll, error) {
	query := `
		SELECT id, question, likes, created_at, updated_at
		FROM polls
		ORDER BY created_at DESC, seq DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list polls", err)
	}
	defer rows.Close()

	var polls []*domain.Poll
	byID := make(map[uuid.UUID]*domain.Poll)
	ids := make([]string, 0)
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, classify("scan poll", err)
		}
		polls = append(polls, poll)
		byID[poll.ID] = poll
		ids = append(ids, poll.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate polls", err)
	}
	if len(polls) == 0 {
		return polls, nil
	}

	queryOptions := `
		SELECT poll_id, text, votes
		FROM poll_options
		WHERE poll_id = ANY($1::uuid[])
		ORDER BY poll_id, position
	`
	optRows, err := r.db.QueryContext(ctx, queryOptions, pq.Array(ids))
	if err != nil {
		return nil, classify("get poll options", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var pollID uuid.UUID
		var opt domain.Option
		if err := optRows.Scan(&pollID, &opt.Text, &opt.Votes); err != nil {
			return nil, classify("scan option", err)
		}
		if poll, ok := byID[pollID]; ok {
			poll.Options = append(poll.Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, classify("iterate options", err)
	}

	return polls, nil
}

// Increment runs as one transaction: the poll row is updated first, so every
// increment against a poll takes the same row lock before touching an option.
// Counter arithmetic happens inside the UPDATE, never in Go.
func (r *pollRepository) Increment(ctx context.Context, id uuid.UUID, counter domain.Counter, amount int64) (*domain.Poll, error) {
	if amount < 0 {
		return nil, fmt.Errorf("counters never decrease: %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin transaction", err)
	}
	defer tx.Rollback()

	likesDelta := int64(0)
	if counter.IsLikes() {
		likesDelta = amount
	}

	queryPoll := `
		UPDATE polls
		SET likes = likes + $2, updated_at = $3
		WHERE id = $1
		RETURNING id, question, likes, created_at, updated_at
	`
	poll, err := scanPoll(tx.QueryRowContext(ctx, queryPoll, id, likesDelta, domain.Timestamp(r.clock.Now())))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, classify("increment "+counter.Path(), err)
	}

	if !counter.IsLikes() {
		queryOption := `
			UPDATE poll_options
			SET votes = votes + $3
			WHERE poll_id = $1 AND position = $2
		`
		res, err := tx.ExecContext(ctx, queryOption, id, counter.OptionIndex(), amount)
		if err != nil {
			return nil, classify("increment "+counter.Path(), err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, classify("increment "+counter.Path(), err)
		}
		if affected == 0 {
			return nil, domain.ErrInvalidOption
		}
	}

	options, err := fetchOptions(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	poll.Options = options

	if err := tx.Commit(); err != nil {
		return nil, classify("commit transaction", err)
	}

	return poll, nil
}

func (r *pollRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanPoll(row rowScanner) (*domain.Poll, error) {
	var poll domain.Poll
	if err := row.Scan(&poll.ID, &poll.Question, &poll.Likes, &poll.CreatedAt, &poll.UpdatedAt); err != nil {
		return nil, err
	}
	poll.CreatedAt = poll.CreatedAt.UTC()
	poll.UpdatedAt = poll.UpdatedAt.UTC()
	return &poll, nil
}

func fetchOptions(ctx context.Context, q queryer, pollID uuid.UUID) ([]domain.Option, error) {
	queryOptions := `
		SELECT text, votes
		FROM poll_options
		WHERE poll_id = $1
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, queryOptions, pollID)
	if err != nil {
		return nil, classify("get poll options", err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.Text, &opt.Votes); err != nil {
			return nil, classify("scan option", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate options", err)
	}
	return options, nil
}
