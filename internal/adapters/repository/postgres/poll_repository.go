package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type pollRepository struct {
	db querier
}

func NewPollRepository(db *sql.DB) ports.PollRepository {
	return &pollRepository{
		db: db,
	}
}

// Save writes the poll and its options. Outside a transaction it opens its own.
func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	if db, ok := r.db.(*sql.DB); ok {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := (&pollRepository{db: tx}).Save(ctx, poll); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	queryPoll := `
		INSERT INTO polls (id, question, creator_id, is_closed, total_votes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, queryPoll,
		poll.ID, poll.Question, poll.CreatorID, poll.IsClosed, poll.TotalVotes, poll.CreatedAt, poll.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert poll: %w", err)
	}

	queryOption := `
		INSERT INTO poll_options (id, poll_id, position, text, votes)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, opt := range poll.Options {
		if _, err := r.db.ExecContext(ctx, queryOption, opt.ID, poll.ID, i, opt.Text, opt.Votes); err != nil {
			return fmt.Errorf("failed to insert option: %w", err)
		}
	}

	return nil
}

const selectPollWithOptions = `
	SELECT p.id, p.question, p.creator_id, p.is_closed, p.total_votes, p.created_at, p.updated_at,
	       o.id, o.text, o.votes
	FROM polls p
	JOIN poll_options o ON o.poll_id = p.id
`

// GetByID reads the poll and its options in one statement so both come from
// the same snapshot.
func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	query := selectPollWithOptions + `
		WHERE p.id = $1
		ORDER BY o.position
	`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	defer rows.Close()

	polls, err := scanPolls(rows)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, domain.ErrPollNotFound
	}
	return polls[0], nil
}

func (r *pollRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT TRUE FROM polls WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to lock poll: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *pollRepository) List(ctx context.Context, filter domain.PollFilter) ([]*domain.Poll, error) {
	var (
		where []string
		args  []any
	)
	if filter.CreatorID != "" {
		args = append(args, filter.CreatorID)
		where = append(where, fmt.Sprintf("p.creator_id = $%d", len(args)))
	}
	if filter.ClosedOnly != nil {
		args = append(args, *filter.ClosedOnly)
		where = append(where, fmt.Sprintf("p.is_closed = $%d", len(args)))
	}

	query := selectPollWithOptions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id, o.position"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	return scanPolls(rows)
}

// ApplyOptionDelta locks the open poll row, bumps the option and mirrors the
// change into total_votes, all in one statement.
func (r *pollRepository) ApplyOptionDelta(ctx context.Context, pollID, optionID uuid.UUID, delta int64) (domain.DeltaOutcome, error) {
	query := `
		WITH target AS (
			SELECT id FROM polls WHERE id = $1 AND NOT is_closed FOR UPDATE
		), bumped AS (
			UPDATE poll_options o
			SET votes = o.votes + $3::bigint
			FROM target
			WHERE o.poll_id = target.id AND o.id = $2 AND o.votes + $3::bigint >= 0 AND $3::bigint <> 0
			RETURNING o.poll_id
		), totals AS (
			UPDATE polls p
			SET total_votes = p.total_votes + $3::bigint, updated_at = NOW()
			FROM bumped
			WHERE p.id = bumped.poll_id
			RETURNING p.id
		)
		SELECT
			EXISTS (SELECT 1 FROM target JOIN poll_options o ON o.poll_id = target.id AND o.id = $2),
			EXISTS (SELECT 1 FROM totals)
	`
	var matched, modified bool
	if err := r.db.QueryRowContext(ctx, query, pollID, optionID, delta).Scan(&matched, &modified); err != nil {
		return domain.DeltaNoMatch, fmt.Errorf("failed to apply option delta: %w", err)
	}

	switch {
	case modified:
		return domain.DeltaApplied, nil
	case matched:
		return domain.DeltaUnmodified, nil
	default:
		return domain.DeltaNoMatch, nil
	}
}

func (r *pollRepository) SetClosed(ctx context.Context, id uuid.UUID, closed bool) error {
	query := `UPDATE polls SET is_closed = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, closed)
	if err != nil {
		return fmt.Errorf("failed to update poll state: %w", err)
	}
	return expectRows(res, domain.ErrPollNotFound)
}

func (r *pollRepository) ResetCounters(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE polls SET total_votes = 0, is_closed = FALSE, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset poll: %w", err)
	}
	if err := expectRows(res, domain.ErrPollNotFound); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE poll_options SET votes = 0 WHERE poll_id = $1`, id); err != nil {
		return fmt.Errorf("failed to reset options: %w", err)
	}
	return nil
}

func (r *pollRepository) SetCounters(ctx context.Context, id uuid.UUID, votes map[uuid.UUID]int64) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT TRUE FROM polls WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPollNotFound
		}
		return fmt.Errorf("failed to lock poll: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE poll_options SET votes = 0 WHERE poll_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear options: %w", err)
	}
	for optionID, n := range votes {
		query := `UPDATE poll_options SET votes = $3 WHERE poll_id = $1 AND id = $2`
		if _, err := r.db.ExecContext(ctx, query, id, optionID, n); err != nil {
			return fmt.Errorf("failed to set option votes: %w", err)
		}
	}

	query := `
		UPDATE polls
		SET total_votes = (SELECT COALESCE(SUM(votes), 0) FROM poll_options WHERE poll_id = $1),
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to set total votes: %w", err)
	}
	return nil
}

func scanPolls(rows *sql.Rows) ([]*domain.Poll, error) {
	var (
		polls []*domain.Poll
		last  *domain.Poll
	)
	for rows.Next() {
		var (
			p         domain.Poll
			updatedAt sql.NullTime
			opt       domain.Option
		)
		err := rows.Scan(
			&p.ID, &p.Question, &p.CreatorID, &p.IsClosed, &p.TotalVotes, &p.CreatedAt, &updatedAt,
			&opt.ID, &opt.Text, &opt.Votes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}

		if last == nil || last.ID != p.ID {
			if updatedAt.Valid {
				t := updatedAt.Time.In(time.UTC)
				p.UpdatedAt = &t
			}
			p.CreatedAt = p.CreatedAt.In(time.UTC)
			last = &p
			polls = append(polls, last)
		}
		last.Options = append(last.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating polls: %w", err)
	}
	return polls, nil
}

func expectRows(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
