package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

const (
	uniqueViolation      = "23505"
	voteRecordsUniqueKey = "vote_records_poll_user_key"
)

type voteRepository struct {
	db querier
}

func NewVoteRepository(db *sql.DB) ports.VoteRepository {
	return &voteRepository{
		db: db,
	}
}

// Insert never checks for an existing entry first: the unique key on
// (poll_id, user_id) decides.
func (r *voteRepository) Insert(ctx context.Context, vote *domain.VoteRecord) error {
	query := `
		INSERT INTO vote_records (id, poll_id, user_id, option_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, vote.ID, vote.PollID, vote.UserID, vote.OptionID, vote.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == voteRecordsUniqueKey {
			return domain.ErrAlreadyVoted
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

func (r *voteRepository) Get(ctx context.Context, pollID uuid.UUID, userID string) (*domain.VoteRecord, error) {
	query := `
		SELECT id, poll_id, user_id, option_id, created_at, updated_at
		FROM vote_records
		WHERE poll_id = $1 AND user_id = $2
	`
	var (
		v         domain.VoteRecord
		updatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, pollID, userID).Scan(
		&v.ID, &v.PollID, &v.UserID, &v.OptionID, &v.CreatedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time.In(time.UTC)
		v.UpdatedAt = &t
	}
	v.CreatedAt = v.CreatedAt.In(time.UTC)
	return &v, nil
}

func (r *voteRepository) UpdateOption(ctx context.Context, pollID uuid.UUID, userID string, from, to uuid.UUID) error {
	query := `
		UPDATE vote_records
		SET option_id = $4, updated_at = NOW()
		WHERE poll_id = $1 AND user_id = $2 AND option_id = $3
	`
	res, err := r.db.ExecContext(ctx, query, pollID, userID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	return expectRows(res, domain.ErrVoteNotFound)
}

func (r *voteRepository) DeleteByPoll(ctx context.Context, pollID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vote_records WHERE poll_id = $1`, pollID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (r *voteRepository) CountByOption(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error) {
	query := `
		SELECT option_id, COUNT(*)
		FROM vote_records
		WHERE poll_id = $1
		GROUP BY option_id
	`
	rows, err := r.db.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var (
			optionID uuid.UUID
			n        int64
		)
		if err := rows.Scan(&optionID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan vote count: %w", err)
		}
		counts[optionID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vote counts: %w", err)
	}
	return counts, nil
}
