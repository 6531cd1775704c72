package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type VoteRepository interface {
	// Insert fails with domain.ErrAlreadyVoted when the storage uniqueness
	// constraint on (poll_id, user_id) rejects the record.
	Insert(ctx context.Context, vote *domain.VoteRecord) error
	Get(ctx context.Context, pollID uuid.UUID, userID string) (*domain.VoteRecord, error)
	// UpdateOption moves the entry from one option to another. It fails with
	// domain.ErrVoteNotFound when the entry no longer points at from.
	UpdateOption(ctx context.Context, pollID uuid.UUID, userID string, from, to uuid.UUID) error
	DeleteByPoll(ctx context.Context, pollID uuid.UUID) (int64, error)
	CountByOption(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error)
}

type VoteInput struct {
	PollID   uuid.UUID
	OptionID uuid.UUID
	UserID   string
}

type VoteService interface {
	CastVote(ctx context.Context, input VoteInput) (*domain.Poll, error)
	ChangeVote(ctx context.Context, input VoteInput) (*domain.Poll, error)
	CheckVote(ctx context.Context, pollID uuid.UUID, userID string) (domain.VoteStatus, error)
	ClosePoll(ctx context.Context, pollID uuid.UUID, callerID string) (*domain.Poll, error)
	ResetPoll(ctx context.Context, pollID uuid.UUID, callerID string) (*domain.Poll, error)
}
