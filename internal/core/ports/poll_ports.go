package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type PollReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	List(ctx context.Context, filter domain.PollFilter) ([]*domain.Poll, error)
}

type PollRepository interface {
	PollReader
	Save(ctx context.Context, poll *domain.Poll) error
	// GetForUpdate reads the poll and holds it for the rest of the enclosing
	// transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	// ApplyOptionDelta adds delta to one option's votes and to the poll's
	// total_votes in a single indivisible write. Only open polls match.
	ApplyOptionDelta(ctx context.Context, pollID, optionID uuid.UUID, delta int64) (domain.DeltaOutcome, error)
	SetClosed(ctx context.Context, id uuid.UUID, closed bool) error
	// ResetCounters zeroes every counter and reopens the poll.
	ResetCounters(ctx context.Context, id uuid.UUID) error
	// SetCounters overwrites option votes and recomputes total_votes from them.
	SetCounters(ctx context.Context, id uuid.UUID, votes map[uuid.UUID]int64) error
}

type CreatePollInput struct {
	Question  string
	Options   []string
	CreatorID string
}

type ListPollsInput struct {
	CreatorID string
	Closed    *bool
}

type PollService interface {
	Create(ctx context.Context, input CreatePollInput) (*domain.Poll, error)
	GetPoll(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	ListPolls(ctx context.Context, input ListPollsInput) ([]*domain.Poll, error)
}
