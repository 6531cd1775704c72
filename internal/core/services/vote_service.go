package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

// voteService keeps the ledger and the poll counters in step. Every write path
// runs inside one store transaction; the ledger's own uniqueness constraint is
// the only arbiter of "already voted".
type voteService struct {
	store  ports.Store
	logger *slog.Logger
}

func NewVoteService(store ports.Store, logger *slog.Logger) ports.VoteService {
	return &voteService{
		store:  store,
		logger: resolveLogger(logger),
	}
}

func (s *voteService) CastVote(ctx context.Context, input ports.VoteInput) (*domain.Poll, error) {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := lockOpenPoll(ctx, repos, input.PollID, input.OptionID); err != nil {
			return err
		}

		vote := &domain.VoteRecord{
			ID:        uuid.New(),
			PollID:    input.PollID,
			UserID:    input.UserID,
			OptionID:  input.OptionID,
			CreatedAt: time.Now().UTC(),
		}
		if err := repos.Votes().Insert(ctx, vote); err != nil {
			return err
		}
		return applyDelta(ctx, repos, input.PollID, input.OptionID, 1)
	})
	if err != nil {
		return nil, err
	}

	return s.store.Polls().GetByID(ctx, input.PollID)
}

func (s *voteService) ChangeVote(ctx context.Context, input ports.VoteInput) (*domain.Poll, error) {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := lockOpenPoll(ctx, repos, input.PollID, input.OptionID); err != nil {
			return err
		}

		current, err := repos.Votes().Get(ctx, input.PollID, input.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrVoteNotFound) {
				return domain.ErrNotVoted
			}
			return err
		}
		if current.OptionID == input.OptionID {
			return domain.ErrSameOption
		}

		if err := applyDelta(ctx, repos, input.PollID, current.OptionID, -1); err != nil {
			return err
		}
		if err := applyDelta(ctx, repos, input.PollID, input.OptionID, 1); err != nil {
			return err
		}

		err = repos.Votes().UpdateOption(ctx, input.PollID, input.UserID, current.OptionID, input.OptionID)
		if errors.Is(err, domain.ErrVoteNotFound) {
			return domain.ErrVoteChanged
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.store.Polls().GetByID(ctx, input.PollID)
}

func (s *voteService) CheckVote(ctx context.Context, pollID uuid.UUID, userID string) (domain.VoteStatus, error) {
	vote, err := s.store.Votes().Get(ctx, pollID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrVoteNotFound) {
			return domain.VoteStatus{HasVoted: false}, nil
		}
		return domain.VoteStatus{}, err
	}
	return domain.VoteStatus{HasVoted: true, OptionID: &vote.OptionID}, nil
}

// lockOpenPoll takes the poll lock before anything touches the ledger, so a
// concurrent reset or close is either fully visible or not started.
func lockOpenPoll(ctx context.Context, repos ports.Repositories, pollID, optionID uuid.UUID) error {
	poll, err := repos.Polls().GetForUpdate(ctx, pollID)
	if err != nil {
		return err
	}
	if !poll.HasOption(optionID) {
		return domain.ErrInvalidOption
	}
	if poll.IsClosed {
		return domain.ErrPollClosed
	}
	return nil
}

func applyDelta(ctx context.Context, repos ports.Repositories, pollID, optionID uuid.UUID, delta int64) error {
	outcome, err := repos.Polls().ApplyOptionDelta(ctx, pollID, optionID, delta)
	if err != nil {
		return err
	}

	switch outcome {
	case domain.DeltaApplied:
		return nil
	case domain.DeltaNoMatch:
		return explainNoMatch(ctx, repos, pollID)
	default:
		return fmt.Errorf("option %s delta %d: %w", optionID, delta, domain.ErrCounterUnmodified)
	}
}

// explainNoMatch turns a delta that matched nothing into the error the caller
// would have seen had the state been visible up front.
func explainNoMatch(ctx context.Context, repos ports.Repositories, pollID uuid.UUID) error {
	poll, err := repos.Polls().GetByID(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.IsClosed {
		return domain.ErrPollClosed
	}
	return domain.ErrInvalidOption
}
