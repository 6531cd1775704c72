package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

// ClosePoll is idempotent: closing a closed poll succeeds without change.
func (s *voteService) ClosePoll(ctx context.Context, pollID uuid.UUID, callerID string) (*domain.Poll, error) {
	poll, err := s.authorizeCreator(ctx, pollID, callerID)
	if err != nil {
		return nil, err
	}
	if poll.IsClosed {
		return poll, nil
	}

	if err := s.store.Polls().SetClosed(ctx, pollID, true); err != nil {
		return nil, err
	}

	s.logger.Info("poll closed", "poll_id", pollID, "total_votes", poll.TotalVotes)
	return s.store.Polls().GetByID(ctx, pollID)
}

// ResetPoll zeroes the counters, reopens the poll and purges its ledger in
// one transaction.
func (s *voteService) ResetPoll(ctx context.Context, pollID uuid.UUID, callerID string) (*domain.Poll, error) {
	if _, err := s.authorizeCreator(ctx, pollID, callerID); err != nil {
		return nil, err
	}

	var purged int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Polls().ResetCounters(ctx, pollID); err != nil {
			return err
		}
		n, err := repos.Votes().DeleteByPoll(ctx, pollID)
		if err != nil {
			return err
		}
		purged = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("poll reset", "poll_id", pollID, "purged_votes", purged)
	return s.store.Polls().GetByID(ctx, pollID)
}

func (s *voteService) authorizeCreator(ctx context.Context, pollID uuid.UUID, callerID string) (*domain.Poll, error) {
	poll, err := s.store.Polls().GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.CreatorID != callerID {
		return nil, domain.ErrNotCreator
	}
	return poll, nil
}
