package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

const defaultReconcileConcurrency = 4

// reconcileService compares every poll's counters with its ledger. The ledger
// wins: with repair set, drifted counters are rewritten from it.
type reconcileService struct {
	store       ports.Store
	concurrency int
	logger      *slog.Logger
}

func NewReconcileService(store ports.Store, concurrency int, logger *slog.Logger) ports.ReconcileService {
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}
	return &reconcileService{
		store:       store,
		concurrency: concurrency,
		logger:      resolveLogger(logger),
	}
}

func (s *reconcileService) ReconcileAll(ctx context.Context, repair bool) ([]domain.CounterDrift, error) {
	polls, err := s.store.Polls().List(ctx, domain.PollFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch all polls: %w", err)
	}

	var (
		mu     sync.Mutex
		drifts []domain.CounterDrift
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, poll := range polls {
		pollID := poll.ID
		g.Go(func() error {
			drift, err := s.reconcile(ctx, pollID, repair)
			if err != nil {
				return fmt.Errorf("failed to reconcile poll %s: %w", pollID, err)
			}
			if drift != nil {
				mu.Lock()
				drifts = append(drifts, *drift)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return drifts, err
	}
	return drifts, nil
}

func (s *reconcileService) reconcile(ctx context.Context, pollID uuid.UUID, repair bool) (*domain.CounterDrift, error) {
	var drift *domain.CounterDrift

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		drift = nil

		poll, err := repos.Polls().GetForUpdate(ctx, pollID)
		if err != nil {
			return err
		}
		ledger, err := repos.Votes().CountByOption(ctx, pollID)
		if err != nil {
			return err
		}

		recorded := make(map[uuid.UUID]int64, len(poll.Options))
		drifted := poll.TotalVotes != poll.CountedVotes()
		for _, opt := range poll.Options {
			recorded[opt.ID] = opt.Votes
			if ledger[opt.ID] != opt.Votes {
				drifted = true
			}
		}
		if !drifted {
			return nil
		}

		drift = &domain.CounterDrift{
			PollID:        pollID,
			RecordedTotal: poll.TotalVotes,
			Recorded:      recorded,
			Ledger:        ledger,
		}
		if !repair {
			return nil
		}
		if err := repos.Polls().SetCounters(ctx, pollID, ledger); err != nil {
			return err
		}
		drift.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if drift != nil {
		s.logger.Warn("counter drift", "poll_id", pollID, "recorded_total", drift.RecordedTotal, "repaired", drift.Repaired)
	}
	return drift, nil
}
