package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store ports.Store
	polls ports.PollService
	votes ports.VoteService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.NewStore())
}

func newFixtureWith(t *testing.T, store ports.Store) *fixture {
	t.Helper()
	return &fixture{
		store: store,
		polls: services.NewPollService(store.Polls(), discard),
		votes: services.NewVoteService(store, discard),
	}
}

func (f *fixture) createPoll(t *testing.T, creatorID string, options ...string) *domain.Poll {
	t.Helper()
	poll, err := f.polls.Create(context.Background(), ports.CreatePollInput{
		Question:  gofakeit.Question(),
		Options:   options,
		CreatorID: creatorID,
	})
	require.NoError(t, err)
	return poll
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *domain.Poll {
	t.Helper()
	poll, err := f.polls.GetPoll(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, poll.TotalVotes, poll.CountedVotes(), "total_votes must equal the option sum")
	return poll
}

func votesOf(p *domain.Poll, optionID uuid.UUID) int64 {
	return p.Options[p.OptionIndex(optionID)].Votes
}

var errStorageDown = errors.New("storage unavailable")

// faultyStore fails ApplyOptionDelta for one option inside transactions.
type faultyStore struct {
	*memory.Store
	failOn uuid.UUID
}

func (s faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		return fn(ctx, faultyRepos{Repositories: repos, failOn: s.failOn})
	})
}

type faultyRepos struct {
	ports.Repositories
	failOn uuid.UUID
}

func (r faultyRepos) Polls() ports.PollRepository {
	return faultyPolls{PollRepository: r.Repositories.Polls(), failOn: r.failOn}
}

type faultyPolls struct {
	ports.PollRepository
	failOn uuid.UUID
}

func (p faultyPolls) ApplyOptionDelta(ctx context.Context, pollID, optionID uuid.UUID, delta int64) (domain.DeltaOutcome, error) {
	if optionID == p.failOn {
		return domain.DeltaNoMatch, errStorageDown
	}
	return p.PollRepository.ApplyOptionDelta(ctx, pollID, optionID, delta)
}
