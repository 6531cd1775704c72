// Package storetest holds the behaviour every ports.Store implementation must
// share. Adapter packages run it against their own backend.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

// NewPoll builds an unsaved open poll with the given option texts.
func NewPoll(creatorID string, texts ...string) *domain.Poll {
	p := &domain.Poll{
		ID:        uuid.New(),
		Question:  "Which one?",
		CreatorID: creatorID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, text := range texts {
		p.Options = append(p.Options, domain.Option{ID: uuid.New(), Text: text})
	}
	return p
}

func newVote(pollID, optionID uuid.UUID, userID string) *domain.VoteRecord {
	return &domain.VoteRecord{
		ID:        uuid.New(),
		PollID:    pollID,
		UserID:    userID,
		OptionID:  optionID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises store. Each subtest creates its own polls, so a single store
// may be shared.
func Run(t *testing.T, store ports.Store) {
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, store) })
	t.Run("List", func(t *testing.T) { testList(t, store) })
	t.Run("ApplyOptionDelta", func(t *testing.T) { testApplyOptionDelta(t, store) })
	t.Run("LedgerUniqueness", func(t *testing.T) { testLedgerUniqueness(t, store) })
	t.Run("UpdateOption", func(t *testing.T) { testUpdateOption(t, store) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, store) })
	t.Run("ResetAndPurge", func(t *testing.T) { testResetAndPurge(t, store) })
	t.Run("SetCounters", func(t *testing.T) { testSetCounters(t, store) })
	t.Run("ConcurrentDeltas", func(t *testing.T) { testConcurrentDeltas(t, store) })
	t.Run("ConcurrentSameUserInsert", func(t *testing.T) { testConcurrentSameUserInsert(t, store) })
	t.Run("VotesDuringReset", func(t *testing.T) { testVotesDuringReset(t, store) })
}

func save(t *testing.T, store ports.Store, p *domain.Poll) {
	t.Helper()
	require.NoError(t, store.Polls().Save(context.Background(), p))
}

func testSaveAndGet(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "Red", "Blue", "Green")
	save(t, store, p)

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Question, got.Question)
	assert.Equal(t, "creator-1", got.CreatorID)
	assert.False(t, got.IsClosed)
	assert.Zero(t, got.TotalVotes)
	require.Len(t, got.Options, 3)
	for i, opt := range p.Options {
		assert.Equal(t, opt.ID, got.Options[i].ID, "option order must be stable")
		assert.Equal(t, opt.Text, got.Options[i].Text)
	}

	_, err = store.Polls().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func testList(t *testing.T, store ports.Store) {
	ctx := context.Background()
	creator := "list-" + uuid.NewString()
	open := NewPoll(creator, "A", "B")
	closed := NewPoll(creator, "C", "D")
	closed.CreatedAt = open.CreatedAt.Add(time.Second)
	save(t, store, open)
	save(t, store, closed)
	require.NoError(t, store.Polls().SetClosed(ctx, closed.ID, true))

	all, err := store.Polls().List(ctx, domain.PollFilter{CreatorID: creator})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, closed.ID, all[0].ID, "newest first")

	yes := true
	onlyClosed, err := store.Polls().List(ctx, domain.PollFilter{CreatorID: creator, ClosedOnly: &yes})
	require.NoError(t, err)
	require.Len(t, onlyClosed, 1)
	assert.Equal(t, closed.ID, onlyClosed[0].ID)

	none, err := store.Polls().List(ctx, domain.PollFilter{CreatorID: "nobody-" + uuid.NewString()})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testApplyOptionDelta(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)
	a := p.Options[0].ID

	out, err := store.Polls().ApplyOptionDelta(ctx, p.ID, a, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeltaApplied, out)

	out, err = store.Polls().ApplyOptionDelta(ctx, p.ID, a, -2)
	require.NoError(t, err)
	assert.Equal(t, domain.DeltaUnmodified, out, "counter must not go negative")

	out, err = store.Polls().ApplyOptionDelta(ctx, p.ID, uuid.New(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeltaNoMatch, out)

	out, err = store.Polls().ApplyOptionDelta(ctx, uuid.New(), a, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeltaNoMatch, out)

	require.NoError(t, store.Polls().SetClosed(ctx, p.ID, true))
	out, err = store.Polls().ApplyOptionDelta(ctx, p.ID, a, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeltaNoMatch, out, "closed polls do not match")

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Options[0].Votes)
	assert.EqualValues(t, 1, got.TotalVotes)
	assert.Equal(t, got.TotalVotes, got.CountedVotes())
}

func testLedgerUniqueness(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)

	require.NoError(t, store.Votes().Insert(ctx, newVote(p.ID, p.Options[0].ID, "u1")))
	err := store.Votes().Insert(ctx, newVote(p.ID, p.Options[1].ID, "u1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	other := NewPoll("creator-1", "A", "B")
	save(t, store, other)
	require.NoError(t, store.Votes().Insert(ctx, newVote(other.ID, other.Options[0].ID, "u1")),
		"the same user may vote on another poll")

	v, err := store.Votes().Get(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, p.Options[0].ID, v.OptionID)

	_, err = store.Votes().Get(ctx, p.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrVoteNotFound)
}

func testUpdateOption(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)
	a, b := p.Options[0].ID, p.Options[1].ID
	require.NoError(t, store.Votes().Insert(ctx, newVote(p.ID, a, "u1")))

	require.NoError(t, store.Votes().UpdateOption(ctx, p.ID, "u1", a, b))
	v, err := store.Votes().Get(ctx, p.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, b, v.OptionID)

	err = store.Votes().UpdateOption(ctx, p.ID, "u1", a, b)
	assert.ErrorIs(t, err, domain.ErrVoteNotFound, "stale from option must not match")
}

func testTxRollback(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)
	a := p.Options[0].ID

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Votes().Insert(ctx, newVote(p.ID, a, "u1")); err != nil {
			return err
		}
		if _, err := repos.Polls().ApplyOptionDelta(ctx, p.ID, a, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Votes().Get(ctx, p.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrVoteNotFound)
	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalVotes)
	assert.Zero(t, got.Options[0].Votes)
}

func testResetAndPurge(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	q := NewPoll("creator-1", "A", "B")
	save(t, store, p)
	save(t, store, q)

	for _, poll := range []*domain.Poll{p, q} {
		require.NoError(t, store.Votes().Insert(ctx, newVote(poll.ID, poll.Options[0].ID, "u1")))
		_, err := store.Polls().ApplyOptionDelta(ctx, poll.ID, poll.Options[0].ID, 1)
		require.NoError(t, err)
	}
	require.NoError(t, store.Polls().SetClosed(ctx, p.ID, true))

	err := store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Polls().ResetCounters(ctx, p.ID); err != nil {
			return err
		}
		n, err := repos.Votes().DeleteByPoll(ctx, p.ID)
		assert.EqualValues(t, 1, n)
		return err
	})
	require.NoError(t, err)

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsClosed)
	assert.Zero(t, got.TotalVotes)
	for _, opt := range got.Options {
		assert.Zero(t, opt.Votes)
	}
	_, err = store.Votes().Get(ctx, p.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrVoteNotFound)

	untouched, err := store.Polls().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, untouched.TotalVotes)
	_, err = store.Votes().Get(ctx, q.ID, "u1")
	assert.NoError(t, err)

	assert.ErrorIs(t, store.Polls().ResetCounters(ctx, uuid.New()), domain.ErrPollNotFound)
	assert.ErrorIs(t, store.Polls().SetClosed(ctx, uuid.New(), true), domain.ErrPollNotFound)
}

func testSetCounters(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)
	a, b := p.Options[0].ID, p.Options[1].ID
	require.NoError(t, store.Votes().Insert(ctx, newVote(p.ID, b, "u1")))
	require.NoError(t, store.Votes().Insert(ctx, newVote(p.ID, b, "u2")))

	counts, err := store.Votes().CountByOption(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{b: 2}, counts)

	err = store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if _, err := repos.Polls().GetForUpdate(ctx, p.ID); err != nil {
			return err
		}
		return repos.Polls().SetCounters(ctx, p.ID, counts)
	})
	require.NoError(t, err)

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Options[got.OptionIndex(a)].Votes)
	assert.EqualValues(t, 2, got.Options[got.OptionIndex(b)].Votes)
	assert.EqualValues(t, 2, got.TotalVotes)
}

func testConcurrentDeltas(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)
	a := p.Options[0].ID

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := store.Polls().ApplyOptionDelta(ctx, p.ID, a, 1)
			if err == nil && out != domain.DeltaApplied {
				err = errors.New("delta not applied: " + out.String())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, got.Options[0].Votes)
	assert.EqualValues(t, n, got.TotalVotes)
}

func testConcurrentSameUserInsert(t *testing.T, store ports.Store) {
	ctx := context.Background()
	p := NewPoll("creator-1", "A", "B")
	save(t, store, p)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
				return repos.Votes().Insert(ctx, newVote(p.ID, p.Options[0].ID, "same-user"))
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrAlreadyVoted):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, rejected)
}

// testVotesDuringReset races vote changes and casts against a reset of the
// same poll. Every caller must get a domain answer, and the counters must
// match the ledger afterwards.
func testVotesDuringReset(t *testing.T, store ports.Store) {
	ctx := context.Background()
	votes := services.NewVoteService(store, nil)

	for round := 0; round < 5; round++ {
		p := NewPoll("creator-1", "A", "B")
		save(t, store, p)
		a, b := p.Options[0].ID, p.Options[1].ID

		const users = 6
		for i := 0; i < users; i++ {
			_, err := votes.CastVote(ctx, ports.VoteInput{PollID: p.ID, OptionID: a, UserID: userName(i)})
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 2*users+1)
		for i := 0; i < users; i++ {
			wg.Add(2)
			go func(user string) {
				defer wg.Done()
				_, err := votes.ChangeVote(ctx, ports.VoteInput{PollID: p.ID, OptionID: b, UserID: user})
				errs <- err
			}(userName(i))
			go func(user string) {
				defer wg.Done()
				_, err := votes.CastVote(ctx, ports.VoteInput{PollID: p.ID, OptionID: b, UserID: user + "-late"})
				errs <- err
			}(userName(i))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := votes.ResetPoll(ctx, p.ID, "creator-1")
			errs <- err
		}()
		wg.Wait()
		close(errs)

		for err := range errs {
			if err == nil {
				continue
			}
			assert.NotErrorIs(t, err, domain.ErrInternal)
			assert.True(t, errors.Is(err, domain.ErrBadRequest) || errors.Is(err, domain.ErrConflict),
				"unexpected error: %v", err)
		}

		got, err := store.Polls().GetByID(ctx, p.ID)
		require.NoError(t, err)
		ledger, err := store.Votes().CountByOption(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger[a], got.Options[0].Votes)
		assert.Equal(t, ledger[b], got.Options[1].Votes)
		assert.Equal(t, got.CountedVotes(), got.TotalVotes)
	}
}

func userName(i int) string {
	return "racer-" + strconv.Itoa(i)
}
