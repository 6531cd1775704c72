package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/storetest"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

func TestStore(t *testing.T) {
	storetest.Run(t, NewStore())
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := storetest.NewPoll("creator-1", "A", "B")
	require.NoError(t, store.Polls().Save(ctx, p))

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.Options[0].Votes = 99
	got.TotalVotes = 99

	again, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, again.TotalVotes)
	assert.Zero(t, again.Options[0].Votes)
}

func TestStore_ReadersNeverSeeHalfAppliedTx(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := storetest.NewPoll("creator-1", "A", "B")
	require.NoError(t, store.Polls().Save(ctx, p))
	a, b := p.Options[0].ID, p.Options[1].ID
	_, err := store.Polls().ApplyOptionDelta(ctx, p.ID, a, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			got, err := store.Polls().GetByID(ctx, p.ID)
			if !assert.NoError(t, err) {
				return
			}
			assert.EqualValues(t, 1, got.TotalVotes)
			assert.Equal(t, got.TotalVotes, got.CountedVotes())
		}
	}()

	for i := 0; i < 200; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		err := store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
			out, err := repos.Polls().ApplyOptionDelta(ctx, p.ID, from, -1)
			if err != nil {
				return err
			}
			require.Equal(t, domain.DeltaApplied, out)
			out, err = repos.Polls().ApplyOptionDelta(ctx, p.ID, to, 1)
			require.Equal(t, domain.DeltaApplied, out)
			return err
		})
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
}

func TestStore_WithinTx_PanicRestoresState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := storetest.NewPoll("creator-1", "A", "B")
	require.NoError(t, store.Polls().Save(ctx, p))
	a := p.Options[0].ID
	require.NoError(t, store.Votes().Insert(ctx, &domain.VoteRecord{PollID: p.ID, UserID: "alice", OptionID: a}))
	_, err := store.Polls().ApplyOptionDelta(ctx, p.ID, a, 1)
	require.NoError(t, err)

	added := storetest.NewPoll("creator-2", "X", "Y")
	assert.PanicsWithValue(t, "boom", func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
			require.NoError(t, repos.Polls().ResetCounters(ctx, p.ID))
			_, err := repos.Votes().DeleteByPoll(ctx, p.ID)
			require.NoError(t, err)
			require.NoError(t, repos.Polls().Save(ctx, added))
			panic("boom")
		})
	})

	got, err := store.Polls().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalVotes)
	assert.EqualValues(t, 1, got.Options[0].Votes)

	vote, err := store.Votes().Get(ctx, p.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, a, vote.OptionID)

	_, err = store.Polls().GetByID(ctx, added.ID)
	assert.ErrorIs(t, err, domain.ErrPollNotFound)

	// the lock was released on the way out
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		return repos.Polls().SetClosed(ctx, p.ID, true)
	}))
}

func TestStore_WithinTx_ErrorRestoresOnlyTouchedEntries(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	touched := storetest.NewPoll("creator-1", "A", "B")
	other := storetest.NewPoll("creator-1", "C", "D")
	require.NoError(t, store.Polls().Save(ctx, touched))
	require.NoError(t, store.Polls().Save(ctx, other))
	a, b := touched.Options[0].ID, touched.Options[1].ID
	require.NoError(t, store.Votes().Insert(ctx, &domain.VoteRecord{PollID: touched.ID, UserID: "alice", OptionID: a}))
	_, err := store.Polls().ApplyOptionDelta(ctx, touched.ID, a, 1)
	require.NoError(t, err)

	errAbort := errors.New("abort")
	err = store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if _, err := repos.Polls().ApplyOptionDelta(ctx, touched.ID, a, -1); err != nil {
			return err
		}
		if _, err := repos.Polls().ApplyOptionDelta(ctx, touched.ID, b, 1); err != nil {
			return err
		}
		if err := repos.Votes().UpdateOption(ctx, touched.ID, "alice", a, b); err != nil {
			return err
		}
		if err := repos.Votes().Insert(ctx, &domain.VoteRecord{PollID: touched.ID, UserID: "bob", OptionID: b}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	got, err := store.Polls().GetByID(ctx, touched.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Options[0].Votes)
	assert.Zero(t, got.Options[1].Votes)
	assert.EqualValues(t, 1, got.TotalVotes)

	vote, err := store.Votes().Get(ctx, touched.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, a, vote.OptionID)
	_, err = store.Votes().Get(ctx, touched.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrVoteNotFound)

	// changes to an untouched poll made after the rollback stay in place
	_, err = store.Polls().ApplyOptionDelta(ctx, other.ID, other.Options[0].ID, 1)
	require.NoError(t, err)
	require.ErrorIs(t, store.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Polls().SetClosed(ctx, touched.ID, true); err != nil {
			return err
		}
		return errAbort
	}), errAbort)
	untouched, err := store.Polls().GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, untouched.TotalVotes)
	closed, err := store.Polls().GetByID(ctx, touched.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsClosed)
}
