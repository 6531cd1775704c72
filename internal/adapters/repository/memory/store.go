package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

// Store keeps polls and the vote ledger in process memory. Its mutex plays the
// role a database plays for the other adapters: every read, write and
// transaction is linearized through it.
type Store struct {
	mu sync.RWMutex

	polls map[uuid.UUID]*domain.Poll
	votes map[voteKey]*domain.VoteRecord
}

type voteKey struct {
	pollID uuid.UUID
	userID string
}

func NewStore() *Store {
	return &Store{
		polls: make(map[uuid.UUID]*domain.Poll),
		votes: make(map[voteKey]*domain.VoteRecord),
	}
}

func (s *Store) Polls() ports.PollRepository { return &pollRepository{store: s} }

func (s *Store) Votes() ports.VoteRepository { return &voteRepository{store: s} }

// WithinTx holds the write lock for the whole of fn. Entries are saved the
// first time fn changes them and put back unless fn returns nil, including
// when fn panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	undo := newUndoLog()
	committed := false
	defer func() {
		if !committed {
			undo.restore(s)
		}
	}()

	if err := fn(ctx, txRepositories{store: s, undo: undo}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

// undoLog keeps the pre-transaction value of every entry a transaction
// touched. A nil value means the entry did not exist.
type undoLog struct {
	polls map[uuid.UUID]*domain.Poll
	votes map[voteKey]*domain.VoteRecord
}

func newUndoLog() *undoLog {
	return &undoLog{
		polls: make(map[uuid.UUID]*domain.Poll),
		votes: make(map[voteKey]*domain.VoteRecord),
	}
}

func (u *undoLog) savePoll(s *Store, id uuid.UUID) {
	if u == nil {
		return
	}
	if _, saved := u.polls[id]; saved {
		return
	}
	if p, ok := s.polls[id]; ok {
		u.polls[id] = p.Clone()
	} else {
		u.polls[id] = nil
	}
}

func (u *undoLog) saveVote(s *Store, key voteKey) {
	if u == nil {
		return
	}
	if _, saved := u.votes[key]; saved {
		return
	}
	if v, ok := s.votes[key]; ok {
		c := *v
		u.votes[key] = &c
	} else {
		u.votes[key] = nil
	}
}

func (u *undoLog) restore(s *Store) {
	for id, p := range u.polls {
		if p == nil {
			delete(s.polls, id)
			continue
		}
		s.polls[id] = p
	}
	for key, v := range u.votes {
		if v == nil {
			delete(s.votes, key)
			continue
		}
		s.votes[key] = v
	}
}

type txRepositories struct {
	store *Store
	undo  *undoLog
}

func (r txRepositories) Polls() ports.PollRepository {
	return &pollRepository{store: r.store, undo: r.undo}
}

func (r txRepositories) Votes() ports.VoteRepository {
	return &voteRepository{store: r.store, undo: r.undo}
}

// guard takes the store lock unless the caller already holds it through WithinTx.
type guard struct {
	store *Store
	inTx  bool
}

func (g guard) lock() func() {
	if g.inTx {
		return func() {}
	}
	g.store.mu.Lock()
	return g.store.mu.Unlock
}

func (g guard) rlock() func() {
	if g.inTx {
		return func() {}
	}
	g.store.mu.RLock()
	return g.store.mu.RUnlock
}

// pollRepository and voteRepository run inside a transaction when undo is set.
type pollRepository struct {
	store *Store
	undo  *undoLog
}

func (r *pollRepository) guard() guard { return guard{store: r.store, inTx: r.undo != nil} }

func (r *pollRepository) Save(_ context.Context, poll *domain.Poll) error {
	defer r.guard().lock()()

	r.undo.savePoll(r.store, poll.ID)
	r.store.polls[poll.ID] = poll.Clone()
	return nil
}

func (r *pollRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	defer r.guard().rlock()()

	p, ok := r.store.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	return p.Clone(), nil
}

func (r *pollRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	return r.GetByID(ctx, id)
}

func (r *pollRepository) List(_ context.Context, filter domain.PollFilter) ([]*domain.Poll, error) {
	defer r.guard().rlock()()

	polls := make([]*domain.Poll, 0, len(r.store.polls))
	for _, p := range r.store.polls {
		if filter.Matches(p) {
			polls = append(polls, p.Clone())
		}
	}
	sort.Slice(polls, func(i, j int) bool {
		if !polls[i].CreatedAt.Equal(polls[j].CreatedAt) {
			return polls[i].CreatedAt.After(polls[j].CreatedAt)
		}
		return polls[i].ID.String() < polls[j].ID.String()
	})
	return polls, nil
}

func (r *pollRepository) ApplyOptionDelta(_ context.Context, pollID, optionID uuid.UUID, delta int64) (domain.DeltaOutcome, error) {
	defer r.guard().lock()()

	p, ok := r.store.polls[pollID]
	if !ok || p.IsClosed {
		return domain.DeltaNoMatch, nil
	}
	idx := p.OptionIndex(optionID)
	if idx < 0 {
		return domain.DeltaNoMatch, nil
	}
	if delta == 0 || p.Options[idx].Votes+delta < 0 {
		return domain.DeltaUnmodified, nil
	}

	r.undo.savePoll(r.store, pollID)
	p.Options[idx].Votes += delta
	p.TotalVotes += delta
	touch(p)
	return domain.DeltaApplied, nil
}

func (r *pollRepository) SetClosed(_ context.Context, id uuid.UUID, closed bool) error {
	defer r.guard().lock()()

	p, ok := r.store.polls[id]
	if !ok {
		return domain.ErrPollNotFound
	}
	r.undo.savePoll(r.store, id)
	p.IsClosed = closed
	touch(p)
	return nil
}

func (r *pollRepository) ResetCounters(_ context.Context, id uuid.UUID) error {
	defer r.guard().lock()()

	p, ok := r.store.polls[id]
	if !ok {
		return domain.ErrPollNotFound
	}
	r.undo.savePoll(r.store, id)
	for i := range p.Options {
		p.Options[i].Votes = 0
	}
	p.TotalVotes = 0
	p.IsClosed = false
	touch(p)
	return nil
}

func (r *pollRepository) SetCounters(_ context.Context, id uuid.UUID, votes map[uuid.UUID]int64) error {
	defer r.guard().lock()()

	p, ok := r.store.polls[id]
	if !ok {
		return domain.ErrPollNotFound
	}
	r.undo.savePoll(r.store, id)
	for i := range p.Options {
		p.Options[i].Votes = votes[p.Options[i].ID]
	}
	p.TotalVotes = p.CountedVotes()
	touch(p)
	return nil
}

func touch(p *domain.Poll) {
	now := time.Now().UTC()
	p.UpdatedAt = &now
}

type voteRepository struct {
	store *Store
	undo  *undoLog
}

func (r *voteRepository) guard() guard { return guard{store: r.store, inTx: r.undo != nil} }

func (r *voteRepository) Insert(_ context.Context, vote *domain.VoteRecord) error {
	defer r.guard().lock()()

	key := voteKey{pollID: vote.PollID, userID: vote.UserID}
	if _, exists := r.store.votes[key]; exists {
		return domain.ErrAlreadyVoted
	}
	r.undo.saveVote(r.store, key)
	c := *vote
	r.store.votes[key] = &c
	return nil
}

func (r *voteRepository) Get(_ context.Context, pollID uuid.UUID, userID string) (*domain.VoteRecord, error) {
	defer r.guard().rlock()()

	v, ok := r.store.votes[voteKey{pollID: pollID, userID: userID}]
	if !ok {
		return nil, domain.ErrVoteNotFound
	}
	c := *v
	return &c, nil
}

func (r *voteRepository) UpdateOption(_ context.Context, pollID uuid.UUID, userID string, from, to uuid.UUID) error {
	defer r.guard().lock()()

	key := voteKey{pollID: pollID, userID: userID}
	v, ok := r.store.votes[key]
	if !ok || v.OptionID != from {
		return domain.ErrVoteNotFound
	}
	r.undo.saveVote(r.store, key)
	now := time.Now().UTC()
	v.OptionID = to
	v.UpdatedAt = &now
	return nil
}

func (r *voteRepository) DeleteByPoll(_ context.Context, pollID uuid.UUID) (int64, error) {
	defer r.guard().lock()()

	var n int64
	for k := range r.store.votes {
		if k.pollID == pollID {
			r.undo.saveVote(r.store, k)
			delete(r.store.votes, k)
			n++
		}
	}
	return n, nil
}

func (r *voteRepository) CountByOption(_ context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error) {
	defer r.guard().rlock()()

	counts := make(map[uuid.UUID]int64)
	for k, v := range r.store.votes {
		if k.pollID == pollID {
			counts[v.OptionID]++
		}
	}
	return counts, nil
}
