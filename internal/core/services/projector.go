package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

const (
	DefaultStreamInterval  = time.Second
	DefaultStreamKeepAlive = 30 * time.Second
)

type ProjectorOptions struct {
	Interval  time.Duration
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// resultProjector re-reads polls on a timer and emits a snapshot only when it
// differs from the last one sent to that subscriber. It holds no state of its
// own: every subscription keeps its own last-sent snapshots.
type resultProjector struct {
	polls     ports.PollReader
	interval  time.Duration
	keepAlive time.Duration
	logger    *slog.Logger
}

func NewResultProjector(polls ports.PollReader, opts ProjectorOptions) ports.ResultProjector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultStreamInterval
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultStreamKeepAlive
	}
	return &resultProjector{
		polls:     polls,
		interval:  opts.Interval,
		keepAlive: opts.KeepAlive,
		logger:    resolveLogger(opts.Logger),
	}
}

// snapshot is the part of a poll whose change is worth an event.
type snapshot struct {
	totalVotes int64
	isClosed   bool
	votes      []int64
}

func snapshotOf(p *domain.Poll) snapshot {
	s := snapshot{totalVotes: p.TotalVotes, isClosed: p.IsClosed, votes: make([]int64, len(p.Options))}
	for i, opt := range p.Options {
		s.votes[i] = opt.Votes
	}
	return s
}

func (s snapshot) differs(o snapshot) bool {
	if s.totalVotes != o.totalVotes || s.isClosed != o.isClosed || len(s.votes) != len(o.votes) {
		return true
	}
	for i := range s.votes {
		if s.votes[i] != o.votes[i] {
			return true
		}
	}
	return false
}

func (p *resultProjector) WatchPoll(ctx context.Context, pollID uuid.UUID) (<-chan domain.StreamEvent, error) {
	poll, err := p.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent)
	go p.watchPoll(ctx, poll, events)
	return events, nil
}

func (p *resultProjector) watchPoll(ctx context.Context, first *domain.Poll, events chan<- domain.StreamEvent) {
	defer close(events)

	if !send(ctx, events, domain.StreamEvent{Kind: domain.EventSnapshot, Poll: first}) || first.IsClosed {
		return
	}
	last := snapshotOf(first)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	keepAlive := time.NewTicker(p.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if !send(ctx, events, domain.StreamEvent{Kind: domain.EventKeepAlive}) {
				return
			}
		case <-ticker.C:
			poll, err := p.polls.GetByID(ctx, first.ID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("stream read failed", "poll_id", first.ID, "error", err)
				send(ctx, events, domain.StreamEvent{Kind: domain.EventError, Err: err})
				return
			}

			current := snapshotOf(poll)
			if current.differs(last) {
				if !send(ctx, events, domain.StreamEvent{Kind: domain.EventSnapshot, Poll: poll}) {
					return
				}
				last = current
			}
			if poll.IsClosed {
				return
			}
		}
	}
}

func (p *resultProjector) WatchPolls(ctx context.Context, filter domain.PollFilter) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent)
	go p.watchPolls(ctx, filter, events)
	return events
}

func (p *resultProjector) watchPolls(ctx context.Context, filter domain.PollFilter, events chan<- domain.StreamEvent) {
	defer close(events)

	seen := make(map[uuid.UUID]snapshot)
	scan := func() bool {
		polls, err := p.polls.List(ctx, filter)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Error("stream list failed", "error", err)
			return send(ctx, events, domain.StreamEvent{Kind: domain.EventError, Err: err})
		}

		next := make(map[uuid.UUID]snapshot, len(polls))
		for _, poll := range polls {
			current := snapshotOf(poll)
			next[poll.ID] = current
			if prev, ok := seen[poll.ID]; ok && !current.differs(prev) {
				continue
			}
			if !send(ctx, events, domain.StreamEvent{Kind: domain.EventSnapshot, Poll: poll}) {
				return false
			}
		}
		seen = next
		return true
	}

	if !scan() {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	keepAlive := time.NewTicker(p.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if !send(ctx, events, domain.StreamEvent{Kind: domain.EventKeepAlive}) {
				return
			}
		case <-ticker.C:
			if !scan() {
				return
			}
		}
	}
}

func send(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

