package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type ResultProjector interface {
	// WatchPoll fails up front when the poll does not exist. The channel is
	// closed after the closed snapshot is sent or when ctx is done.
	WatchPoll(ctx context.Context, pollID uuid.UUID) (<-chan domain.StreamEvent, error)
	WatchPolls(ctx context.Context, filter domain.PollFilter) <-chan domain.StreamEvent
}
