package ports

import "context"

type Repositories interface {
	Polls() PollRepository
	Votes() VoteRepository
}

// Store is the storage collaborator. WithinTx runs fn with repositories bound
// to one atomic unit: everything fn writes commits together or not at all.
// Once started, the unit is not cancelled by the caller's context.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close(ctx context.Context) error
}
