package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	pollsCollection = "polls"
	votesCollection = "vote_records"
)

// Store backs polls and the ledger with two collections. Transactions need a
// replica set.
type Store struct {
	client *mongo.Client
	polls  *pollRepository
	votes  *voteRepository
}

type Config struct {
	URI      string
	Database string
	// Timeout bounds every driver operation.
	Timeout time.Duration
}

func Connect(ctx context.Context, cfg Config) (*Store, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := NewStore(client, cfg.Database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client: client,
		polls:  &pollRepository{coll: db.Collection(pollsCollection)},
		votes:  &voteRepository{coll: db.Collection(votesCollection)},
	}
}

// EnsureIndexes creates the unique (poll_id, user_id) ledger index that makes
// duplicate votes impossible.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.votes.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "poll_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("poll_user_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create vote indexes: %w", err)
	}

	_, err = s.polls.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "creator_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create poll indexes: %w", err)
	}
	return nil
}

func (s *Store) Polls() ports.PollRepository { return s.polls }

func (s *Store) Votes() ports.VoteRepository { return s.votes }

// WithinTx runs fn in a multi-document transaction. The driver retries fn on
// transient write conflicts, so fn must only touch storage through repos.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	ctx = context.WithoutCancel(ctx)

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	}, txOpts)
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
