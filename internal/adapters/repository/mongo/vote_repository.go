package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type voteRepository struct {
	coll *mongo.Collection
}

func (r *voteRepository) Insert(ctx context.Context, vote *domain.VoteRecord) error {
	if _, err := r.coll.InsertOne(ctx, newVoteDocument(vote)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyVoted
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

func (r *voteRepository) Get(ctx context.Context, pollID uuid.UUID, userID string) (*domain.VoteRecord, error) {
	var doc voteDocument
	filter := bson.D{{Key: "poll_id", Value: pollID.String()}, {Key: "user_id", Value: userID}}
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return doc.toDomain()
}

func (r *voteRepository) UpdateOption(ctx context.Context, pollID uuid.UUID, userID string, from, to uuid.UUID) error {
	filter := bson.D{
		{Key: "poll_id", Value: pollID.String()},
		{Key: "user_id", Value: userID},
		{Key: "option_id", Value: from.String()},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "option_id", Value: to.String()},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrVoteNotFound
	}
	return nil
}

func (r *voteRepository) DeleteByPoll(ctx context.Context, pollID uuid.UUID) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "poll_id", Value: pollID.String()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete votes: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *voteRepository) CountByOption(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "poll_id", Value: pollID.String()}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$option_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer cur.Close(ctx)

	counts := make(map[uuid.UUID]int64)
	for cur.Next(ctx) {
		var row struct {
			OptionID string `bson:"_id"`
			Count    int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode vote count: %w", err)
		}
		optionID, err := uuid.Parse(row.OptionID)
		if err != nil {
			return nil, fmt.Errorf("invalid option id %q: %w", row.OptionID, err)
		}
		counts[optionID] = row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vote counts: %w", err)
	}
	return counts, nil
}
