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
	"go.mongodb.org/mongo-driver/mongo/options"
)

type pollRepository struct {
	coll *mongo.Collection
}

func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	if _, err := r.coll.InsertOne(ctx, newPollDocument(poll)); err != nil {
		return fmt.Errorf("failed to insert poll: %w", err)
	}
	return nil
}

func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	var doc pollDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	return doc.toDomain()
}

// GetForUpdate reads through the session snapshot. A concurrent writer to the
// same document makes one of the two transactions abort and retry.
func (r *pollRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	return r.GetByID(ctx, id)
}

func (r *pollRepository) List(ctx context.Context, filter domain.PollFilter) ([]*domain.Poll, error) {
	query := bson.D{}
	if filter.CreatorID != "" {
		query = append(query, bson.E{Key: "creator_id", Value: filter.CreatorID})
	}
	if filter.ClosedOnly != nil {
		query = append(query, bson.E{Key: "is_closed", Value: *filter.ClosedOnly})
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer cur.Close(ctx)

	var polls []*domain.Poll
	for cur.Next(ctx) {
		var doc pollDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode poll: %w", err)
		}
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("error iterating polls: %w", err)
	}
	return polls, nil
}

// ApplyOptionDelta relies on single-document atomicity: the matched option and
// total_votes are incremented by one update.
func (r *pollRepository) ApplyOptionDelta(ctx context.Context, pollID, optionID uuid.UUID, delta int64) (domain.DeltaOutcome, error) {
	target := bson.D{
		{Key: "_id", Value: pollID.String()},
		{Key: "is_closed", Value: false},
		{Key: "options.id", Value: optionID.String()},
	}
	if delta == 0 {
		return r.unmodifiedOrNoMatch(ctx, target)
	}

	filter := bson.D{
		{Key: "_id", Value: pollID.String()},
		{Key: "is_closed", Value: false},
		{Key: "options", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "id", Value: optionID.String()},
			{Key: "votes", Value: bson.D{{Key: "$gte", Value: -delta}}},
		}}}},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "options.$.votes", Value: delta},
			{Key: "total_votes", Value: delta},
		}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.DeltaNoMatch, fmt.Errorf("failed to apply option delta: %w", err)
	}
	if res.ModifiedCount > 0 {
		return domain.DeltaApplied, nil
	}
	return r.unmodifiedOrNoMatch(ctx, target)
}

func (r *pollRepository) unmodifiedOrNoMatch(ctx context.Context, target bson.D) (domain.DeltaOutcome, error) {
	n, err := r.coll.CountDocuments(ctx, target)
	if err != nil {
		return domain.DeltaNoMatch, fmt.Errorf("failed to check delta target: %w", err)
	}
	if n == 0 {
		return domain.DeltaNoMatch, nil
	}
	return domain.DeltaUnmodified, nil
}

func (r *pollRepository) SetClosed(ctx context.Context, id uuid.UUID, closed bool) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "is_closed", Value: closed},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	return r.updateOne(ctx, id, update, "failed to update poll state")
}

func (r *pollRepository) ResetCounters(ctx context.Context, id uuid.UUID) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "options.$[].votes", Value: int64(0)},
		{Key: "total_votes", Value: int64(0)},
		{Key: "is_closed", Value: false},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	return r.updateOne(ctx, id, update, "failed to reset poll")
}

func (r *pollRepository) SetCounters(ctx context.Context, id uuid.UUID, votes map[uuid.UUID]int64) error {
	poll, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	doc := newPollDocument(poll)
	var total int64
	for i := range doc.Options {
		n := votes[poll.Options[i].ID]
		doc.Options[i].Votes = n
		total += n
	}

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "options", Value: doc.Options},
		{Key: "total_votes", Value: total},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	return r.updateOne(ctx, id, update, "failed to set counters")
}

func (r *pollRepository) updateOne(ctx context.Context, id uuid.UUID, update bson.D, msg string) error {
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id.String()}}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPollNotFound
	}
	return nil
}
