package mongo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type pollDocument struct {
	ID         string           `bson:"_id"`
	Question   string           `bson:"question"`
	CreatorID  string           `bson:"creator_id"`
	Options    []optionDocument `bson:"options"`
	IsClosed   bool             `bson:"is_closed"`
	CreatedAt  time.Time        `bson:"created_at"`
	UpdatedAt  *time.Time       `bson:"updated_at,omitempty"`
	TotalVotes int64            `bson:"total_votes"`
}

type optionDocument struct {
	ID    string `bson:"id"`
	Text  string `bson:"text"`
	Votes int64  `bson:"votes"`
}

type voteDocument struct {
	ID        string     `bson:"_id"`
	PollID    string     `bson:"poll_id"`
	UserID    string     `bson:"user_id"`
	OptionID  string     `bson:"option_id"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty"`
}

func newPollDocument(p *domain.Poll) pollDocument {
	doc := pollDocument{
		ID:         p.ID.String(),
		Question:   p.Question,
		CreatorID:  p.CreatorID,
		IsClosed:   p.IsClosed,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		TotalVotes: p.TotalVotes,
	}
	for _, opt := range p.Options {
		doc.Options = append(doc.Options, optionDocument{ID: opt.ID.String(), Text: opt.Text, Votes: opt.Votes})
	}
	return doc
}

func (d pollDocument) toDomain() (*domain.Poll, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid poll id %q: %w", d.ID, err)
	}
	p := &domain.Poll{
		ID:         id,
		Question:   d.Question,
		CreatorID:  d.CreatorID,
		IsClosed:   d.IsClosed,
		CreatedAt:  d.CreatedAt.UTC(),
		TotalVotes: d.TotalVotes,
		Options:    make([]domain.Option, 0, len(d.Options)),
	}
	if d.UpdatedAt != nil {
		t := d.UpdatedAt.UTC()
		p.UpdatedAt = &t
	}
	for _, o := range d.Options {
		optID, err := uuid.Parse(o.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid option id %q: %w", o.ID, err)
		}
		p.Options = append(p.Options, domain.Option{ID: optID, Text: o.Text, Votes: o.Votes})
	}
	return p, nil
}

func newVoteDocument(v *domain.VoteRecord) voteDocument {
	return voteDocument{
		ID:        v.ID.String(),
		PollID:    v.PollID.String(),
		UserID:    v.UserID,
		OptionID:  v.OptionID.String(),
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func (d voteDocument) toDomain() (*domain.VoteRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid vote id %q: %w", d.ID, err)
	}
	pollID, err := uuid.Parse(d.PollID)
	if err != nil {
		return nil, fmt.Errorf("invalid poll id %q: %w", d.PollID, err)
	}
	optionID, err := uuid.Parse(d.OptionID)
	if err != nil {
		return nil, fmt.Errorf("invalid option id %q: %w", d.OptionID, err)
	}
	v := &domain.VoteRecord{
		ID:        id,
		PollID:    pollID,
		UserID:    d.UserID,
		OptionID:  optionID,
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.UpdatedAt != nil {
		t := d.UpdatedAt.UTC()
		v.UpdatedAt = &t
	}
	return v, nil
}
