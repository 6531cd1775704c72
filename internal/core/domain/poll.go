package domain

import (
	"time"

	"github.com/google/uuid"
)

type Poll struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	CreatorID  string     `json:"creator_id"`
	Options    []Option   `json:"options"`
	IsClosed   bool       `json:"is_closed"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	TotalVotes int64      `json:"total_votes"`
}

type Option struct {
	ID    uuid.UUID `json:"id"`
	Text  string    `json:"text"`
	Votes int64     `json:"votes"`
}

// PollFilter narrows poll listings. Zero values match everything.
type PollFilter struct {
	CreatorID  string
	ClosedOnly *bool
}

func (f PollFilter) Matches(p *Poll) bool {
	if f.CreatorID != "" && p.CreatorID != f.CreatorID {
		return false
	}
	if f.ClosedOnly != nil && p.IsClosed != *f.ClosedOnly {
		return false
	}
	return true
}

func (p *Poll) HasOption(id uuid.UUID) bool {
	return p.OptionIndex(id) >= 0
}

func (p *Poll) OptionIndex(id uuid.UUID) int {
	for i, opt := range p.Options {
		if opt.ID == id {
			return i
		}
	}
	return -1
}

// CountedVotes sums the per-option counters. At rest it equals TotalVotes.
func (p *Poll) CountedVotes() int64 {
	var sum int64
	for _, opt := range p.Options {
		sum += opt.Votes
	}
	return sum
}

func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]Option(nil), p.Options...)
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

// DeltaOutcome reports what an atomic counter delta did.
type DeltaOutcome int

const (
	DeltaApplied DeltaOutcome = iota
	// DeltaNoMatch means the poll is gone, closed, or has no such option.
	DeltaNoMatch
	// DeltaUnmodified means the target matched but the counter was left as is,
	// e.g. because the delta would have driven it below zero.
	DeltaUnmodified
)

func (o DeltaOutcome) String() string {
	switch o {
	case DeltaApplied:
		return "applied"
	case DeltaNoMatch:
		return "no match"
	case DeltaUnmodified:
		return "unmodified"
	default:
		return "unknown"
	}
}

// CounterDrift describes a poll whose counters disagree with its ledger.
type CounterDrift struct {
	PollID        uuid.UUID           `json:"poll_id"`
	RecordedTotal int64               `json:"recorded_total"`
	Recorded      map[uuid.UUID]int64 `json:"recorded"`
	Ledger        map[uuid.UUID]int64 `json:"ledger"`
	Repaired      bool                `json:"repaired"`
}
