package domain

import (
	"time"

	"github.com/google/uuid"
)

// VoteRecord is the ledger entry for one (poll, user) pair.
type VoteRecord struct {
	ID        uuid.UUID  `json:"id"`
	PollID    uuid.UUID  `json:"poll_id"`
	UserID    string     `json:"user_id"`
	OptionID  uuid.UUID  `json:"option_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type VoteStatus struct {
	HasVoted bool       `json:"has_voted"`
	OptionID *uuid.UUID `json:"option_id,omitempty"`
}
