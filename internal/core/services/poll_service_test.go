package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

func TestCreatePoll(t *testing.T) {
	f := newFixture(t)

	poll, err := f.polls.Create(context.Background(), ports.CreatePollInput{
		Question:  "  Best color?  ",
		Options:   []string{" Red ", "Blue", "   "},
		CreatorID: "u1",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, poll.ID)
	assert.Equal(t, "Best color?", poll.Question)
	assert.Equal(t, "u1", poll.CreatorID)
	assert.False(t, poll.IsClosed)
	assert.Zero(t, poll.TotalVotes)
	require.Len(t, poll.Options, 2)
	assert.Equal(t, "Red", poll.Options[0].Text)
	assert.Equal(t, "Blue", poll.Options[1].Text)
	assert.NotEqual(t, poll.Options[0].ID, poll.Options[1].ID)

	stored := f.get(t, poll.ID)
	assert.Equal(t, poll.Options, stored.Options)
}

func TestCreatePoll_Validation(t *testing.T) {
	tests := []struct {
		name     string
		question string
		options  []string
		want     error
	}{
		{"empty question", "  ", []string{"A", "B"}, domain.ErrEmptyQuestion},
		{"no options", "Q?", nil, domain.ErrTooFewOptions},
		{"one option", "Q?", []string{"A"}, domain.ErrTooFewOptions},
		{"blank options dropped", "Q?", []string{"A", " ", ""}, domain.ErrTooFewOptions},
		{"all duplicates", "Q?", []string{"A", " A "}, domain.ErrTooFewOptions},
		{"some duplicates", "Q?", []string{"A", "B", "A"}, domain.ErrDuplicateOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.polls.Create(context.Background(), ports.CreatePollInput{
				Question:  tt.question,
				Options:   tt.options,
				CreatorID: "u1",
			})
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrValidation)

			polls, err := f.polls.ListPolls(context.Background(), ports.ListPollsInput{})
			require.NoError(t, err)
			assert.Empty(t, polls)
		})
	}
}

func TestCreatePoll_CaseSensitiveOptionsAreDistinct(t *testing.T) {
	f := newFixture(t)
	poll := f.createPoll(t, "u1", "yes", "Yes")
	assert.Len(t, poll.Options, 2)
}

func TestGetPoll_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.polls.GetPoll(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPolls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.createPoll(t, "u1", "A", "B")
	f.createPoll(t, "u2", "A", "B")
	_, err := f.votes.ClosePoll(ctx, p1.ID, "u1")
	require.NoError(t, err)

	all, err := f.polls.ListPolls(ctx, ports.ListPollsInput{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.polls.ListPolls(ctx, ports.ListPollsInput{CreatorID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p1.ID, mine[0].ID)

	open := false
	openPolls, err := f.polls.ListPolls(ctx, ports.ListPollsInput{Closed: &open})
	require.NoError(t, err)
	require.Len(t, openPolls, 1)
	assert.Equal(t, "u2", openPolls[0].CreatorID)

	none, err := f.polls.ListPolls(ctx, ports.ListPollsInput{CreatorID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
