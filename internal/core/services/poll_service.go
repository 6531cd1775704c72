package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type pollService struct {
	repo   ports.PollRepository
	logger *slog.Logger
}

func NewPollService(repo ports.PollRepository, logger *slog.Logger) ports.PollService {
	return &pollService{
		repo:   repo,
		logger: resolveLogger(logger),
	}
}

func (s *pollService) Create(ctx context.Context, input ports.CreatePollInput) (*domain.Poll, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	options, err := normalizeOptions(input.Options)
	if err != nil {
		return nil, err
	}

	poll := &domain.Poll{
		ID:        uuid.New(),
		Question:  question,
		CreatorID: input.CreatorID,
		CreatedAt: time.Now().UTC(),
	}
	for _, text := range options {
		poll.Options = append(poll.Options, domain.Option{
			ID:   uuid.New(),
			Text: text,
		})
	}

	if err := s.repo.Save(ctx, poll); err != nil {
		return nil, err
	}

	s.logger.Info("poll created", "poll_id", poll.ID, "creator_id", poll.CreatorID, "options", len(poll.Options))
	return poll, nil
}

// normalizeOptions trims every option and drops blanks. Duplicates are a
// client error rather than something to merge.
func normalizeOptions(raw []string) ([]string, error) {
	trimmed := make([]string, 0, len(raw))
	for _, opt := range raw {
		if t := strings.TrimSpace(opt); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) < 2 {
		return nil, domain.ErrTooFewOptions
	}

	seen := make(map[string]struct{}, len(trimmed))
	unique := make([]string, 0, len(trimmed))
	for _, t := range trimmed {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	if len(unique) < 2 {
		return nil, domain.ErrTooFewOptions
	}
	if len(unique) != len(trimmed) {
		return nil, domain.ErrDuplicateOptions
	}
	return unique, nil
}

func (s *pollService) GetPoll(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *pollService) ListPolls(ctx context.Context, input ports.ListPollsInput) ([]*domain.Poll, error) {
	polls, err := s.repo.List(ctx, domain.PollFilter{
		CreatorID:  input.CreatorID,
		ClosedOnly: input.Closed,
	})
	if err != nil {
		return nil, err
	}
	if polls == nil {
		polls = []*domain.Poll{}
	}
	return polls, nil
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
