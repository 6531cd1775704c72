package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type VoteHandler struct {
	service ports.VoteService
	logger  *slog.Logger
}

func NewVoteHandler(service ports.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		service: service,
		logger:  logger,
	}
}

type voteRequest struct {
	OptionID string `json:"option_id"`
}

// CastVote godoc
// @Summary      Casts the caller's vote
// @Tags         votes
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Poll ID"
// @Success      200  {object}  domain.Poll
// @Failure      400
// @Failure      404
// @Failure      409
// @Router       /polls/{id}/vote [post]
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	input, ok := h.voteInput(w, r)
	if !ok {
		return
	}

	poll, err := h.service.CastVote(r.Context(), input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

// ChangeVote godoc
// @Summary      Moves the caller's vote to another option
// @Tags         votes
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Poll ID"
// @Success      200  {object}  domain.Poll
// @Failure      400
// @Failure      404
// @Failure      409
// @Router       /polls/{id}/change-vote [post]
func (h *VoteHandler) ChangeVote(w http.ResponseWriter, r *http.Request) {
	input, ok := h.voteInput(w, r)
	if !ok {
		return
	}

	poll, err := h.service.ChangeVote(r.Context(), input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

func (h *VoteHandler) CheckVote(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	userID, ok := principalFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing user context")
		return
	}

	status, err := h.service.CheckVote(r.Context(), pollID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *VoteHandler) ClosePoll(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.ClosePoll)
}

func (h *VoteHandler) ResetPoll(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.ResetPoll)
}

type lifecycleFunc func(ctx context.Context, pollID uuid.UUID, callerID string) (*domain.Poll, error)

func (h *VoteHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn lifecycleFunc) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	userID, ok := principalFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing user context")
		return
	}

	poll, err := fn(r.Context(), pollID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

func (h *VoteHandler) voteInput(w http.ResponseWriter, r *http.Request) (ports.VoteInput, bool) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return ports.VoteInput{}, false
	}

	userID, ok := principalFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing user context")
		return ports.VoteInput{}, false
	}

	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return ports.VoteInput{}, false
	}
	optionID, err := uuid.Parse(req.OptionID)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, domain.ErrInvalidOptionID.Error())
		return ports.VoteInput{}, false
	}

	return ports.VoteInput{
		PollID:   pollID,
		OptionID: optionID,
		UserID:   userID,
	}, true
}
