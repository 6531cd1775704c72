package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type PollHandler struct {
	service ports.PollService
	logger  *slog.Logger
}

func NewPollHandler(service ports.PollService, logger *slog.Logger) *PollHandler {
	return &PollHandler{
		service: service,
		logger:  logger,
	}
}

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// CreatePoll godoc
// @Summary      Creates a poll
// @Description  Options are trimmed and must contain at least two unique entries.
// @Tags         polls
// @Accept       json
// @Produce      json
// @Success      200  {object}  domain.Poll
// @Failure      400
// @Router       /polls [post]
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing user context")
		return
	}

	var req createPollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	poll, err := h.service.Create(r.Context(), ports.CreatePollInput{
		Question:  req.Question,
		Options:   req.Options,
		CreatorID: userID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}

	poll, err := h.service.GetPoll(r.Context(), pollID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

// ListPolls godoc
// @Summary      Lists polls
// @Tags         polls
// @Produce      json
// @Param        creator  query  string  false  "Creator principal id"
// @Param        closed   query  bool    false  "Only closed polls when true"
// @Success      200  {array}  domain.Poll
// @Router       /polls [get]
func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	filter, ok := pollFilterQuery(w, r)
	if !ok {
		return
	}

	polls, err := h.service.ListPolls(r.Context(), ports.ListPollsInput{
		CreatorID: filter.CreatorID,
		Closed:    filter.ClosedOnly,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

func (h *PollHandler) ListUserPolls(w http.ResponseWriter, r *http.Request) {
	userID, ok := principalFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing user context")
		return
	}

	polls, err := h.service.ListPolls(r.Context(), ports.ListPollsInput{CreatorID: userID})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

func pollIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pollID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, domain.ErrInvalidPollID.Error())
		return uuid.Nil, false
	}
	return pollID, true
}

func pollFilterQuery(w http.ResponseWriter, r *http.Request) (domain.PollFilter, bool) {
	q := r.URL.Query()
	filter := domain.PollFilter{CreatorID: q.Get("creator")}

	if raw := q.Get("closed"); raw != "" {
		closed, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "closed must be true or false")
			return domain.PollFilter{}, false
		}
		// false means no filter, not "open only"
		if closed {
			filter.ClosedOnly = &closed
		}
	}
	return filter, true
}
