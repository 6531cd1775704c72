package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

const (
	eventPoll  = "poll"
	eventError = "error"
)

type StreamHandler struct {
	projector ports.ResultProjector
	logger    *slog.Logger
}

func NewStreamHandler(projector ports.ResultProjector, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		projector: projector,
		logger:    logger,
	}
}

// StreamPoll godoc
// @Summary      Streams live results of one poll
// @Description  Server-sent events. A `poll` event is sent whenever the counters or the closed flag change; the stream ends after the poll closes.
// @Tags         polls
// @Produce      text/event-stream
// @Param        id  path  string  true  "Poll ID"
// @Success      200
// @Failure      400
// @Failure      404
// @Router       /polls/{id}/stream [get]
func (h *StreamHandler) StreamPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := pollIDParam(w, r)
	if !ok {
		return
	}

	events, err := h.projector.WatchPoll(r.Context(), pollID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.pump(w, r, events)
}

func (h *StreamHandler) StreamPolls(w http.ResponseWriter, r *http.Request) {
	filter, ok := pollFilterQuery(w, r)
	if !ok {
		return
	}

	h.pump(w, r, h.projector.WatchPolls(r.Context(), filter))
}

func (h *StreamHandler) pump(w http.ResponseWriter, r *http.Request, events <-chan domain.StreamEvent) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("stream flush unsupported", "path", r.URL.Path, "error", err)
		return
	}

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Debug("stream write failed", "path", r.URL.Path, "error", err)
			}
			// The projector goroutine exits once the request context ends.
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, ev domain.StreamEvent) error {
	switch ev.Kind {
	case domain.EventKeepAlive:
		_, err := io.WriteString(w, ": keep-alive\n\n")
		return err
	case domain.EventError:
		status, code := classify(ev.Err)
		msg := internalMessage
		if status != http.StatusInternalServerError {
			msg = ev.Err.Error()
		}
		return sse.Encode(w, sse.Event{
			Event: eventError,
			Data:  errorResponse{Error: code, Message: msg},
		})
	default:
		return sse.Encode(w, sse.Event{
			Event: eventPoll,
			Id:    ev.Poll.ID.String(),
			Data:  ev.Poll,
		})
	}
}
