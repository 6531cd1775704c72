package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type Handlers struct {
	Polls   *PollHandler
	Votes   *VoteHandler
	Streams *StreamHandler
}

func NewHandler(h Handlers, verifier ports.TokenVerifier, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler)

	requireAuth := RequireAuth(verifier)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("welcome"))
		})

		r.Route("/polls", func(r chi.Router) {
			r.Get("/", h.Polls.ListPolls)
			r.Get("/stream", h.Streams.StreamPolls)
			r.Get("/{id}", h.Polls.GetPoll)
			r.Get("/{id}/stream", h.Streams.StreamPoll)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)

				r.Post("/", h.Polls.CreatePoll)
				r.Get("/user", h.Polls.ListUserPolls)
				r.Post("/{id}/vote", h.Votes.CastVote)
				r.Post("/{id}/change-vote", h.Votes.ChangeVote)
				r.Get("/{id}/vote/check", h.Votes.CheckVote)
				r.Post("/{id}/close", h.Votes.ClosePoll)
				r.Post("/{id}/reset", h.Votes.ResetPoll)
			})
		})
	})

	return r
}
