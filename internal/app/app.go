package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	handler "github.com/vncsmyrnk/livepoll/internal/adapters/handler/http"
	"github.com/vncsmyrnk/livepoll/internal/adapters/identity/jwtauth"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/mongo"
	"github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/config"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

// App holds the process-wide collaborators. It is built once at startup and
// only read afterwards.
type App struct {
	Store      ports.Store
	Polls      ports.PollService
	Votes      ports.VoteService
	Projector  ports.ResultProjector
	Reconciler ports.ReconcileService
	Verifier   ports.TokenVerifier
	Logger     *slog.Logger

	allowedOrigins []string
}

func New(store ports.Store, cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		Store: store,
		Polls: services.NewPollService(store.Polls(), logger),
		Votes: services.NewVoteService(store, logger),
		Projector: services.NewResultProjector(store.Polls(), services.ProjectorOptions{
			Interval:  cfg.Stream.Interval,
			KeepAlive: cfg.Stream.KeepAlive,
			Logger:    logger,
		}),
		Reconciler:     services.NewReconcileService(store, cfg.Reconcile.Concurrency, logger),
		Verifier:       jwtauth.NewVerifier(cfg.Auth.JWTSecret),
		Logger:         logger,
		allowedOrigins: cfg.HTTP.AllowedOrigins,
	}
}

// OpenStore connects the storage driver named in cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (ports.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Postgres.DSN(cfg.Storage.Timeout))
		if err != nil {
			return nil, err
		}
		if err := postgres.MigrateUp(store.DB()); err != nil {
			store.Close(ctx)
			return nil, err
		}
		return store, nil
	case config.DriverMongo:
		return mongo.Connect(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Storage.Timeout,
		})
	case config.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *App) Handler() http.Handler {
	return handler.NewHandler(handler.Handlers{
		Polls:   handler.NewPollHandler(a.Polls, a.Logger),
		Votes:   handler.NewVoteHandler(a.Votes, a.Logger),
		Streams: handler.NewStreamHandler(a.Projector, a.Logger),
	}, a.Verifier, a.allowedOrigins)
}

func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}
