package ports

import (
	"context"

	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type ReconcileService interface {
	ReconcileAll(ctx context.Context, repair bool) ([]domain.CounterDrift, error)
}
