package activations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

type Repository interface {
	RecentDenied(ctx context.Context, since time.Time, limit int) ([]*models.ActivationAttempt, error)
}
