package apps

import (
	"context"

	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

type Repository interface {
	Get(ctx context.Context, id int64) (*models.Application, error)
}
