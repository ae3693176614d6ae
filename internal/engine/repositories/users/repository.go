package users

import (
	"context"

	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

type Repository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}
