package licenses

import (
	"context"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

// Repository is the slot store. Methods that mutate or lock are meant to be
// called on a transactional handle.
type Repository interface {
	// LockPair takes a transaction-scoped lock on (appID, email).
	LockPair(ctx context.Context, appID int64, email string) error

	FindOccupiedByHardware(ctx context.Context, appID int64, email, hardwareID string) (*models.License, error)
	FindLatestOccupied(ctx context.Context, appID int64, email string) (*models.License, error)
	ListByPair(ctx context.Context, appID int64, email string) ([]*models.License, error)
	CountOccupied(ctx context.Context, appID int64, email string) (int, error)

	// ClaimFree stamps one free slot of the pair with l's hardware id, key and
	// app name. Returns common.ErrorNotFound when the pair has no free slot.
	ClaimFree(ctx context.Context, l *models.License, now time.Time) (int64, error)
	Insert(ctx context.Context, l *models.License, now time.Time) (int64, error)
	DeleteFree(ctx context.Context, appID int64, email string) (int64, error)
	Clear(ctx context.Context, id int64, now time.Time) error
}
