package integrity

import (
	"context"

	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

// Repository runs cross-table consistency queries. Every method is read-only.
type Repository interface {
	OrphanedApplicationOwners(ctx context.Context) ([]*models.OrphanedOwner, error)
	PaymentsWithBadUser(ctx context.Context) ([]*models.PaymentFinding, error)
	PriceWithoutDeliverable(ctx context.Context) ([]*models.DeliverableFinding, error)
	LicensesWithBadUser(ctx context.Context, limit int) ([]*models.LicenseFinding, error)
}
