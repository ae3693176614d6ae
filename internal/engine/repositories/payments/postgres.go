// Package payments reads approved payment facts. The engine never writes
// payments.
package payments

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CountApproved counts approved payments made by email for the application.
func (r *PostgresRepository) CountApproved(ctx context.Context, appID int64, email string) (int, error) {
	query := `SELECT COUNT(*) FROM app_payments WHERE app_id = $1 AND payer_email = $2 AND status = $3`

	var n int
	if err := r.db.QueryRowContext(ctx, query, appID, email, common.PaymentApproved).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
