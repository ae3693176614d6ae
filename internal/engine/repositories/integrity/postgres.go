// Package integrity holds the sweep queries that detect broken references
// between licenses, payments, users and applications.
package integrity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// collect runs query and scans every row with scan.
func collect[T any](ctx context.Context, db dbx.DBTX, scan func(*sql.Rows) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) OrphanedApplicationOwners(ctx context.Context) ([]*models.OrphanedOwner, error) {
	query := `
		SELECT a.id, a.name, a.owner_id
		  FROM apps a
		  LEFT JOIN users u ON u.id = a.owner_id
		 WHERE a.owner_id IS NOT NULL AND u.id IS NULL
		 ORDER BY a.id
	`
	return collect(ctx, r.db, func(rows *sql.Rows) (*models.OrphanedOwner, error) {
		var o models.OrphanedOwner
		return &o, rows.Scan(&o.AppID, &o.AppName, &o.OwnerID)
	}, query)
}

// PaymentsWithBadUser only looks at approved payments; a NULL user_id is an
// anonymous payment, not an orphan.
func (r *PostgresRepository) PaymentsWithBadUser(ctx context.Context) ([]*models.PaymentFinding, error) {
	query := `
		SELECT p.payment_id, p.app_id, p.user_id, p.payer_email
		  FROM app_payments p
		  LEFT JOIN users u ON u.id = p.user_id
		 WHERE p.status = $1 AND p.user_id IS NOT NULL AND u.id IS NULL
		 ORDER BY p.payment_id
	`
	return collect(ctx, r.db, func(rows *sql.Rows) (*models.PaymentFinding, error) {
		var p models.PaymentFinding
		return &p, rows.Scan(&p.PaymentID, &p.AppID, &p.UserID, &p.PayerEmail)
	}, query, common.PaymentApproved)
}

func (r *PostgresRepository) PriceWithoutDeliverable(ctx context.Context) ([]*models.DeliverableFinding, error) {
	query := `
		SELECT id, name, price, COALESCE(executable_url, '')
		  FROM apps
		 WHERE price > 0 AND btrim(COALESCE(executable_url, '')) = ''
		 ORDER BY id
	`
	return collect(ctx, r.db, func(rows *sql.Rows) (*models.DeliverableFinding, error) {
		var d models.DeliverableFinding
		return &d, rows.Scan(&d.AppID, &d.AppName, &d.Price, &d.ExecutableURL)
	}, query)
}

func (r *PostgresRepository) LicensesWithBadUser(ctx context.Context, limit int) ([]*models.LicenseFinding, error) {
	query := `
		SELECT l.id, l.user_id, l.app_id, l.email
		  FROM user_licenses l
		  LEFT JOIN users u ON u.id = l.user_id
		 WHERE u.id IS NULL
		 ORDER BY l.id
		 LIMIT $1
	`
	return collect(ctx, r.db, func(rows *sql.Rows) (*models.LicenseFinding, error) {
		var l models.LicenseFinding
		return &l, rows.Scan(&l.LicenseID, &l.UserID, &l.AppID, &l.Email)
	}, query, limit)
}
