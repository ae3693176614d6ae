// Package activations reads the activation attempt audit trail.
package activations

import (
	"context"
	"fmt"
	"time"

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

// RecentDenied returns denied attempts created at or after since, newest first.
func (r *PostgresRepository) RecentDenied(ctx context.Context, since time.Time, limit int) ([]*models.ActivationAttempt, error) {
	query := `
		SELECT app_id, email, hardware_id, status, message, created_at
		  FROM license_activations
		 WHERE status = $1 AND created_at >= $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, common.ActivationDenied, since, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ActivationAttempt
	for rows.Next() {
		var a models.ActivationAttempt
		if err := rows.Scan(&a.AppID, &a.Email, &a.HardwareID, &a.Status, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
