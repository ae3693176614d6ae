// Package apps provides read-only access to the application catalog.
package apps

import (
	"context"
	"database/sql"
	"errors"
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

// Get returns the application or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Application, error) {
	query := `SELECT id, name, price, executable_url, owner_id FROM apps WHERE id = $1`

	var (
		app   models.Application
		owner sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&app.ID, &app.Name, &app.Price, &app.ExecutableURL, &owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if owner.Valid {
		app.OwnerID = &owner.Int64
	}
	return &app, nil
}
