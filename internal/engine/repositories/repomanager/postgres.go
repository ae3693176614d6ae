// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/migrations"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/activations"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/apps"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/integrity"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/licenses"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/payments"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Apps(db dbx.DBTX) apps.Repository {
	return apps.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Payments(db dbx.DBTX) payments.Repository {
	return payments.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Licenses(db dbx.DBTX) licenses.Repository {
	return licenses.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Activations(db dbx.DBTX) activations.Repository {
	return activations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Integrity(db dbx.DBTX) integrity.Repository {
	return integrity.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
