package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/activations"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/apps"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/integrity"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/licenses"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/payments"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Apps(db dbx.DBTX) apps.Repository
	Payments(db dbx.DBTX) payments.Repository
	Licenses(db dbx.DBTX) licenses.Repository
	Activations(db dbx.DBTX) activations.Repository
	Integrity(db dbx.DBTX) integrity.Repository
}
