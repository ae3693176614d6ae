// Package engine wires the license engine together: it opens the database,
// applies migrations, builds the services and runs the operations selected
// in the configuration, printing a single JSON report.
package engine

import (
	"context"
	"database/sql"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/config"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/repomanager"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/services"
	"github.com/dmitrijs2005/slotkeeper/internal/logging"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type slotPool interface {
	Bind(ctx context.Context, appID int64, email, hardwareID string) (*services.BindResult, error)
	Release(ctx context.Context, appID int64, email string) (*services.ReleaseResult, error)
	Pool(ctx context.Context, appID int64, email string) ([]*models.License, error)
}

type integrityChecker interface {
	Diagnose(ctx context.Context, opts services.DiagnoseOptions) (*services.DiagnoseReport, error)
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	pool    slotPool
	checker integrityChecker
	out     io.Writer
}

// NewApp opens the connection pool, applies migrations and builds the
// services. The returned App owns the pool; call Close when done.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, out io.Writer) (*App, error) {
	logger.Debug(ctx, "opening database", "dsn", c.DatabaseDSN)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, common.WrapStore("db init", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)

	pingCtx, cancel := withTimeout(ctx, c)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, common.WrapStore("db init", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, common.WrapStore("migrations", err)
	}

	tx := dbx.NewTxManager(db, c.RetryAttempts, c.RetryBase)
	pool := services.NewSlotPool(db, tx, rm, logger, services.SlotPoolOptions{EnforceQuota: c.EnforceQuota})
	checker := services.NewIntegrityChecker(db, rm, logger, services.IntegrityOptions{
		RetryAttempts: c.RetryAttempts,
		RetryBase:     c.RetryBase,
	})

	return newApp(c, logger, db, pool, checker, out), nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, pool slotPool, checker integrityChecker, out io.Writer) *App {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &App{config: c, logger: logger, db: db, pool: pool, checker: checker, out: out}
}

// Close releases the connection pool.
func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	return app.db.Close()
}

func withTimeout(ctx context.Context, c *config.Config) (context.Context, context.CancelFunc) {
	if c.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.OperationTimeout)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) (stop func()) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancelFunc()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// Run executes the selected operations in order bind, release, pool,
// diagnose and prints the report. The first failure aborts the run and is
// printed instead. The return value is the process exit code.
func (app *App) Run(ctx context.Context) int {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	stop := app.initSignalHandler(cancelFunc)
	defer stop()

	report, err := app.run(ctx)
	if err != nil {
		app.logger.Error(ctx, "run failed", "error", err, "marker", common.Marker(err))
		return Fail(app.out, err)
	}

	if err := writeJSON(app.out, report); err != nil {
		app.logger.Error(ctx, "writing report", "error", err)
		return ExitStoreError
	}
	return ExitOK
}

func (app *App) run(ctx context.Context) (*Report, error) {
	c := app.config
	if !c.Bind && !c.Release && !c.Pool && !c.Diagnose {
		return nil, common.NewValidationError("operation", "one of -bind, -release, -pool, -diagnose is required")
	}

	app.logger.Info(ctx, "starting run", "bind", c.Bind, "release", c.Release, "pool", c.Pool,
		"diagnose", c.Diagnose, "app_id", c.AppID, "email", c.Email)

	report := &Report{}

	if c.Bind {
		err := app.do(ctx, func(ctx context.Context) (err error) {
			report.Bind, err = app.pool.Bind(ctx, c.AppID, c.Email, c.HardwareID)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if c.Release {
		err := app.do(ctx, func(ctx context.Context) (err error) {
			report.Release, err = app.pool.Release(ctx, c.AppID, c.Email)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if c.Pool {
		err := app.do(ctx, func(ctx context.Context) error {
			slots, err := app.pool.Pool(ctx, c.AppID, c.Email)
			if err != nil {
				return err
			}
			report.Pool = &PoolReport{AppID: c.AppID, Email: c.Email, Slots: slots}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if c.Diagnose {
		err := app.do(ctx, func(ctx context.Context) (err error) {
			report.Diagnose, err = app.checker.Diagnose(ctx, services.DiagnoseOptions{
				Limit:     c.DiagnosticLimit,
				SinceDays: c.DeniedSinceDays,
				AppID:     c.AppID,
				Email:     c.Email,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

// do runs one operation under the configured timeout.
func (app *App) do(ctx context.Context, op func(ctx context.Context) error) error {
	ctx, cancel := withTimeout(ctx, app.config)
	defer cancel()
	return op(ctx)
}
