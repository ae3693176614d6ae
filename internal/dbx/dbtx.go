// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// a helper to run functions inside a transaction, and a retrying
// transaction manager for conflict-prone read-modify-write sequences.
package dbx

import (
	"context"
	"database/sql"
	"time"

	"github.com/sethvargo/go-retry"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transactor runs fn inside a transaction. Implementations decide about
// isolation and retries; fn must only use the handle it is given.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// TxManager is a Transactor over *sql.DB that re-runs the whole transaction
// when it fails with a write conflict (see IsConflict). fn is called again
// from scratch, so it must re-derive everything it read.
type TxManager struct {
	db       *sql.DB
	opts     *sql.TxOptions
	attempts uint64
	base     time.Duration
}

// NewTxManager constructs a TxManager allowing up to attempts retries with
// exponential backoff starting at base.
func NewTxManager(db *sql.DB, attempts uint64, base time.Duration) *TxManager {
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	return &TxManager{db: db, attempts: attempts, base: base}
}

// WithTx implements Transactor.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return Retry(ctx, m.attempts, m.base, IsConflict, func(ctx context.Context) error {
		return WithTx(ctx, m.db, m.opts, fn)
	})
}

// Retry calls fn until it succeeds, returns an error rejected by retryable,
// the retry budget is spent or ctx is done. The last error is returned as is.
func Retry(ctx context.Context, attempts uint64, base time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	b := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
