// Package licenses provides the PostgreSQL-backed slot store (user_licenses).
package licenses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
)

const licenseColumns = `id, user_id, app_id, app_name, email, hardware_id, license_key, activated_at, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// PairLockKey derives the advisory lock key for a pair.
func PairLockKey(appID int64, email string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatInt(appID, 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(email))
	return int64(h.Sum64())
}

// LockPair blocks until the pair's advisory lock is held. The lock is
// released when the surrounding transaction ends.
func (r *PostgresRepository) LockPair(ctx context.Context, appID int64, email string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, PairLockKey(appID, email)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(s scanner) (*models.License, error) {
	var (
		l         models.License
		activated sql.NullTime
	)
	err := s.Scan(&l.ID, &l.UserID, &l.AppID, &l.AppName, &l.Email, &l.HardwareID, &l.LicenseKey,
		&activated, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if activated.Valid {
		t := activated.Time
		l.ActivatedAt = &t
	}
	return &l, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.License, error) {
	l, err := scanLicense(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

// FindOccupiedByHardware returns the pair's slot held by hardwareID.
func (r *PostgresRepository) FindOccupiedByHardware(ctx context.Context, appID int64, email, hardwareID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM user_licenses
		WHERE app_id = $1 AND email = $2 AND hardware_id = $3
		ORDER BY id
		LIMIT 1`
	return r.queryOne(ctx, query, appID, email, hardwareID)
}

// FindLatestOccupied returns the occupied slot with the newest updated_at and
// locks it for update.
func (r *PostgresRepository) FindLatestOccupied(ctx context.Context, appID int64, email string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM user_licenses
		WHERE app_id = $1 AND email = $2 AND hardware_id <> ''
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
		FOR UPDATE`
	return r.queryOne(ctx, query, appID, email)
}

// ListByPair returns every slot of the pair ordered by id.
func (r *PostgresRepository) ListByPair(ctx context.Context, appID int64, email string) ([]*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM user_licenses
		WHERE app_id = $1 AND email = $2
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, appID, email)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CountOccupied(ctx context.Context, appID int64, email string) (int, error) {
	query := `SELECT COUNT(*) FROM user_licenses WHERE app_id = $1 AND email = $2 AND hardware_id <> ''`

	var n int
	if err := r.db.QueryRowContext(ctx, query, appID, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ClaimFree keeps an existing activated_at; the first activation timestamp
// is sticky.
func (r *PostgresRepository) ClaimFree(ctx context.Context, l *models.License, now time.Time) (int64, error) {
	query := `
		UPDATE user_licenses
		   SET hardware_id = $3, license_key = $4, app_name = $5,
		       activated_at = COALESCE(activated_at, $6), updated_at = $6
		 WHERE id = (
		       SELECT id FROM user_licenses
		        WHERE app_id = $1 AND email = $2 AND hardware_id = ''
		        ORDER BY updated_at DESC, id DESC
		        LIMIT 1
		        FOR UPDATE)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, l.AppID, l.Email, l.HardwareID, l.LicenseKey, l.AppName, now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// Insert creates a new occupied slot activated at now.
func (r *PostgresRepository) Insert(ctx context.Context, l *models.License, now time.Time) (int64, error) {
	query := `
		INSERT INTO user_licenses (user_id, app_id, app_name, email, hardware_id, license_key, activated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, l.UserID, l.AppID, l.AppName, l.Email, l.HardwareID, l.LicenseKey, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// DeleteFree removes every free slot of the pair and reports how many went.
func (r *PostgresRepository) DeleteFree(ctx context.Context, appID int64, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_licenses WHERE app_id = $1 AND email = $2 AND hardware_id = ''`, appID, email)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Clear frees the slot. The stale license key is left in place.
func (r *PostgresRepository) Clear(ctx context.Context, id int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_licenses SET hardware_id = '', activated_at = NULL, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
