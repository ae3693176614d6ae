package activations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recentDenied = `SELECT app_id, email, hardware_id, status, message, created_at FROM license_activations WHERE status = \$1 AND created_at >= \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`

func TestRecentDenied(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	since := time.Now().Add(-7 * 24 * time.Hour)
	now := time.Now()
	mock.ExpectQuery(recentDenied).
		WithArgs("denied", since, 50).
		WillReturnRows(sqlmock.NewRows([]string{"app_id", "email", "hardware_id", "status", "message", "created_at"}).
			AddRow(int64(7), "a@x.com", "HW9", "denied", "no free slot", now).
			AddRow(int64(7), "b@x.com", "HW3", "denied", "unpaid", now.Add(-time.Hour)))

	got, err := NewPostgresRepository(db).RecentDenied(context.Background(), since, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "HW9", got[0].HardwareID)
	assert.Equal(t, "unpaid", got[1].Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentDenied_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(recentDenied).WillReturnError(errors.New("db down"))

	_, err = NewPostgresRepository(db).RecentDenied(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestRecentDenied_RowError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"app_id", "email", "hardware_id", "status", "message", "created_at"}).
		AddRow(int64(7), "a@x.com", "HW9", "denied", "x", time.Now()).
		RowError(0, errors.New("row broke"))
	mock.ExpectQuery(recentDenied).WillReturnRows(rows)

	_, err = NewPostgresRepository(db).RecentDenied(context.Background(), time.Now(), 10)
	require.Error(t, err)
}
