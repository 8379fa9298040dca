package plans

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

func TestPostgresCreatePlan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db, nil)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO plans").
		WithArgs("pro-monthly", "usdc", int64(10), int64(30*24*time.Hour), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(1), now, now))

	plan, err := svc.CreatePlan(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.ID)
	assert.True(t, plan.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePlanRejectsBadInputBeforeDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db, nil)
	req := validRequest()
	req.Price = -1

	_, err = svc.CreatePlan(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
	// No SQL should have been issued
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPlanNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db, nil)

	mock.ExpectQuery("SELECT id, name, asset").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = svc.GetPlan(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestPostgresAcquireSlotAtCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db, nil)
	now := time.Now()

	mock.ExpectExec("UPDATE plans").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, name, asset").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "asset", "price", "interval_ns", "active",
			"max_subscribers", "current_subscribers", "created_at", "updated_at",
		}).AddRow(int64(1), "pro-monthly", "usdc", int64(10), int64(time.Hour), true, 2, 2, now, now))

	err = svc.AcquireSlot(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))
	assert.Contains(t, err.Error(), "capacity")
}

func TestPostgresAcquireSlotSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db, nil)

	mock.ExpectExec("UPDATE plans").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.AcquireSlot(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPauseNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewPostgresService(db, nil)

	mock.ExpectExec("UPDATE plans SET active").
		WithArgs(false, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = svc.Pause(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}
