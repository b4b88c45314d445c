package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/internal/repository"
	"github.com/utafrali/rocketcart/pkg/database"
)

var _ repository.KeyValueStore = (*Store)(nil)

func setupStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestStore_Get(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(selectValueSQL).
		WithArgs("@RocketShoes:cart").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(`[{"id":1,"amount":2}]`))

	value, ok, err := store.Get(context.Background(), "@RocketShoes:cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":1,"amount":2}]`, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_Missing(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(selectValueSQL).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	value, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_Error(t *testing.T) {
	store, mock := setupStore(t)
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(selectValueSQL).
		WithArgs("k").
		WillReturnError(dbErr)

	_, ok, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "select kv_store k")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Set(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectExec(upsertValueSQL).
		WithArgs("k", "[]").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Set(context.Background(), "k", "[]"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Set_Error(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectExec(upsertValueSQL).
		WithArgs("k", "[]").
		WillReturnError(errors.New("read-only transaction"))

	err := store.Set(context.Background(), "k", "[]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert kv_store k")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	store, mock := setupStore(t)
	mock.ExpectPing()

	require.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
