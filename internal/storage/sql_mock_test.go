package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moments/internal/dbx"
)

func newSQLMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, dbx.Dollar), mock
}

func TestSQLStore_GetUsesDollarPlaceholders(t *testing.T) {
	s, mock := newSQLMockStore(t)

	mock.ExpectQuery(`SELECT value FROM kv WHERE key = \$1`).
		WithArgs("video_history").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("[]")))

	v, ok, err := s.Get(context.Background(), "video_history")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("[]"), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetMissingAndError(t *testing.T) {
	s, mock := newSQLMockStore(t)

	mock.ExpectQuery(`SELECT value FROM kv`).WithArgs("absent").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT value FROM kv`).WithArgs("broken").WillReturnError(errors.New("conn reset"))

	_, ok, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Get(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get kv[broken]")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SetError(t *testing.T) {
	s, mock := newSQLMockStore(t)

	mock.ExpectExec(`INSERT INTO kv`).WithArgs("k", []byte("v")).WillReturnError(errors.New("disk full"))

	err := s.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set kv[k]")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ApplyRollsBackOnFailure(t *testing.T) {
	s, mock := newSQLMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO kv`).WithArgs("a", []byte("1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM kv WHERE key = \$1`).WithArgs("b").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	b := NewBatch()
	b.Set("a", []byte("1"))
	b.Remove("b")

	err := s.Apply(context.Background(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply batch")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ApplyCommits(t *testing.T) {
	s, mock := newSQLMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO kv`).WithArgs("a", []byte("1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b := NewBatch()
	b.Set("a", []byte("1"))
	require.NoError(t, s.Apply(context.Background(), b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListKeysErrors(t *testing.T) {
	s, mock := newSQLMockStore(t)

	mock.ExpectQuery(`SELECT key FROM kv ORDER BY key`).WillReturnError(errors.New("gone"))
	_, err := s.ListKeys(context.Background())
	require.Error(t, err)

	mock.ExpectQuery(`SELECT key FROM kv ORDER BY key`).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("a").RowError(0, errors.New("bad row")))
	_, err = s.ListKeys(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
