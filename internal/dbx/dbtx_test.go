package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE classes (key TEXT PRIMARY KEY, value TEXT NOT NULL CHECK (json_valid(value)));
		CREATE UNIQUE INDEX classes_name ON classes (json_extract(value, '$.name'));`)
	require.NoError(t, err)
	return db
}

func classCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM classes`).Scan(&n))
	return n
}

const insertClass = `INSERT INTO classes (key, value) VALUES (?, json_object('name', ?))`

func TestWithTx(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(ctx context.Context, tx DBTX) error
		wantErr bool
		want    int
	}{
		{
			name: "commits both writes",
			fn: func(ctx context.Context, tx DBTX) error {
				if _, err := tx.ExecContext(ctx, insertClass, "c1", "1A"); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, insertClass, "c2", "2B")
				return err
			},
			want: 2,
		},
		{
			name: "callback error discards earlier write",
			fn: func(ctx context.Context, tx DBTX) error {
				if _, err := tx.ExecContext(ctx, insertClass, "c1", "1A"); err != nil {
					return err
				}
				return errors.New("boom")
			},
			wantErr: true,
		},
		{
			name: "failing statement discards earlier write",
			fn: func(ctx context.Context, tx DBTX) error {
				if _, err := tx.ExecContext(ctx, insertClass, "c1", "1A"); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, insertClass, "c2", "1A")
				return err
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupDB(t)
			err := WithTx(context.Background(), db, nil, tt.fn)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, classCount(t, db))
		})
	}
}

func TestWithTx_PanicRollsBackAndPropagates(t *testing.T) {
	db := setupDB(t)

	require.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			_, err := tx.ExecContext(ctx, insertClass, "c1", "1A")
			require.NoError(t, err)
			panic("kaput")
		})
	})
	assert.Equal(t, 0, classCount(t, db))
}

func TestWithTx_ClosedDB(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	called := false
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestWithTx_RollbackExpectedBySQLMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM sessions`).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, "s1")
		return err
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsConstraintViolation(t *testing.T) {
	db := setupDB(t)

	_, err := db.Exec(insertClass, "c1", "1A")
	require.NoError(t, err)
	_, err = db.Exec(insertClass, "c2", "1A")
	require.Error(t, err)

	assert.True(t, IsConstraintViolation(err))
	assert.True(t, IsConstraintViolation(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsConstraintViolation(errors.New("database is locked")))
	assert.False(t, IsConstraintViolation(nil))
}
