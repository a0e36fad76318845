// Package store is the embedded document store: one SQLite table per
// collection holding JSON documents, with secondary indexes declared on
// document fields.
//
// Typical use:
//
//	s, err := store.Open(ctx, "registro.db", log)
//	...
//	err = s.Update(ctx, func(ctx context.Context, h *store.Handle) error {
//	    if _, err := h.Put(ctx, store.Classes, class); err != nil {
//	        return err
//	    }
//	    return h.Delete(ctx, store.Students, studentID)
//	})
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/registro/internal/dbx"
	"github.com/dmitrijs2005/registro/internal/logging"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// busyTimeout lets writers from another process wait for the file lock.
const busyTimeout = "_pragma=busy_timeout(5000)"

// Store is a migrated database plus the collection operations over it.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (creating if needed) the database at dsn and upgrades it to
// SchemaVersion.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps an in-memory
	// database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Migrate(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	return New(db, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, log logging.Logger) *Store {
	return &Store{db: db, log: log}
}

func withPragmas(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + busyTimeout
	}
	return dsn + "?" + busyTimeout
}

// DB exposes the underlying pool for packages keeping their own tables in
// the same database.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Version reports the schema version recorded in the database.
func (s *Store) Version(ctx context.Context) (int64, error) {
	return schemaVersion(ctx, s.db)
}

// Handle returns a non-transactional handle; each call is its own statement.
func (s *Store) Handle() *Handle {
	return &Handle{q: s.db}
}

// Update runs fn inside a single transaction. Any error returned by fn, or
// by an operation inside it, rolls back every write made through h.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, h *Handle) error) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Handle{q: tx})
	})
	if err != nil {
		s.log.Debug(ctx, "transaction rolled back", "error", err)
	}
	return err
}

func (s *Store) Get(ctx context.Context, storeName, key string, dst any) (bool, error) {
	return s.Handle().Get(ctx, storeName, key, dst)
}

func (s *Store) Put(ctx context.Context, storeName string, record any) (string, error) {
	return s.Handle().Put(ctx, storeName, record)
}

func (s *Store) Add(ctx context.Context, storeName string, record any) (string, error) {
	return s.Handle().Add(ctx, storeName, record)
}

func (s *Store) Delete(ctx context.Context, storeName, key string) error {
	return s.Handle().Delete(ctx, storeName, key)
}

func (s *Store) GetAllByIndex(ctx context.Context, storeName, index, value string) ([]json.RawMessage, error) {
	return s.Handle().GetAllByIndex(ctx, storeName, index, value)
}

func (s *Store) KeysByIndex(ctx context.Context, storeName, index, value string) ([]string, error) {
	return s.Handle().KeysByIndex(ctx, storeName, index, value)
}
