package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/dbx"
)

// Handle runs collection operations against either the database or an open
// transaction. Inside Store.Update every operation must go through the
// Handle passed to the callback.
type Handle struct {
	q dbx.DBTX
}

// Get loads the record stored under key into dst. It reports false, with a
// nil error, when there is no such record.
func (h *Handle) Get(ctx context.Context, storeName, key string, dst any) (bool, error) {
	c, err := lookup(storeName)
	if err != nil {
		return false, err
	}

	var raw string
	err = h.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, c.Name), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s[%s]: %w", storeName, key, err)
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s[%s]: %w", storeName, key, err)
	}
	return true, nil
}

// Put inserts or replaces record and returns its key.
func (h *Handle) Put(ctx context.Context, storeName string, record any) (string, error) {
	return h.write(ctx, storeName, record, true)
}

// Add inserts record and returns its key. A key or unique index collision
// fails with ErrConstraint.
func (h *Handle) Add(ctx context.Context, storeName string, record any) (string, error) {
	return h.write(ctx, storeName, record, false)
}

func (h *Handle) write(ctx context.Context, storeName string, record any, upsert bool) (string, error) {
	c, err := lookup(storeName)
	if err != nil {
		return "", err
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s record: %w", storeName, err)
	}

	key, err := keyOf(doc, c.KeyPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", storeName, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?)`, c.Name)
	if upsert {
		query += ` ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	}

	if _, err := h.q.ExecContext(ctx, query, key, string(doc)); err != nil {
		if dbx.IsConstraintViolation(err) {
			return "", fmt.Errorf("%w: %s[%s]: %w", ErrConstraint, storeName, key, err)
		}
		return "", fmt.Errorf("failed to write %s[%s]: %w", storeName, key, err)
	}
	return key, nil
}

// Delete removes the record stored under key. Deleting a missing key is not
// an error.
func (h *Handle) Delete(ctx context.Context, storeName, key string) error {
	c, err := lookup(storeName)
	if err != nil {
		return err
	}
	if _, err := h.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, c.Name), key); err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", storeName, key, err)
	}
	return nil
}

// GetAllByIndex returns every record whose indexed field equals value, in no
// particular order.
func (h *Handle) GetAllByIndex(ctx context.Context, storeName, index, value string) ([]json.RawMessage, error) {
	c, _, err := lookupIndex(storeName, index)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT value FROM %s WHERE json_extract(value, '$.%s') = ?`, c.Name, index)
	rows, err := h.q.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s.%s: %w", storeName, index, err)
	}
	defer rows.Close()

	result := make([]json.RawMessage, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to read %s row: %w", storeName, err)
		}
		result = append(result, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", storeName, err)
	}
	return result, nil
}

// KeysByIndex is GetAllByIndex returning primary keys only.
func (h *Handle) KeysByIndex(ctx context.Context, storeName, index, value string) ([]string, error) {
	c, _, err := lookupIndex(storeName, index)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT key FROM %s WHERE json_extract(value, '$.%s') = ?`, c.Name, index)
	rows, err := h.q.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s.%s keys: %w", storeName, index, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to read %s key: %w", storeName, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s keys: %w", storeName, err)
	}
	return keys, nil
}

// Count returns the number of records in a collection.
func (h *Handle) Count(ctx context.Context, storeName string) (int, error) {
	c, err := lookup(storeName)
	if err != nil {
		return 0, err
	}
	var n int
	if err := h.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.Name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", storeName, err)
	}
	return n, nil
}

// AllByIndex decodes the records matched by an index scan into T.
func AllByIndex[T any](ctx context.Context, h *Handle, storeName, index, value string) ([]T, error) {
	raws, err := h.GetAllByIndex(ctx, storeName, index, value)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", storeName, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func keyOf(doc []byte, keyPath string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return "", fmt.Errorf("%w: record is not an object", ErrMissingKey)
	}
	raw, ok := fields[keyPath]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingKey, keyPath)
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil || key == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", ErrMissingKey, keyPath)
	}
	return key, nil
}
