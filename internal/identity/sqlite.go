package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/dbx"
)

const (
	teacherKey = "teacher_session"
	studentKey = "student_session"
)

// SQLiteStorage keeps identities as JSON in the local_storage table.
// Keys are prefixed with the tab name, so tabs sharing one database file
// persist and clear only their own slots. A process restarted with the same
// tab name resumes that tab.
type SQLiteStorage struct {
	kv         *KV
	teacherKey string
	studentKey string
}

// NewSQLiteStorage returns the storage of the named tab. An empty tab uses
// the bare keys.
func NewSQLiteStorage(db dbx.DBTX, tab string) *SQLiteStorage {
	return &SQLiteStorage{
		kv:         NewKV(db),
		teacherKey: tabKey(tab, teacherKey),
		studentKey: tabKey(tab, studentKey),
	}
}

func tabKey(tab, key string) string {
	if tab == "" {
		return key
	}
	return tab + "/" + key
}

func (s *SQLiteStorage) LoadTeacher(ctx context.Context) (*TeacherIdentity, error) {
	var id TeacherIdentity
	ok, err := s.load(ctx, s.teacherKey, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

func (s *SQLiteStorage) SaveTeacher(ctx context.Context, id TeacherIdentity) error {
	return s.save(ctx, s.teacherKey, id)
}

func (s *SQLiteStorage) ClearTeacher(ctx context.Context) error {
	return s.kv.Delete(ctx, s.teacherKey)
}

func (s *SQLiteStorage) LoadStudent(ctx context.Context) (*StudentIdentity, error) {
	var id StudentIdentity
	ok, err := s.load(ctx, s.studentKey, &id)
	if err != nil || !ok {
		return nil, err
	}
	return &id, nil
}

func (s *SQLiteStorage) SaveStudent(ctx context.Context, id StudentIdentity) error {
	return s.save(ctx, s.studentKey, id)
}

func (s *SQLiteStorage) ClearStudent(ctx context.Context) error {
	return s.kv.Delete(ctx, s.studentKey)
}

func (s *SQLiteStorage) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStorage) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, raw)
}
