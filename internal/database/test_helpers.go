package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(Config{Type: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if _, err := NewMigrator(db).Run(context.Background()); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db, func() { db.Close() }
}

func testCaptureRepo(t *testing.T) (*CaptureRepository, func()) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	return testRepoOn(db), cleanup
}

func testRepoOn(db *DB) *CaptureRepository {
	return NewCaptureRepository(db, media.NewValidator(0))
}
