package database

import (
	"context"
	"testing"
)

func TestGameRepositoryCreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewGameRepository(db)
	ctx := context.Background()

	id, err := repo.Create(ctx, "Friday night")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a game id")
	}

	game, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if game.Name != "Friday night" {
		t.Errorf("name = %q, want Friday night", game.Name)
	}
	if game.CreatedAtMillis == 0 {
		t.Error("expected a creation timestamp")
	}
}

func TestGameRepositoryGetMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewGameRepository(db)

	if _, err := repo.GetByID(context.Background(), 999); err == nil {
		t.Error("expected error for missing game")
	}
}

func TestGameRepositoryListRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewGameRepository(db)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := repo.Create(ctx, name); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}

	games, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}
}
