package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the ordered, additive schema history of the local store.
// Version 1 matches the original on-disk layout, which had no mime or
// correlation columns; version 2 adds them. Existing rows are never
// rewritten here; the mime backfill is a separate, idempotent pass
// (CaptureRepository.BackfillMIMETypes).
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_videos_and_games",
			SQL: `
	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		player_name TEXT NOT NULL,
		card_id TEXT NOT NULL,
		card_label TEXT NOT NULL,
		card_category TEXT NOT NULL DEFAULT '',
		video_blob BLOB NOT NULL,
		thumbnail_blob BLOB,
		success INTEGER NOT NULL DEFAULT 0,
		completion_time REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_videos_game_id ON videos(game_id);
	CREATE INDEX IF NOT EXISTS idx_videos_player_id ON videos(player_id);
	CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos(created_at);
	CREATE TABLE IF NOT EXISTS games (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_games_created_at ON games(created_at);
	`,
		},
		{
			Version: 2,
			Name:    "add_mime_and_correlation",
			SQL: `
	ALTER TABLE videos ADD COLUMN mime_type TEXT NOT NULL DEFAULT '';
	ALTER TABLE videos ADD COLUMN correlation_id TEXT NOT NULL DEFAULT '';
	CREATE INDEX IF NOT EXISTS idx_videos_correlation_id ON videos(correlation_id);
	`,
		},
	}
}

type Migrator struct {
	db *sql.DB
}

func NewMigrator(db *DB) *Migrator {
	return &Migrator{db: db.Conn()}
}

func (m *Migrator) initialize(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied migration version, 0 when none.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.initialize(ctx); err != nil {
		return 0, err
	}

	var version sql.NullInt64
	err := m.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		migration.Version, migration.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", migration.Name, err)
	}
	return nil
}

// Run applies all pending migrations in version order and returns how many
// were applied. Opening a store at a lower on-disk version than the code's
// target always goes through here before the store is used.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}

	migrations := Migrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	applied := 0
	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}
		if err := m.applyMigration(ctx, migration); err != nil {
			return applied, fmt.Errorf("migration failed: %w", err)
		}
		applied++
	}

	return applied, nil
}
