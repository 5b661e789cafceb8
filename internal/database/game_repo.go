package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
)

type GameRepository struct {
	db *DB
}

func NewGameRepository(db *DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) Create(ctx context.Context, name string) (int64, error) {
	result, err := r.db.Conn().ExecContext(ctx,
		"INSERT INTO games (name, created_at) VALUES (?, ?)",
		name, time.Now().UnixMilli())
	if err != nil {
		return 0, &models.StorageError{Op: "create game", Err: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, &models.StorageError{Op: "create game", Err: err}
	}
	return id, nil
}

func (r *GameRepository) GetByID(ctx context.Context, id int64) (*models.Game, error) {
	var game models.Game
	err := r.db.Conn().QueryRowContext(ctx,
		"SELECT id, name, created_at FROM games WHERE id = ?", id).
		Scan(&game.ID, &game.Name, &game.CreatedAtMillis)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game %d not found", id)
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get game", Err: err}
	}
	return &game, nil
}

func (r *GameRepository) ListRecent(ctx context.Context, limit int) ([]*models.Game, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		"SELECT id, name, created_at FROM games ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list games", Err: err}
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var game models.Game
		if err := rows.Scan(&game.ID, &game.Name, &game.CreatedAtMillis); err != nil {
			return nil, &models.StorageError{Op: "scan game", Err: err}
		}
		games = append(games, &game)
	}
	return games, rows.Err()
}
