package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/database"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
)

// SQLLedger implements Ledger over sqlite (local development, tests) or
// postgres (the hosted collaborator), reusing the shared database.Config.
type SQLLedger struct {
	db *database.DB
}

func NewSQLLedger(db *database.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// EnsureSchema creates the game_actions table on sqlite. The postgres
// schema is owned by the remote side and assumed present.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	if l.db.Type() != "sqlite" {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS game_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		card_id TEXT NOT NULL,
		correlation_id TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL DEFAULT '',
		video_storage_path TEXT NOT NULL DEFAULT '',
		video_size INTEGER NOT NULL DEFAULT 0,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		thumbnail_storage_path TEXT NOT NULL DEFAULT '',
		upload_status TEXT NOT NULL DEFAULT 'pending',
		upload_error TEXT NOT NULL DEFAULT '',
		video_recorded INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_game_actions_lookup ON game_actions(game_id, player_id, card_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_game_actions_correlation ON game_actions(correlation_id);
	`
	if _, err := l.db.Conn().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create game_actions table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (l *SQLLedger) rebind(query string) string {
	if l.db.Type() != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (l *SQLLedger) CreatePending(ctx context.Context, rec *models.SyncStatusRecord) error {
	createdAt := rec.CreatedAtMillis
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := l.db.Conn().ExecContext(ctx, l.rebind(`
		INSERT INTO game_actions (game_id, player_id, card_id, correlation_id, upload_status, video_recorded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.GameID, rec.PlayerID, rec.CardID, rec.CorrelationID,
		models.UploadStatusPending, true, createdAt)
	if err != nil {
		return fmt.Errorf("failed to create ledger record: %w", err)
	}
	return nil
}

// findRowID resolves a key to a row id: correlation id first, then the
// most recently created (game, player, card) match. The fallback can pick
// the wrong attempt when the same card was retried for one player in one
// game; the correlation id exists to avoid that and legacy rows are the
// only ones still resolved by triple.
func (l *SQLLedger) findRowID(ctx context.Context, key Key) (int64, error) {
	var id int64

	if key.CorrelationID != "" {
		err := l.db.Conn().QueryRowContext(ctx, l.rebind(`
			SELECT id FROM game_actions WHERE correlation_id = ?
			ORDER BY created_at DESC LIMIT 1`),
			key.CorrelationID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("failed to find ledger record: %w", err)
		}
	}

	err := l.db.Conn().QueryRowContext(ctx, l.rebind(`
		SELECT id FROM game_actions WHERE game_id = ? AND player_id = ? AND card_id = ?
		ORDER BY created_at DESC LIMIT 1`),
		key.GameID, key.PlayerID, key.CardID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no ledger record for game=%s player=%s card=%s", key.GameID, key.PlayerID, key.CardID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find ledger record: %w", err)
	}
	return id, nil
}

func (l *SQLLedger) MarkUploading(ctx context.Context, key Key, retry bool) error {
	id, err := l.findRowID(ctx, key)
	if err != nil {
		return err
	}

	allowed := []string{models.UploadStatusPending}
	if retry {
		allowed = append(allowed, models.UploadStatusFailed)
	}
	query := fmt.Sprintf(`
		UPDATE game_actions SET upload_status = ?, upload_error = ''
		WHERE id = ? AND upload_status IN (%s)`,
		"'"+strings.Join(allowed, "','")+"'")

	result, err := l.db.Conn().ExecContext(ctx, l.rebind(query), models.UploadStatusUploading, id)
	if err != nil {
		return fmt.Errorf("failed to mark uploading: %w", err)
	}
	return l.requireTransition(result, "uploading", id)
}

func (l *SQLLedger) Complete(ctx context.Context, key Key, upd CompletionUpdate) error {
	id, err := l.findRowID(ctx, key)
	if err != nil {
		return err
	}

	result, err := l.db.Conn().ExecContext(ctx, l.rebind(`
		UPDATE game_actions
		SET video_url = ?, video_storage_path = ?, video_size = ?,
			thumbnail_url = ?, thumbnail_storage_path = ?,
			upload_status = ?, upload_error = ''
		WHERE id = ? AND upload_status = ?`),
		upd.VideoURL, upd.VideoStoragePath, upd.VideoSizeBytes,
		upd.ThumbnailURL, upd.ThumbnailStoragePath,
		models.UploadStatusCompleted, id, models.UploadStatusUploading)
	if err != nil {
		return fmt.Errorf("failed to complete ledger record: %w", err)
	}
	return l.requireTransition(result, "completed", id)
}

func (l *SQLLedger) Fail(ctx context.Context, key Key, message string) error {
	id, err := l.findRowID(ctx, key)
	if err != nil {
		return err
	}

	result, err := l.db.Conn().ExecContext(ctx, l.rebind(`
		UPDATE game_actions SET upload_status = ?, upload_error = ?
		WHERE id = ? AND upload_status = ?`),
		models.UploadStatusFailed, message, id, models.UploadStatusUploading)
	if err != nil {
		return fmt.Errorf("failed to mark ledger record failed: %w", err)
	}
	return l.requireTransition(result, "failed", id)
}

func (l *SQLLedger) requireTransition(result sql.Result, target string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invalid status transition to %s for record %d", target, id)
	}
	return nil
}

const recordColumns = `id, game_id, player_id, card_id, correlation_id,
	video_url, video_storage_path, video_size, thumbnail_url, thumbnail_storage_path,
	upload_status, upload_error, video_recorded, created_at`

func (l *SQLLedger) Get(ctx context.Context, key Key) (*models.SyncStatusRecord, error) {
	id, err := l.findRowID(ctx, key)
	if err != nil {
		return nil, err
	}

	row := l.db.Conn().QueryRowContext(ctx,
		l.rebind("SELECT "+recordColumns+" FROM game_actions WHERE id = ?"), id)
	return scanRecord(row)
}

func (l *SQLLedger) ListFailed(ctx context.Context, gameID string) ([]*models.SyncStatusRecord, error) {
	return l.list(ctx, l.rebind(`
		SELECT `+recordColumns+` FROM game_actions
		WHERE game_id = ? AND upload_status = ? AND video_recorded = ?
		ORDER BY created_at`),
		gameID, models.UploadStatusFailed, true)
}

func (l *SQLLedger) ListRecorded(ctx context.Context, gameID string) ([]*models.SyncStatusRecord, error) {
	return l.list(ctx, l.rebind(`
		SELECT `+recordColumns+` FROM game_actions
		WHERE game_id = ? AND video_recorded = ?
		ORDER BY created_at`),
		gameID, true)
}

func (l *SQLLedger) list(ctx context.Context, query string, args ...interface{}) ([]*models.SyncStatusRecord, error) {
	rows, err := l.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var records []*models.SyncStatusRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.SyncStatusRecord, error) {
	var rec models.SyncStatusRecord
	err := row.Scan(
		&rec.ID, &rec.GameID, &rec.PlayerID, &rec.CardID, &rec.CorrelationID,
		&rec.VideoURL, &rec.VideoStoragePath, &rec.VideoSizeBytes,
		&rec.ThumbnailURL, &rec.ThumbnailStoragePath,
		&rec.UploadStatus, &rec.UploadError, &rec.VideoRecorded, &rec.CreatedAtMillis,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger record: %w", err)
	}
	return &rec, nil
}
