package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
)

// DefaultMIMEType is backfilled into legacy rows that predate the mime
// column; the original recorder produced WebM on every platform that ran it.
const DefaultMIMEType = "video/webm"

type CaptureRepository struct {
	db        *DB
	validator *media.Validator
}

func NewCaptureRepository(db *DB, validator *media.Validator) *CaptureRepository {
	return &CaptureRepository{db: db, validator: validator}
}

const captureColumns = `id, game_id, player_id, player_name, card_id, card_label, card_category,
	mime_type, correlation_id, video_blob, thumbnail_blob, success, completion_time, created_at`

// Save validates the capture's blob and writes the record in a single
// transaction. The record is durable before Save returns; nothing else in
// the pipeline (thumbnail, upload) happens before that.
func (r *CaptureRepository) Save(ctx context.Context, capture *models.MediaCapture) (int64, error) {
	res := r.validator.ValidateBlob(capture.VideoBlob, capture.MIMEType)
	if !res.Valid {
		return 0, &models.ValidationError{Reason: res.Reason}
	}
	if capture.MIMEType == "" {
		capture.MIMEType = res.DetectedType
	}
	if capture.CorrelationID == "" {
		capture.CorrelationID = uuid.New().String()
	}

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return 0, &models.StorageError{Op: "save", Err: err}
	}
	defer tx.Rollback()

	var completion interface{}
	if capture.CompletionTimeSeconds > 0 {
		completion = capture.CompletionTimeSeconds
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO videos (game_id, player_id, player_name, card_id, card_label, card_category,
			mime_type, correlation_id, video_blob, thumbnail_blob, success, completion_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		capture.GameID, capture.PlayerID, capture.PlayerName, capture.CardID, capture.CardLabel,
		capture.CardCategory, capture.MIMEType, capture.CorrelationID, capture.VideoBlob,
		capture.ThumbnailBlob, capture.Success, completion, capture.CreatedAtMillis,
	)
	if err != nil {
		return 0, &models.StorageError{Op: "save", Err: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, &models.StorageError{Op: "save", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &models.StorageError{Op: "save", Err: err}
	}

	capture.LocalID = id
	return id, nil
}

func (r *CaptureRepository) GetByID(ctx context.Context, id int64) (*models.MediaCapture, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		"SELECT "+captureColumns+" FROM videos WHERE id = ?", id)

	capture, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("capture %d not found", id)
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get", Err: err}
	}
	return capture, nil
}

// GetByGame returns a game's captures in insertion order.
func (r *CaptureRepository) GetByGame(ctx context.Context, gameID string) ([]*models.MediaCapture, error) {
	return r.query(ctx,
		"SELECT "+captureColumns+" FROM videos WHERE game_id = ? ORDER BY id", gameID)
}

func (r *CaptureRepository) GetAll(ctx context.Context) ([]*models.MediaCapture, error) {
	return r.query(ctx, "SELECT "+captureColumns+" FROM videos ORDER BY id")
}

func (r *CaptureRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.MediaCapture, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &models.StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	var captures []*models.MediaCapture
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, &models.StorageError{Op: "scan", Err: err}
		}
		captures = append(captures, capture)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "query", Err: err}
	}
	return captures, nil
}

func (r *CaptureRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Conn().ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return &models.StorageError{Op: "delete", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &models.StorageError{Op: "delete", Err: err}
	}
	if affected == 0 {
		return fmt.Errorf("capture %d not found", id)
	}
	return nil
}

// Clear wipes both logical stores.
func (r *CaptureRepository) Clear(ctx context.Context) error {
	if _, err := r.db.Conn().ExecContext(ctx, "DELETE FROM videos"); err != nil {
		return &models.StorageError{Op: "clear", Err: err}
	}
	if _, err := r.db.Conn().ExecContext(ctx, "DELETE FROM games"); err != nil {
		return &models.StorageError{Op: "clear", Err: err}
	}
	return nil
}

// SetThumbnail backfills a capture's thumbnail. This and the mime backfill
// are the only mutations allowed after Save.
func (r *CaptureRepository) SetThumbnail(ctx context.Context, id int64, thumbnail []byte) error {
	result, err := r.db.Conn().ExecContext(ctx,
		"UPDATE videos SET thumbnail_blob = ? WHERE id = ?", thumbnail, id)
	if err != nil {
		return &models.StorageError{Op: "set thumbnail", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &models.StorageError{Op: "set thumbnail", Err: err}
	}
	if affected == 0 {
		return fmt.Errorf("capture %d not found", id)
	}
	return nil
}

// BackfillMIMETypes defaults the mime type on rows that predate the column.
// Idempotent: a second run updates nothing.
func (r *CaptureRepository) BackfillMIMETypes(ctx context.Context) (int64, error) {
	result, err := r.db.Conn().ExecContext(ctx,
		"UPDATE videos SET mime_type = ? WHERE mime_type = '' OR mime_type IS NULL", DefaultMIMEType)
	if err != nil {
		return 0, &models.StorageError{Op: "backfill mime types", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &models.StorageError{Op: "backfill mime types", Err: err}
	}
	return affected, nil
}

type StorageEstimate struct {
	CaptureCount   int64
	VideoBytes     int64
	ThumbnailBytes int64
}

func (r *CaptureRepository) StorageEstimate(ctx context.Context) (*StorageEstimate, error) {
	var est StorageEstimate
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(LENGTH(video_blob)), 0),
			COALESCE(SUM(LENGTH(thumbnail_blob)), 0)
		FROM videos`).Scan(&est.CaptureCount, &est.VideoBytes, &est.ThumbnailBytes)
	if err != nil {
		return nil, &models.StorageError{Op: "estimate", Err: err}
	}
	return &est, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row rowScanner) (*models.MediaCapture, error) {
	var capture models.MediaCapture
	var completion sql.NullFloat64

	err := row.Scan(
		&capture.LocalID, &capture.GameID, &capture.PlayerID, &capture.PlayerName,
		&capture.CardID, &capture.CardLabel, &capture.CardCategory,
		&capture.MIMEType, &capture.CorrelationID, &capture.VideoBlob,
		&capture.ThumbnailBlob, &capture.Success, &completion, &capture.CreatedAtMillis,
	)
	if err != nil {
		return nil, err
	}
	if completion.Valid {
		capture.CompletionTimeSeconds = completion.Float64
	}
	return &capture, nil
}
