// Package ledger tracks per-capture upload status in the remote relational
// collaborator (the game_actions rows). The pipeline reads and writes the
// video-sync fields only; the rest of the row belongs to the score-keeping
// layer.
package ledger

import (
	"context"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
)

// Key identifies the ledger row for one capture. CorrelationID is matched
// first; the (game, player, card) triple is the legacy fallback for rows
// created before correlation ids existed, resolved most-recent-first.
type Key struct {
	GameID        string
	PlayerID      string
	CardID        string
	CorrelationID string
}

// CompletionUpdate carries the terminal success fields.
type CompletionUpdate struct {
	VideoURL             string
	VideoStoragePath     string
	VideoSizeBytes       int64
	ThumbnailURL         string
	ThumbnailStoragePath string
}

type Ledger interface {
	// CreatePending inserts a pending row for a fresh capture.
	CreatePending(ctx context.Context, rec *models.SyncStatusRecord) error
	// MarkUploading moves pending -> uploading. With retry set it also
	// accepts failed -> uploading; that is the only path out of failed.
	MarkUploading(ctx context.Context, key Key, retry bool) error
	// Complete and Fail are terminal; each applies at most once per attempt.
	Complete(ctx context.Context, key Key, upd CompletionUpdate) error
	Fail(ctx context.Context, key Key, message string) error

	Get(ctx context.Context, key Key) (*models.SyncStatusRecord, error)
	// ListFailed is the explicit-retry discovery query: failed rows with a
	// recorded video.
	ListFailed(ctx context.Context, gameID string) ([]*models.SyncStatusRecord, error)
	// ListRecorded returns every recorded row for a game in created order.
	ListRecorded(ctx context.Context, gameID string) ([]*models.SyncStatusRecord, error)
}
