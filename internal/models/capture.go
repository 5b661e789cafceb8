package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload status values for a sync status record. Transitions only move
// forward: pending -> uploading -> completed|failed. A failed record goes
// back to uploading only through an explicit retry.
const (
	UploadStatusPending   = "pending"
	UploadStatusUploading = "uploading"
	UploadStatusCompleted = "completed"
	UploadStatusFailed    = "failed"
)

// MediaCapture is one recorded clip of a player performing a card's action.
// It is owned by the local durable store; after Save only the thumbnail and
// the mime-type backfill may change.
type MediaCapture struct {
	LocalID               int64
	CorrelationID         string
	GameID                string
	PlayerID              string
	PlayerName            string
	CardID                string
	CardLabel             string
	CardCategory          string
	MIMEType              string
	VideoBlob             []byte
	ThumbnailBlob         []byte
	Success               bool
	CompletionTimeSeconds float64
	CreatedAtMillis       int64
}

func NewMediaCapture(gameID, playerID, playerName, cardID, cardLabel, cardCategory, mimeType string, videoBlob []byte, success bool, completionTime float64) *MediaCapture {
	return &MediaCapture{
		CorrelationID:         uuid.New().String(),
		GameID:                gameID,
		PlayerID:              playerID,
		PlayerName:            playerName,
		CardID:                cardID,
		CardLabel:             cardLabel,
		CardCategory:          cardCategory,
		MIMEType:              mimeType,
		VideoBlob:             videoBlob,
		Success:               success,
		CompletionTimeSeconds: completionTime,
		CreatedAtMillis:       time.Now().UnixMilli(),
	}
}

// SyncStatusRecord mirrors the fields of a remote game_actions row that the
// upload pipeline reads and writes.
type SyncStatusRecord struct {
	ID                   int64
	GameID               string
	PlayerID             string
	CardID               string
	CorrelationID        string
	VideoURL             string
	VideoStoragePath     string
	VideoSizeBytes       int64
	ThumbnailURL         string
	ThumbnailStoragePath string
	UploadStatus         string
	UploadError          string
	VideoRecorded        bool
	CreatedAtMillis      int64
}

// CompilationClip is one entry of a compilation job: the clip bytes plus the
// title-card text shown before it.
type CompilationClip struct {
	VideoBlob  []byte
	PlayerName string
	CardLabel  string
}

// Game is a row of the games store. The score-keeping layer on top of it
// lives outside this service.
type Game struct {
	ID              int64
	Name            string
	CreatedAtMillis int64
}
