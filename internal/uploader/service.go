package uploader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/database"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/ledger"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/objectstore"
)

// Progress reports upload task progress to an optional caller callback.
type Progress struct {
	Status   string
	Progress int
	Error    string
}

type ProgressFunc func(Progress)

// Service owns the upload task body: move a locally durable capture into
// remote storage and record the outcome in the sync status ledger.
type Service struct {
	captures    *database.CaptureRepository
	ledger      ledger.Ledger
	gateway     objectstore.Gateway
	queue       *Queue
	mediaBucket string
	thumbBucket string
	logger      zerolog.Logger
}

func NewService(captures *database.CaptureRepository, led ledger.Ledger, gw objectstore.Gateway, queue *Queue, mediaBucket, thumbBucket string, logger zerolog.Logger) *Service {
	return &Service{
		captures:    captures,
		ledger:      led,
		gateway:     gw,
		queue:       queue,
		mediaBucket: mediaBucket,
		thumbBucket: thumbBucket,
		logger:      logger.With().Str("component", "uploader").Logger(),
	}
}

// EnqueueCapture creates the pending ledger row for an already-saved capture
// and queues its upload. The capture must be durable locally before this is
// called; the queue never sees a capture the store cannot return.
func (s *Service) EnqueueCapture(ctx context.Context, capture *models.MediaCapture, priority string, onProgress ProgressFunc) error {
	if capture.LocalID == 0 {
		return fmt.Errorf("capture is not stored locally")
	}

	err := s.ledger.CreatePending(ctx, &models.SyncStatusRecord{
		GameID:        capture.GameID,
		PlayerID:      capture.PlayerID,
		CardID:        capture.CardID,
		CorrelationID: capture.CorrelationID,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger record: %w", err)
	}

	return s.enqueue(ctx, capture.LocalID, captureKey(capture), priority, false, onProgress)
}

// enqueue hands the upload task to the outbox. A capture the queue rejects
// or later drops never runs, so its ledger row is walked to failed here;
// that keeps it discoverable by the explicit retry query.
func (s *Service) enqueue(ctx context.Context, captureID int64, key ledger.Key, priority string, retry bool, onProgress ProgressFunc) error {
	reportFailed := func(err error) {
		if onProgress != nil {
			onProgress(Progress{Status: models.UploadStatusFailed, Error: err.Error()})
		}
	}
	task := &Task{
		Name: fmt.Sprintf("upload-capture-%d", captureID),
		Run: func(ctx context.Context) error {
			return s.upload(ctx, captureID, key, retry, onProgress)
		},
		OnError: reportFailed,
		OnDrop: func(err error) {
			s.failLedger(context.Background(), key, retry, err)
			reportFailed(err)
		},
	}
	if err := s.queue.Enqueue(task, priority); err != nil {
		s.failLedger(ctx, key, retry, err)
		reportFailed(err)
		return fmt.Errorf("failed to queue upload: %w", err)
	}
	return nil
}

// upload is the task body. The capture is read back from the store at
// execution time so a thumbnail generated after enqueueing still rides
// along.
func (s *Service) upload(ctx context.Context, captureID int64, key ledger.Key, retry bool, onProgress ProgressFunc) error {
	capture, err := s.captures.GetByID(ctx, captureID)
	if err != nil {
		s.failLedger(ctx, key, retry, err)
		return &models.UploadError{Err: err}
	}

	if err := s.ledger.MarkUploading(ctx, key, retry); err != nil {
		return fmt.Errorf("failed to mark uploading: %w", err)
	}
	s.progress(onProgress, models.UploadStatusUploading, 10)

	path := media.StoragePath(capture.GameID, capture.PlayerName, capture.CardLabel, capture.CreatedAtMillis, capture.MIMEType)
	storedPath, err := s.gateway.Put(ctx, s.mediaBucket, path, capture.VideoBlob, capture.MIMEType)
	if err != nil {
		s.failTerminal(ctx, key, err)
		s.progress(onProgress, models.UploadStatusFailed, 0)
		return &models.UploadError{Path: path, Err: err}
	}
	s.progress(onProgress, models.UploadStatusUploading, 80)

	upd := ledger.CompletionUpdate{
		VideoURL:         s.gateway.PublicURL(s.mediaBucket, storedPath),
		VideoStoragePath: storedPath,
		VideoSizeBytes:   int64(len(capture.VideoBlob)),
	}

	// Thumbnail upload is best effort: its failure is logged and swallowed.
	if len(capture.ThumbnailBlob) > 0 {
		thumbPath := media.ThumbnailPath(storedPath)
		stored, err := s.gateway.Put(ctx, s.thumbBucket, thumbPath, capture.ThumbnailBlob, "image/jpeg")
		if err != nil {
			s.logger.Warn().Int64("capture", captureID).Err(err).Msg("thumbnail upload failed, continuing without it")
		} else {
			upd.ThumbnailURL = s.gateway.PublicURL(s.thumbBucket, stored)
			upd.ThumbnailStoragePath = stored
			s.progress(onProgress, models.UploadStatusUploading, 90)
		}
	}

	if err := s.ledger.Complete(ctx, key, upd); err != nil {
		return fmt.Errorf("upload stored but ledger update failed: %w", err)
	}

	s.progress(onProgress, models.UploadStatusCompleted, 100)
	s.logger.Info().Int64("capture", captureID).Str("path", storedPath).Msg("capture uploaded")
	return nil
}

// failLedger records a pre-upload failure, walking the record through
// uploading so the terminal transition stays forward-only.
func (s *Service) failLedger(ctx context.Context, key ledger.Key, retry bool, cause error) {
	if err := s.ledger.MarkUploading(ctx, key, retry); err != nil {
		s.logger.Warn().Err(err).Msg("could not mark ledger record uploading before failure")
		return
	}
	s.failTerminal(ctx, key, cause)
}

func (s *Service) failTerminal(ctx context.Context, key ledger.Key, cause error) {
	if err := s.ledger.Fail(ctx, key, cause.Error()); err != nil {
		s.logger.Error().Err(err).Msg("failed to record upload failure in ledger")
	}
}

func (s *Service) progress(fn ProgressFunc, status string, pct int) {
	if fn != nil {
		fn(Progress{Status: status, Progress: pct})
	}
}

// RetryFailed re-enqueues every failed upload for a game at high priority.
// This is the only path that moves a ledger record out of failed.
func (s *Service) RetryFailed(ctx context.Context, gameID string) (int, error) {
	failed, err := s.ledger.ListFailed(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed uploads: %w", err)
	}
	if len(failed) == 0 {
		return 0, nil
	}

	captures, err := s.captures.GetByGame(ctx, gameID)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, rec := range failed {
		capture := matchCapture(captures, rec)
		if capture == nil {
			s.logger.Warn().Str("game", rec.GameID).Str("card", rec.CardID).Msg("no local capture for failed upload, skipping")
			continue
		}
		key := ledger.Key{
			GameID:        rec.GameID,
			PlayerID:      rec.PlayerID,
			CardID:        rec.CardID,
			CorrelationID: rec.CorrelationID,
		}
		if err := s.enqueue(ctx, capture.LocalID, key, PriorityHigh, true, nil); err != nil {
			return retried, err
		}
		retried++
	}

	s.logger.Info().Str("game", gameID).Int("count", retried).Msg("retrying failed uploads")
	return retried, nil
}

// matchCapture pairs a ledger record with its local capture: correlation id
// first, then the most recent (player, card) match for legacy rows.
func matchCapture(captures []*models.MediaCapture, rec *models.SyncStatusRecord) *models.MediaCapture {
	if rec.CorrelationID != "" {
		for _, c := range captures {
			if c.CorrelationID == rec.CorrelationID {
				return c
			}
		}
	}
	var latest *models.MediaCapture
	for _, c := range captures {
		if c.PlayerID == rec.PlayerID && c.CardID == rec.CardID {
			if latest == nil || c.CreatedAtMillis >= latest.CreatedAtMillis {
				latest = c
			}
		}
	}
	return latest
}

func captureKey(capture *models.MediaCapture) ledger.Key {
	return ledger.Key{
		GameID:        capture.GameID,
		PlayerID:      capture.PlayerID,
		CardID:        capture.CardID,
		CorrelationID: capture.CorrelationID,
	}
}
