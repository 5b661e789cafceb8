package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/compiler"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/database"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/ledger"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/objectstore"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/uploader"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// ThumbnailGenerator derives a preview image from a video blob, returning
// nil when one cannot be produced.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, blob []byte) []byte
}

// CompilationEngine renders ordered clips into one output video.
type CompilationEngine interface {
	Compile(ctx context.Context, clips []models.CompilationClip, opts compiler.Options) (*compiler.Result, error)
}

type App struct {
	Captures       *database.CaptureRepository
	Games          *database.GameRepository
	Ledger         ledger.Ledger
	Gateway        objectstore.Gateway
	Uploads        *uploader.Service
	Thumbnails     ThumbnailGenerator
	Compiler       CompilationEngine
	CompileOptions compiler.Options
	MediaBucket    string
	ThumbBucket    string
	MaxUploadSize  int64
	Logger         zerolog.Logger
}

type gameRequest struct {
	Name string `json:"name"`
}

type gameView struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CreatedAtMillis int64  `json:"created_at_millis"`
}

func (app *App) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		app.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := app.Games.Create(r.Context(), req.Name)
	if err != nil {
		app.Logger.Error().Err(err).Msg("failed to create game")
		app.writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}

	game, err := app.Games.GetByID(r.Context(), id)
	if err != nil {
		app.Logger.Error().Err(err).Msg("failed to read back game")
		app.writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}
	app.writeJSON(w, http.StatusCreated, gameView{ID: game.ID, Name: game.Name, CreatedAtMillis: game.CreatedAtMillis})
}

func (app *App) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	games, err := app.Games.ListRecent(r.Context(), limit)
	if err != nil {
		app.Logger.Error().Err(err).Msg("failed to list games")
		app.writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}

	views := make([]gameView, 0, len(games))
	for _, g := range games {
		views = append(views, gameView{ID: g.ID, Name: g.Name, CreatedAtMillis: g.CreatedAtMillis})
	}
	app.writeJSON(w, http.StatusOK, views)
}

type captureCreated struct {
	ID            int64  `json:"id"`
	CorrelationID string `json:"correlation_id"`
	UploadStatus  string `json:"upload_status"`
}

// CreateCaptureHandler ingests one recorded clip: validate, save durably,
// kick off thumbnail generation in the background, then register the upload.
// The `upload=false` query skips cloud sync entirely.
func (app *App) CreateCaptureHandler(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.writeError(w, http.StatusBadRequest, "request too large or malformed")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(file)
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "failed to read video data")
		return
	}

	playerName := r.FormValue("player_name")
	cardLabel := r.FormValue("card_label")
	if playerName == "" || cardLabel == "" {
		app.writeError(w, http.StatusBadRequest, "player_name and card_label are required")
		return
	}

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	success, _ := strconv.ParseBool(r.FormValue("success"))
	completionTime, _ := strconv.ParseFloat(r.FormValue("completion_time"), 64)

	capture := models.NewMediaCapture(
		gameID,
		r.FormValue("player_id"),
		playerName,
		r.FormValue("card_id"),
		cardLabel,
		r.FormValue("card_category"),
		mimeType,
		blob,
		success,
		completionTime,
	)

	id, err := app.Captures.Save(r.Context(), capture)
	if err != nil {
		var valErr *models.ValidationError
		if errors.As(err, &valErr) {
			app.writeError(w, http.StatusBadRequest, valErr.Reason)
			return
		}
		app.Logger.Error().Err(err).Str("game_id", gameID).Msg("failed to save capture")
		app.writeError(w, http.StatusInternalServerError, "failed to save capture")
		return
	}

	app.generateThumbnailAsync(id, blob)

	status := models.UploadStatusPending
	if r.URL.Query().Get("upload") == "false" {
		status = "local_only"
	} else {
		priority := r.FormValue("priority")
		if err := app.Uploads.EnqueueCapture(r.Context(), capture, priority, nil); err != nil {
			app.Logger.Error().Err(err).Int64("capture_id", id).Msg("failed to enqueue upload")
			app.writeError(w, http.StatusServiceUnavailable, "capture saved but upload could not be queued")
			return
		}
	}

	app.writeJSON(w, http.StatusCreated, captureCreated{
		ID:            id,
		CorrelationID: capture.CorrelationID,
		UploadStatus:  status,
	})
}

// generateThumbnailAsync backfills the thumbnail without blocking the
// response. The upload task re-reads the capture at execution time, so a
// thumbnail finished before the upload runs still rides along.
func (app *App) generateThumbnailAsync(captureID int64, blob []byte) {
	if app.Thumbnails == nil {
		return
	}
	go func() {
		thumb := app.Thumbnails.Generate(context.Background(), blob)
		if thumb == nil {
			return
		}
		if err := app.Captures.SetThumbnail(context.Background(), captureID, thumb); err != nil {
			app.Logger.Warn().Err(err).Int64("capture_id", captureID).Msg("failed to store thumbnail")
		}
	}()
}

type captureSummary struct {
	ID                    int64   `json:"id"`
	CorrelationID         string  `json:"correlation_id"`
	PlayerID              string  `json:"player_id"`
	PlayerName            string  `json:"player_name"`
	CardID                string  `json:"card_id"`
	CardLabel             string  `json:"card_label"`
	CardCategory          string  `json:"card_category,omitempty"`
	MIMEType              string  `json:"mime_type"`
	Success               bool    `json:"success"`
	CompletionTimeSeconds float64 `json:"completion_time_seconds,omitempty"`
	CreatedAtMillis       int64   `json:"created_at_millis"`
	VideoSizeBytes        int64   `json:"video_size_bytes"`
	HasThumbnail          bool    `json:"has_thumbnail"`
}

func (app *App) ListCapturesHandler(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	captures, err := app.Captures.GetByGame(r.Context(), gameID)
	if err != nil {
		app.Logger.Error().Err(err).Str("game_id", gameID).Msg("failed to list captures")
		app.writeError(w, http.StatusInternalServerError, "failed to list captures")
		return
	}

	summaries := make([]captureSummary, 0, len(captures))
	for _, c := range captures {
		summaries = append(summaries, captureSummary{
			ID:                    c.LocalID,
			CorrelationID:         c.CorrelationID,
			PlayerID:              c.PlayerID,
			PlayerName:            c.PlayerName,
			CardID:                c.CardID,
			CardLabel:             c.CardLabel,
			CardCategory:          c.CardCategory,
			MIMEType:              c.MIMEType,
			Success:               c.Success,
			CompletionTimeSeconds: c.CompletionTimeSeconds,
			CreatedAtMillis:       c.CreatedAtMillis,
			VideoSizeBytes:        int64(len(c.VideoBlob)),
			HasThumbnail:          len(c.ThumbnailBlob) > 0,
		})
	}
	app.writeJSON(w, http.StatusOK, summaries)
}

func (app *App) VideoHandler(w http.ResponseWriter, r *http.Request) {
	capture := app.captureFromURL(w, r)
	if capture == nil {
		return
	}

	filename := media.DownloadFilename(capture.PlayerName, capture.CardLabel,
		capture.Success, capture.CreatedAtMillis, capture.MIMEType)

	w.Header().Set("Content-Type", capture.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(capture.VideoBlob)))
	w.Write(capture.VideoBlob)
}

func (app *App) ThumbnailHandler(w http.ResponseWriter, r *http.Request) {
	capture := app.captureFromURL(w, r)
	if capture == nil {
		return
	}
	if len(capture.ThumbnailBlob) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(capture.ThumbnailBlob)
}

// DeleteCaptureHandler removes the capture locally and makes a best-effort
// attempt to remove its remote objects. A remote removal failure is logged,
// not surfaced: the local delete is the operation of record.
func (app *App) DeleteCaptureHandler(w http.ResponseWriter, r *http.Request) {
	capture := app.captureFromURL(w, r)
	if capture == nil {
		return
	}

	videoPath := media.StoragePath(capture.GameID, capture.PlayerName,
		capture.CardLabel, capture.CreatedAtMillis, capture.MIMEType)
	if err := app.Gateway.Remove(r.Context(), app.MediaBucket, videoPath); err != nil {
		app.Logger.Warn().Err(err).Str("path", videoPath).Msg("remote video removal failed")
	}
	thumbPath := media.ThumbnailPath(videoPath)
	if err := app.Gateway.Remove(r.Context(), app.ThumbBucket, thumbPath); err != nil {
		app.Logger.Warn().Err(err).Str("path", thumbPath).Msg("remote thumbnail removal failed")
	}

	if err := app.Captures.Delete(r.Context(), capture.LocalID); err != nil {
		app.Logger.Error().Err(err).Int64("capture_id", capture.LocalID).Msg("failed to delete capture")
		app.writeError(w, http.StatusInternalServerError, "failed to delete capture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) RetryHandler(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	retried, err := app.Uploads.RetryFailed(r.Context(), gameID)
	if err != nil {
		app.Logger.Error().Err(err).Str("game_id", gameID).Msg("retry discovery failed")
		app.writeError(w, http.StatusInternalServerError, "failed to retry uploads")
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]int{"retried": retried})
}

// CompilationHandler renders every capture of a game, in insertion order,
// into one highlight video and streams it back.
func (app *App) CompilationHandler(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	if app.Compiler == nil {
		app.writeError(w, http.StatusServiceUnavailable, "compilation is not available on this host")
		return
	}

	captures, err := app.Captures.GetByGame(r.Context(), gameID)
	if err != nil {
		app.Logger.Error().Err(err).Str("game_id", gameID).Msg("failed to load captures for compilation")
		app.writeError(w, http.StatusInternalServerError, "failed to load captures")
		return
	}
	if len(captures) == 0 {
		app.writeError(w, http.StatusBadRequest, "no captures to compile")
		return
	}

	clips := make([]models.CompilationClip, 0, len(captures))
	for _, c := range captures {
		clips = append(clips, models.CompilationClip{
			VideoBlob:  c.VideoBlob,
			PlayerName: c.PlayerName,
			CardLabel:  c.CardLabel,
		})
	}

	result, err := app.Compiler.Compile(r.Context(), clips, app.CompileOptions)
	if err != nil {
		app.Logger.Error().Err(err).Str("game_id", gameID).Msg("compilation failed")
		app.writeError(w, http.StatusInternalServerError, "compilation failed")
		return
	}

	filename := fmt.Sprintf("compilation_%s_%s.%s",
		media.SanitizeToken(gameID),
		time.Now().Format("2006-01-02"),
		media.ExtensionForMIME(result.MIMEType))

	w.Header().Set("Content-Type", result.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Write(result.Data)
}

type storageStats struct {
	Local struct {
		CaptureCount   int64  `json:"capture_count"`
		VideoBytes     int64  `json:"video_bytes"`
		ThumbnailBytes int64  `json:"thumbnail_bytes"`
		TotalDisplay   string `json:"total_display"`
	} `json:"local"`
	Remote map[string]objectstore.BucketStats `json:"remote"`
}

func (app *App) StorageStatsHandler(w http.ResponseWriter, r *http.Request) {
	estimate, err := app.Captures.StorageEstimate(r.Context())
	if err != nil {
		app.Logger.Error().Err(err).Msg("failed to compute local storage estimate")
		app.writeError(w, http.StatusInternalServerError, "failed to compute storage stats")
		return
	}

	remote, err := objectstore.Stats(r.Context(), app.Gateway, app.MediaBucket, app.ThumbBucket)
	if err != nil {
		app.Logger.Error().Err(err).Msg("failed to aggregate remote storage stats")
		app.writeError(w, http.StatusInternalServerError, "failed to compute storage stats")
		return
	}

	var stats storageStats
	stats.Local.CaptureCount = estimate.CaptureCount
	stats.Local.VideoBytes = estimate.VideoBytes
	stats.Local.ThumbnailBytes = estimate.ThumbnailBytes
	stats.Local.TotalDisplay = media.FormatBytes(estimate.VideoBytes + estimate.ThumbnailBytes)
	stats.Remote = remote
	app.writeJSON(w, http.StatusOK, stats)
}

func (app *App) captureFromURL(w http.ResponseWriter, r *http.Request) *models.MediaCapture {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return nil
	}
	capture, err := app.Captures.GetByID(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return nil
	}
	return capture
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (app *App) writeError(w http.ResponseWriter, status int, message string) {
	app.writeJSON(w, status, map[string]string{"error": message})
}
