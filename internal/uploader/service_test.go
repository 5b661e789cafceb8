package uploader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/database"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/ledger"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/media"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
	"github.com/humberto2626/Ready-Sit-Play-V2/internal/objectstore"
)

type fakeGateway struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failBuckets map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: map[string][]byte{}, failBuckets: map[string]bool{}}
}

func (g *fakeGateway) setFail(bucket string, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failBuckets[bucket] = fail
}

func (g *fakeGateway) Put(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failBuckets[bucket] {
		return "", fmt.Errorf("simulated %s outage", bucket)
	}
	g.objects[bucket+"/"+path] = data
	return path, nil
}

func (g *fakeGateway) PublicURL(bucket, path string) string {
	return "http://cdn.test/" + bucket + "/" + path
}

func (g *fakeGateway) Remove(ctx context.Context, bucket, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, bucket+"/"+path)
	return nil
}

func (g *fakeGateway) List(ctx context.Context, bucket, prefix string) ([]objectstore.ObjectInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var objects []objectstore.ObjectInfo
	for key, data := range g.objects {
		if strings.HasPrefix(key, bucket+"/"+prefix) {
			objects = append(objects, objectstore.ObjectInfo{
				Path: strings.TrimPrefix(key, bucket+"/"),
				Size: int64(len(data)),
			})
		}
	}
	return objects, nil
}

func (g *fakeGateway) has(bucket, path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[bucket+"/"+path]
	return ok
}

func setupService(t *testing.T) (*Service, *database.CaptureRepository, *ledger.SQLLedger, *fakeGateway) {
	t.Helper()
	queue := NewQueue(16, time.Millisecond, zerolog.Nop(), nil)
	t.Cleanup(queue.Close)
	return setupServiceQueue(t, queue)
}

func setupServiceQueue(t *testing.T, queue *Queue) (*Service, *database.CaptureRepository, *ledger.SQLLedger, *fakeGateway) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(database.Config{Type: "sqlite", SQLitePath: filepath.Join(dir, "store.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := database.NewMigrator(db).Run(context.Background()); err != nil {
		t.Fatalf("Failed to migrate store: %v", err)
	}
	captures := database.NewCaptureRepository(db, media.NewValidator(0))

	ledgerDB, err := database.Open(database.Config{Type: "sqlite", SQLitePath: filepath.Join(dir, "ledger.db")})
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { ledgerDB.Close() })
	led := ledger.NewSQLLedger(ledgerDB)
	if err := led.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to ensure ledger schema: %v", err)
	}

	gw := newFakeGateway()
	svc := NewService(captures, led, gw, queue, "game-videos", "video-thumbnails", zerolog.Nop())
	return svc, captures, led, gw
}

func saveCapture(t *testing.T, captures *database.CaptureRepository, thumbnail []byte) *models.MediaCapture {
	t.Helper()
	blob := make([]byte, 2*1024*1024)
	copy(blob, []byte{0x1A, 0x45, 0xDF, 0xA3})
	capture := models.NewMediaCapture("G1", "alice-id", "Alice", "sit-card-id", "sit", "obedience",
		"video/webm", blob, true, 3.5)
	capture.ThumbnailBlob = thumbnail
	if _, err := captures.Save(context.Background(), capture); err != nil {
		t.Fatalf("Failed to save capture: %v", err)
	}
	return capture
}

func ledgerKey(c *models.MediaCapture) ledger.Key {
	return ledger.Key{GameID: c.GameID, PlayerID: c.PlayerID, CardID: c.CardID, CorrelationID: c.CorrelationID}
}

func waitForStatus(t *testing.T, led *ledger.SQLLedger, key ledger.Key, want string) *models.SyncStatusRecord {
	t.Helper()
	var rec *models.SyncStatusRecord
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := led.Get(context.Background(), key)
		if err == nil && got.UploadStatus == want {
			rec = got
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec == nil {
		got, _ := led.Get(context.Background(), key)
		t.Fatalf("Ledger never reached %s, last: %+v", want, got)
	}
	return rec
}

func TestService_UploadCompletes(t *testing.T) {
	svc, captures, led, gw := setupService(t)
	capture := saveCapture(t, captures, []byte{0xFF, 0xD8, 1, 2})

	if err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, nil); err != nil {
		t.Fatalf("EnqueueCapture failed: %v", err)
	}

	rec := waitForStatus(t, led, ledgerKey(capture), models.UploadStatusCompleted)

	if rec.VideoURL == "" || rec.VideoStoragePath == "" {
		t.Errorf("Completion fields missing: %+v", rec)
	}
	if rec.VideoSizeBytes != int64(len(capture.VideoBlob)) {
		t.Errorf("Expected video size %d, got %d", len(capture.VideoBlob), rec.VideoSizeBytes)
	}
	if !strings.HasPrefix(rec.VideoStoragePath, "G1/Alice_sit_") {
		t.Errorf("Unexpected storage path: %s", rec.VideoStoragePath)
	}
	if !gw.has("game-videos", rec.VideoStoragePath) {
		t.Error("Video object missing from gateway")
	}
	if rec.ThumbnailURL == "" || !gw.has("video-thumbnails", rec.ThumbnailStoragePath) {
		t.Error("Thumbnail was not uploaded")
	}
	if !strings.HasSuffix(rec.ThumbnailStoragePath, "_thumb.jpg") {
		t.Errorf("Unexpected thumbnail path: %s", rec.ThumbnailStoragePath)
	}
}

func TestService_PrimaryFailureRecordsLedger(t *testing.T) {
	svc, captures, led, gw := setupService(t)
	capture := saveCapture(t, captures, nil)
	gw.setFail("game-videos", true)

	var progressMu sync.Mutex
	var failedReported bool
	onProgress := func(p Progress) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if p.Status == models.UploadStatusFailed {
			failedReported = true
		}
	}

	if err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, onProgress); err != nil {
		t.Fatalf("EnqueueCapture failed: %v", err)
	}

	rec := waitForStatus(t, led, ledgerKey(capture), models.UploadStatusFailed)
	if !strings.Contains(rec.UploadError, "outage") {
		t.Errorf("Expected outage message, got %q", rec.UploadError)
	}

	// The capture survives locally for a later retry.
	if _, err := captures.GetByID(context.Background(), capture.LocalID); err != nil {
		t.Errorf("Capture lost after failed upload: %v", err)
	}

	progressMu.Lock()
	defer progressMu.Unlock()
	if !failedReported {
		t.Error("Failure was not reported to the progress callback")
	}
}

func TestService_ThumbnailFailureIsSwallowed(t *testing.T) {
	svc, captures, led, gw := setupService(t)
	capture := saveCapture(t, captures, []byte{0xFF, 0xD8, 1, 2})
	gw.setFail("video-thumbnails", true)

	if err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, nil); err != nil {
		t.Fatalf("EnqueueCapture failed: %v", err)
	}

	rec := waitForStatus(t, led, ledgerKey(capture), models.UploadStatusCompleted)
	if rec.ThumbnailURL != "" {
		t.Errorf("Expected no thumbnail URL after thumbnail outage, got %s", rec.ThumbnailURL)
	}
}

func TestService_RetryFailed(t *testing.T) {
	svc, captures, led, gw := setupService(t)
	capture := saveCapture(t, captures, nil)
	gw.setFail("game-videos", true)

	if err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, nil); err != nil {
		t.Fatalf("EnqueueCapture failed: %v", err)
	}
	waitForStatus(t, led, ledgerKey(capture), models.UploadStatusFailed)

	gw.setFail("game-videos", false)
	retried, err := svc.RetryFailed(context.Background(), "G1")
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("Expected 1 retried upload, got %d", retried)
	}

	rec := waitForStatus(t, led, ledgerKey(capture), models.UploadStatusCompleted)
	if rec.VideoURL == "" {
		t.Errorf("Retry did not record a video URL: %+v", rec)
	}
}

func TestService_RetryFailedNoFailures(t *testing.T) {
	svc, _, _, _ := setupService(t)

	retried, err := svc.RetryFailed(context.Background(), "G1")
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if retried != 0 {
		t.Errorf("Expected nothing to retry, got %d", retried)
	}
}

func TestService_EnqueueRequiresStoredCapture(t *testing.T) {
	svc, _, _, _ := setupService(t)

	capture := models.NewMediaCapture("G1", "p", "Alice", "c", "sit", "", "video/webm", []byte{1}, true, 0)
	if err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, nil); err == nil {
		t.Error("Expected enqueue of unsaved capture to fail")
	}
}

func TestService_RejectedEnqueueRecordsFailure(t *testing.T) {
	// A zero-capacity queue rejects every enqueue, standing in for a full
	// outbox.
	queue := NewQueue(0, time.Millisecond, zerolog.Nop(), nil)
	t.Cleanup(queue.Close)
	svc, captures, led, _ := setupServiceQueue(t, queue)
	capture := saveCapture(t, captures, nil)

	err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, nil)
	if err == nil {
		t.Fatal("Expected enqueue to fail on a full queue")
	}

	// The row must not be stranded at pending: the explicit retry query
	// only discovers failed rows.
	rec, getErr := led.Get(context.Background(), ledgerKey(capture))
	if getErr != nil {
		t.Fatalf("Ledger record missing: %v", getErr)
	}
	if rec.UploadStatus != models.UploadStatusFailed {
		t.Fatalf("Expected failed after rejected enqueue, got %s", rec.UploadStatus)
	}

	failed, err := led.ListFailed(context.Background(), "G1")
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected the rejected upload to be discoverable, got %d rows", len(failed))
	}
}

func TestService_CloseDroppedTaskRecordsFailure(t *testing.T) {
	queue := NewQueue(16, time.Millisecond, zerolog.Nop(), nil)
	svc, captures, led, _ := setupServiceQueue(t, queue)
	capture := saveCapture(t, captures, nil)

	// Park the worker on a gate task so the capture's upload stays queued.
	gate := make(chan struct{})
	if err := queue.Enqueue(&Task{
		Name: "gate",
		Run:  func(context.Context) error { <-gate; return nil },
	}, PriorityNormal); err != nil {
		t.Fatalf("Failed to enqueue gate task: %v", err)
	}

	if err := svc.EnqueueCapture(context.Background(), capture, PriorityNormal, nil); err != nil {
		t.Fatalf("EnqueueCapture failed: %v", err)
	}

	// Close snapshots and clears the queued tasks before waiting for the
	// in-flight gate task, so the capture's upload can never start once the
	// queue reports empty.
	closed := make(chan struct{})
	go func() {
		queue.Close()
		close(closed)
	}()
	waitFor(t, 2*time.Second, func() bool { return queue.Len() == 0 }, "queue never emptied on close")
	close(gate)
	<-closed

	rec := waitForStatus(t, led, ledgerKey(capture), models.UploadStatusFailed)
	if !strings.Contains(rec.UploadError, "closed") {
		t.Errorf("Expected close message on dropped upload, got %q", rec.UploadError)
	}

	failed, err := led.ListFailed(context.Background(), "G1")
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected the dropped upload to be discoverable, got %d rows", len(failed))
	}
}
