package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}
}

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	gen, err := NewGenerator(10*time.Second, 640, 70, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	return gen
}

// synthesizeClip renders a short test pattern so the suite does not need
// video fixtures checked in.
func synthesizeClip(t *testing.T, duration string, size string) []byte {
	t.Helper()
	out := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi",
		"-i", "testsrc=duration="+duration+":size="+size+":rate=10",
		"-pix_fmt", "yuv420p",
		"-y", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to synthesize clip: %v (%s)", err, output)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read clip: %v", err)
	}
	return data
}

func TestSeekPoint(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		want     float64
	}{
		{"long clip seeks one second", 10, 1},
		{"short clip seeks midpoint", 1, 0.5},
		{"very short clip", 0.4, 0.2},
		{"two second boundary", 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeekPoint(tt.duration); got != tt.want {
				t.Errorf("SeekPoint(%v) = %v, want %v", tt.duration, got, tt.want)
			}
		})
	}
}

func TestEncodeDownscales(t *testing.T) {
	requireFFmpeg(t)
	gen := testGenerator(t)

	large := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	for y := 0; y < 720; y++ {
		for x := 0; x < 1280; x++ {
			large.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	data, err := gen.encode(large)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() > 640 || img.Bounds().Dy() > 640 {
		t.Errorf("thumbnail not downscaled: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
	// Aspect ratio should survive the downscale.
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 360 {
		t.Errorf("expected 640x360, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestEncodeKeepsSmallFrames(t *testing.T) {
	requireFFmpeg(t)
	gen := testGenerator(t)

	small := image.NewRGBA(image.Rect(0, 0, 320, 240))
	data, err := gen.encode(small)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Errorf("small frame should not be resized, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestGenerateFromClip(t *testing.T) {
	requireFFmpeg(t)
	gen := testGenerator(t)
	defer gen.Cleanup()

	blob := synthesizeClip(t, "3", "320x240")
	thumb := gen.Generate(context.Background(), blob)
	if thumb == nil {
		t.Fatal("expected thumbnail, got nil")
	}

	img, err := jpeg.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("thumbnail is not valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Errorf("unexpected thumbnail size %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestGenerateCorruptBlobReturnsNil(t *testing.T) {
	requireFFmpeg(t)
	gen := testGenerator(t)
	defer gen.Cleanup()

	if thumb := gen.Generate(context.Background(), []byte("not a video at all")); thumb != nil {
		t.Error("expected nil thumbnail for corrupt blob")
	}
}

func TestGenerateEmptyBlobReturnsNil(t *testing.T) {
	requireFFmpeg(t)
	gen := testGenerator(t)
	defer gen.Cleanup()

	if thumb := gen.Generate(context.Background(), nil); thumb != nil {
		t.Error("expected nil thumbnail for empty blob")
	}
}

func TestGenerateHonorsContext(t *testing.T) {
	requireFFmpeg(t)
	gen := testGenerator(t)
	defer gen.Cleanup()

	blob := synthesizeClip(t, "3", "320x240")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if thumb := gen.Generate(ctx, blob); thumb != nil {
		t.Error("expected nil thumbnail with cancelled context")
	}
}
