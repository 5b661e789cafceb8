// Package thumbnail derives still-image previews from captured clips. A
// missing thumbnail is a tolerated degraded result: Generate returns nil for
// every expected failure mode (corrupt blob, zero duration, timeout) and the
// capture pipeline carries on without one.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxDimension = 640
	DefaultJPEGQuality  = 70
)

type Generator struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	timeout     time.Duration
	maxDim      int
	quality     int
	logger      zerolog.Logger
}

func NewGenerator(timeout time.Duration, maxDim, quality int, logger zerolog.Logger) (*Generator, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "rsp-thumbnails")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	return &Generator{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
		timeout:     timeout,
		maxDim:      maxDim,
		quality:     quality,
		logger:      logger.With().Str("component", "thumbnail").Logger(),
	}, nil
}

// Generate extracts a preview frame from a video blob. The whole operation
// is bounded by the configured timeout; temp files and the decoder process
// are released on every exit path.
func (g *Generator) Generate(ctx context.Context, blob []byte) []byte {
	if len(blob) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	videoPath := filepath.Join(g.tempDir, fmt.Sprintf("src_%d", time.Now().UnixNano()))
	if err := os.WriteFile(videoPath, blob, 0600); err != nil {
		g.logger.Warn().Err(err).Msg("failed to stage video for thumbnail")
		return nil
	}
	defer os.Remove(videoPath)

	info, err := g.probe(ctx, videoPath)
	if err != nil {
		g.logger.Debug().Err(err).Msg("thumbnail probe failed")
		return nil
	}
	if info.Duration <= 0 || info.Width <= 0 || info.Height <= 0 {
		g.logger.Debug().Float64("duration", info.Duration).Int("width", info.Width).Int("height", info.Height).
			Msg("clip not thumbnailable")
		return nil
	}

	frame, err := g.extractFrame(ctx, videoPath, SeekPoint(info.Duration))
	if err != nil {
		g.logger.Debug().Err(err).Msg("thumbnail frame extraction failed")
		return nil
	}

	thumb, err := g.encode(frame)
	if err != nil {
		g.logger.Debug().Err(err).Msg("thumbnail encode failed")
		return nil
	}
	return thumb
}

// SeekPoint picks the capture timestamp: one second in, or the midpoint for
// clips shorter than two seconds, avoiding black leading frames.
func SeekPoint(duration float64) float64 {
	return math.Min(1, duration/2)
}

type mediaInfo struct {
	Duration float64
	Width    int
	Height   int
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (g *Generator) probe(ctx context.Context, videoPath string) (*mediaInfo, error) {
	cmd := exec.CommandContext(ctx, g.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		videoPath)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("no video stream found")
	}

	duration, _ := strconv.ParseFloat(out.Format.Duration, 64)
	return &mediaInfo{
		Duration: duration,
		Width:    out.Streams[0].Width,
		Height:   out.Streams[0].Height,
	}, nil
}

func (g *Generator) extractFrame(ctx context.Context, videoPath string, timestamp float64) (image.Image, error) {
	framePath := filepath.Join(g.tempDir, fmt.Sprintf("frame_%d.jpg", time.Now().UnixNano()))
	defer os.Remove(framePath)

	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-f", "mjpeg",
		"-y", framePath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to extract frame at %.2f: %w (%s)", timestamp, err, stderr.String())
	}

	file, err := os.Open(framePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open extracted frame: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// encode downscales the frame to the dimension cap, preserving aspect
// ratio, and re-encodes it as JPEG.
func (g *Generator) encode(frame image.Image) ([]byte, error) {
	bounds := frame.Bounds()
	if bounds.Dx() > g.maxDim || bounds.Dy() > g.maxDim {
		frame = imaging.Fit(frame, g.maxDim, g.maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: g.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) Cleanup() error {
	return os.RemoveAll(g.tempDir)
}
