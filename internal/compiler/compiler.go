// Package compiler concatenates stored captures into one highlight video.
// Each clip is preceded by a title card, decoded onto a shared canvas, and
// re-encoded through a single continuous encoder session.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/humberto2626/Ready-Sit-Play-V2/internal/models"
)

const (
	DefaultWidth             = 1280
	DefaultHeight            = 720
	DefaultFPS               = 30
	DefaultTransitionSeconds = 0.5
	DefaultClipTimeout       = 15 * time.Second
	DefaultJobTimeout        = 5 * time.Minute

	outputBitrate = "2500k"
)

type Options struct {
	Width             int
	Height            int
	FPS               int
	TransitionSeconds float64
	ClipTimeout       time.Duration
	JobTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.TransitionSeconds <= 0 {
		o.TransitionSeconds = DefaultTransitionSeconds
	}
	if o.ClipTimeout <= 0 {
		o.ClipTimeout = DefaultClipTimeout
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	return o
}

// Result is the compiled output blob tagged with its negotiated media type.
type Result struct {
	Data     []byte
	MIMEType string
}

type Compiler struct {
	ffmpegPath  string
	ffprobePath string
	prober      EncoderProber
	tempDir     string
	logger      zerolog.Logger
}

func New(logger zerolog.Logger) (*Compiler, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "rsp-compiler")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Compiler{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		prober:      &ffmpegProber{ffmpegPath: ffmpegPath},
		tempDir:     tempDir,
		logger:      logger.With().Str("component", "compiler").Logger(),
	}, nil
}

// Compile renders the ordered clips into one output video. The whole job is
// bounded by opts.JobTimeout; a clip that cannot be decoded fails the job
// and partial output is discarded.
func (c *Compiler) Compile(ctx context.Context, clips []models.CompilationClip, opts Options) (*Result, error) {
	if len(clips) == 0 {
		return nil, &models.CompilationError{Reason: "no clips to compile"}
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.JobTimeout)
	defer cancel()

	format, err := negotiateFormat(ctx, c.prober)
	if err != nil {
		return nil, &models.CompilationError{Reason: "encoder negotiation failed", Err: err}
	}
	c.logger.Info().Str("encoder", format.Encoder).Str("mime", format.MIMEType).
		Int("clips", len(clips)).Msg("starting compilation")

	jobDir, err := os.MkdirTemp(c.tempDir, "job_")
	if err != nil {
		return nil, &models.CompilationError{Reason: "failed to create job directory", Err: err}
	}
	defer os.RemoveAll(jobDir)

	outPath := filepath.Join(jobDir, "output."+format.Container)
	session, err := c.openEncoder(ctx, opts, format, outPath)
	if err != nil {
		return nil, &models.CompilationError{Reason: "failed to open encoder", Err: err}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	for i, clip := range clips {
		if err := c.renderClip(ctx, session, canvas, clip, opts, jobDir, i); err != nil {
			session.abort()
			return nil, &models.CompilationError{
				Reason: fmt.Sprintf("clip %d (%s / %s)", i, clip.PlayerName, clip.CardLabel),
				Err:    err,
			}
		}
	}

	if err := session.finish(); err != nil {
		return nil, &models.CompilationError{Reason: "encoder session failed", Err: err}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &models.CompilationError{Reason: "failed to read output", Err: err}
	}
	if len(data) == 0 {
		return nil, &models.CompilationError{Reason: "encoder produced empty output"}
	}

	c.logger.Info().Int("bytes", len(data)).Msg("compilation complete")
	return &Result{Data: data, MIMEType: format.MIMEType}, nil
}

// encoderSession is one continuous ffmpeg encode reading raw RGBA frames on
// stdin. It stays open across all clips and is closed exactly once.
type encoderSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

func (c *Compiler) openEncoder(ctx context.Context, opts Options, format *OutputFormat, outPath string) (*encoderSession, error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.Itoa(opts.FPS),
		"-i", "-",
		"-c:v", format.Encoder,
		"-b:v", outputBitrate,
		"-pix_fmt", "yuv420p",
		"-y", outPath)

	session := &encoderSession{cmd: cmd}
	cmd.Stderr = &session.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdin: %w", err)
	}
	session.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return session, nil
}

func (s *encoderSession) writeFrame(pix []byte) error {
	if _, err := s.stdin.Write(pix); err != nil {
		return fmt.Errorf("failed to write frame to encoder: %w", err)
	}
	return nil
}

func (s *encoderSession) finish() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited with error: %w (%s)", err, s.stderr.String())
	}
	return nil
}

func (s *encoderSession) abort() {
	s.stdin.Close()
	s.cmd.Wait()
}

// renderClip feeds one clip into the session: a title card held for the
// transition interval, then the clip's decoded frames. Per-clip temp files
// and the decoder process are released before returning.
func (c *Compiler) renderClip(ctx context.Context, session *encoderSession, canvas *image.RGBA, clip models.CompilationClip, opts Options, jobDir string, index int) error {
	clipPath := filepath.Join(jobDir, fmt.Sprintf("clip_%d", index))
	if err := os.WriteFile(clipPath, clip.VideoBlob, 0600); err != nil {
		return fmt.Errorf("failed to stage clip: %w", err)
	}
	defer os.Remove(clipPath)

	probeCtx, probeCancel := context.WithTimeout(ctx, opts.ClipTimeout)
	duration, err := c.probeDuration(probeCtx, clipPath)
	probeCancel()
	if err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("clip has zero duration")
	}

	renderTitleCard(canvas, clip.PlayerName, clip.CardLabel)
	titleFrames := int(opts.TransitionSeconds * float64(opts.FPS))
	for i := 0; i < titleFrames; i++ {
		if err := session.writeFrame(canvas.Pix); err != nil {
			return err
		}
	}

	// A stalled decode is bounded by wall clock, not trusted to terminate.
	decodeCtx, decodeCancel := context.WithTimeout(ctx, clipWatchdog(duration))
	defer decodeCancel()

	return c.decodeClip(decodeCtx, session, canvas, clipPath, opts)
}

// clipWatchdog bounds one clip's decode at its duration plus one second of
// wall clock.
func clipWatchdog(duration float64) time.Duration {
	return time.Duration((duration + 1) * float64(time.Second))
}

func (c *Compiler) probeDuration(ctx context.Context, clipPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		clipPath)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("clip could not be decoded: %w", err)
	}

	duration, err := strconv.ParseFloat(string(bytes.TrimSpace(stdout.Bytes())), 64)
	if err != nil {
		return 0, fmt.Errorf("clip has unknown duration: %w", err)
	}
	return duration, nil
}

// decodeClip streams raw RGBA frames from ffmpeg, scaled and padded onto
// the canvas size, and copies each onto the shared canvas and into the
// encoder.
func (c *Compiler) decodeClip(ctx context.Context, session *encoderSession, canvas *image.RGBA, clipPath string, opts Options) error {
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
		opts.Width, opts.Height, opts.Width, opts.Height)

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-i", clipPath,
		"-vf", filter,
		"-r", strconv.Itoa(opts.FPS),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open decoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start decoder: %w", err)
	}

	frameSize := opts.Width * opts.Height * 4
	frame := make([]byte, frameSize)
	for {
		_, err := io.ReadFull(stdout, frame)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return fmt.Errorf("failed to read decoded frame: %w (%s)", err, stderr.String())
		}

		copy(canvas.Pix, frame)
		if err := session.writeFrame(canvas.Pix); err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return err
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("clip decode timed out: %w", ctx.Err())
		}
		return fmt.Errorf("decoder exited with error: %w (%s)", err, stderr.String())
	}
	return nil
}

func (c *Compiler) Cleanup() error {
	return os.RemoveAll(c.tempDir)
}
