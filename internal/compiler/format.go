package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OutputFormat pairs a container/MIME type with the ffmpeg encoder that
// produces it.
type OutputFormat struct {
	MIMEType  string
	Container string
	Encoder   string
}

// formatPreference is ordered by codec efficiency first, falling back
// toward maximum compatibility.
var formatPreference = []OutputFormat{
	{MIMEType: "video/mp4", Container: "mp4", Encoder: "libx264"},
	{MIMEType: "video/webm", Container: "webm", Encoder: "libvpx-vp9"},
	{MIMEType: "video/webm", Container: "webm", Encoder: "libvpx"},
}

// EncoderProber reports which encoders the local ffmpeg build supports.
// It is an interface so tests can inject restricted encoder sets.
type EncoderProber interface {
	SupportedEncoders(ctx context.Context) (map[string]bool, error)
}

type ffmpegProber struct {
	ffmpegPath string
}

func (p *ffmpegProber) SupportedEncoders(ctx context.Context) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-hide_banner", "-encoders")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to list encoders: %w", err)
	}

	supported := make(map[string]bool)
	for _, line := range strings.Split(stdout.String(), "\n") {
		// Encoder lines look like " V....D libx264 ...".
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			supported[fields[1]] = true
		}
	}
	return supported, nil
}

// negotiateFormat probes encoder support against the preference list and
// returns the first match.
func negotiateFormat(ctx context.Context, prober EncoderProber) (*OutputFormat, error) {
	supported, err := prober.SupportedEncoders(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range formatPreference {
		if supported[f.Encoder] {
			format := f
			return &format, nil
		}
	}
	return nil, fmt.Errorf("no supported output encoder found")
}
