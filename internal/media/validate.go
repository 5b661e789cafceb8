package media

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBlobSize is the ceiling for a single captured clip.
const DefaultMaxBlobSize = 500 * 1024 * 1024

var videoFamilies = []string{"webm", "mp4", "ogg", "quicktime"}

// Result of validating a captured media blob. Warning carries non-fatal
// findings (missing or odd declared type); policy is trust size over type,
// final acceptance is deferred to playback probing.
type Result struct {
	Valid        bool
	Reason       string
	Warning      string
	DetectedType string
}

type Validator struct {
	maxSize int64
}

func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxBlobSize
	}
	return &Validator{maxSize: maxSize}
}

// ValidateBlob checks a captured media blob before it enters the pipeline.
// The declared type comes from the recorder and may be empty or altered by
// storage round-trips on some platforms; an unknown declared type is a
// warning, not a failure, as long as the bytes sniff as media.
func (v *Validator) ValidateBlob(blob []byte, declaredType string) Result {
	if blob == nil {
		return Result{Valid: false, Reason: "missing video blob"}
	}
	if len(blob) == 0 {
		return Result{Valid: false, Reason: "empty video file"}
	}
	if int64(len(blob)) > v.maxSize {
		return Result{Valid: false, Reason: fmt.Sprintf("video file too large (%d > %d bytes)", len(blob), v.maxSize)}
	}

	detected := mimetype.Detect(blob).String()

	if declaredType == "" {
		return Result{
			Valid:        true,
			Warning:      fmt.Sprintf("no declared media type, sniffed %s", detected),
			DetectedType: detected,
		}
	}

	if !isVideoFamily(declaredType) {
		return Result{
			Valid:        true,
			Warning:      fmt.Sprintf("unrecognized media type %q, sniffed %s", declaredType, detected),
			DetectedType: detected,
		}
	}

	return Result{Valid: true, DetectedType: detected}
}

func isVideoFamily(mimeType string) bool {
	for _, family := range videoFamilies {
		if strings.Contains(mimeType, family) {
			return true
		}
	}
	return false
}
