package media

import (
	"strings"
	"testing"
)

// Minimal valid WebM/Matroska header so mimetype sniffing sees media bytes.
var webmHeader = []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81, 0x01}

func fakeWebmBlob(size int) []byte {
	blob := make([]byte, size)
	copy(blob, webmHeader)
	return blob
}

func TestValidator_ValidBlob(t *testing.T) {
	v := NewValidator(0)

	res := v.ValidateBlob(fakeWebmBlob(2048), "video/webm")
	if !res.Valid {
		t.Fatalf("Expected valid, got reason: %s", res.Reason)
	}
	if res.Warning != "" {
		t.Errorf("Expected no warning, got: %s", res.Warning)
	}
}

func TestValidator_NilBlob(t *testing.T) {
	v := NewValidator(0)

	res := v.ValidateBlob(nil, "video/webm")
	if res.Valid {
		t.Fatal("Expected nil blob to be rejected")
	}
}

func TestValidator_EmptyBlob(t *testing.T) {
	v := NewValidator(0)

	res := v.ValidateBlob([]byte{}, "video/webm")
	if res.Valid {
		t.Fatal("Expected empty blob to be rejected")
	}
	if !strings.Contains(res.Reason, "empty") {
		t.Errorf("Expected empty file reason, got: %s", res.Reason)
	}
}

func TestValidator_Oversized(t *testing.T) {
	v := NewValidator(1024)

	res := v.ValidateBlob(fakeWebmBlob(2048), "video/webm")
	if res.Valid {
		t.Fatal("Expected oversized blob to be rejected")
	}
	if !strings.Contains(res.Reason, "too large") {
		t.Errorf("Expected too-large reason, got: %s", res.Reason)
	}
}

func TestValidator_MissingDeclaredType(t *testing.T) {
	v := NewValidator(0)

	res := v.ValidateBlob(fakeWebmBlob(2048), "")
	if !res.Valid {
		t.Fatalf("Missing declared type must warn, not fail: %s", res.Reason)
	}
	if res.Warning == "" {
		t.Error("Expected a warning for missing declared type")
	}
	if res.DetectedType == "" {
		t.Error("Expected a sniffed type")
	}
}

func TestValidator_UnrecognizedDeclaredType(t *testing.T) {
	v := NewValidator(0)

	res := v.ValidateBlob(fakeWebmBlob(2048), "application/octet-stream")
	if !res.Valid {
		t.Fatalf("Unrecognized declared type must warn, not fail: %s", res.Reason)
	}
	if res.Warning == "" {
		t.Error("Expected a warning for unrecognized declared type")
	}
}

func TestValidator_VideoFamilies(t *testing.T) {
	v := NewValidator(0)

	for _, mimeType := range []string{"video/webm", "video/mp4", "video/ogg", "video/quicktime", "video/webm;codecs=vp9"} {
		res := v.ValidateBlob(fakeWebmBlob(512), mimeType)
		if !res.Valid || res.Warning != "" {
			t.Errorf("Expected %s to validate cleanly, got valid=%v warning=%q", mimeType, res.Valid, res.Warning)
		}
	}
}
