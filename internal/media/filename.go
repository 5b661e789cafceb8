package media

import (
	"fmt"
	"strings"
	"time"
)

// SanitizeToken replaces everything outside [a-zA-Z0-9] with underscores so
// player names and card labels are safe inside storage paths.
func SanitizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ExtensionForMIME maps a media type to the container extension used in
// storage paths and download filenames.
func ExtensionForMIME(mimeType string) string {
	if strings.Contains(mimeType, "mp4") {
		return "mp4"
	}
	return "webm"
}

// StoragePath builds the object path for a capture's primary media:
// {gameID}/{player}_{cardLabel}_{timestampMillis}.{ext}.
func StoragePath(gameID, playerName, cardLabel string, timestampMillis int64, mimeType string) string {
	return fmt.Sprintf("%s/%s_%s_%d.%s",
		gameID,
		SanitizeToken(playerName),
		SanitizeToken(cardLabel),
		timestampMillis,
		ExtensionForMIME(mimeType))
}

// ThumbnailPath derives the thumbnail object path from a video path by
// replacing the media extension with the thumbnail suffix.
func ThumbnailPath(videoPath string) string {
	if i := strings.LastIndex(videoPath, "."); i > strings.LastIndex(videoPath, "/") {
		return videoPath[:i] + "_thumb.jpg"
	}
	return videoPath + "_thumb.jpg"
}

// DownloadFilename builds the user-facing export filename:
// {player}_{cardLabel}_{Success|Failed}_{date}_{time}.{ext}.
func DownloadFilename(playerName, cardLabel string, success bool, timestampMillis int64, mimeType string) string {
	ts := time.UnixMilli(timestampMillis).UTC()
	status := "Failed"
	if success {
		status = "Success"
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s",
		SanitizeToken(playerName),
		SanitizeToken(cardLabel),
		status,
		ts.Format("2006-01-02"),
		ts.Format("15-04-05"),
		ExtensionForMIME(mimeType))
}

// FormatBytes renders a byte count for logs and storage stat responses.
func FormatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
