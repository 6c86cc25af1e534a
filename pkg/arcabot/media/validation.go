package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMimeType is used for extensions outside the table.
const DefaultMimeType = "application/octet-stream"

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// MimeType returns the MIME type for name based on its extension.
func MimeType(name string) string {
	if m, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return DefaultMimeType
}

// IsAllowedExtension reports whether uploads with ext are accepted. The
// leading dot is optional.
func IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	_, ok := mimeTypes[ext]
	return ok
}

// Validate checks that an upload named filename with size bytes may be
// stored.
func (c Config) Validate(filename string, size int64) error {
	ext := filepath.Ext(filename)
	if !IsAllowedExtension(ext) {
		return fmt.Errorf("%w: extension %q", ErrNotAllowed, ext)
	}
	if c.MaxSize > 0 && size > c.MaxSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, c.MaxSize)
	}
	return nil
}

// sanitizeFilename keeps the base name without control characters,
// capped at 255 bytes.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > 255 {
		ext := filepath.Ext(out)
		out = out[:255-len(ext)] + ext
	}
	return out
}
