// Package media stores attachments for scheduled messages under the
// uploads directory and loads them back for sending.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an attachment reference does not
	// resolve to a readable file.
	ErrNotFound = errors.New("media: attachment not found")

	ErrNotAllowed = errors.New("media: file type not allowed")
	ErrTooLarge   = errors.New("media: file too large")
)

// RefPrefix is the prefix of attachment references returned by Save.
const RefPrefix = "/uploads/"

// Config controls the uploads directory.
type Config struct {
	// Dir is where attachments live. Relative paths are resolved against
	// the config file directory.
	Dir string `yaml:"uploads_dir"`

	// MaxSize is the largest accepted upload in bytes.
	MaxSize int64 `yaml:"max_upload_size"`
}

// DefaultConfig stores up to 10MB files in ./uploads.
func DefaultConfig() Config {
	return Config{Dir: "uploads", MaxSize: 10 * 1024 * 1024}
}

// Attachment is a loaded file ready to be sent as a document.
type Attachment struct {
	Data     []byte
	MimeType string
	FileName string
}

// Store keeps attachments on the local filesystem.
type Store struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store rooted at cfg.Dir.
func NewStore(cfg Config, logger *slog.Logger) *Store {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, logger: logger.With("component", "media"), now: time.Now}
}

// Dir returns the uploads directory.
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// EnsureDir creates the uploads directory.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	return nil
}

// Save validates and writes data under a unique name keeping the
// extension of filename. It returns the reference to store on the
// scheduled message.
func (s *Store) Save(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	filename = sanitizeFilename(filename)
	if err := s.cfg.Validate(filename, int64(len(data))); err != nil {
		return "", err
	}
	if err := s.EnsureDir(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString()[:8], ext)
	if err := os.WriteFile(filepath.Join(s.cfg.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}

	s.logger.Debug("media: saved attachment", "name", name, "original", filename, "size", len(data))
	return RefPrefix + name, nil
}

// SaveFile copies a local file into the uploads directory.
func (s *Store) SaveFile(ctx context.Context, src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if err := s.cfg.Validate(src, info.Size()); err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	return s.Save(ctx, filepath.Base(src), data)
}

// Path resolves ref to a file inside the uploads directory. References
// may carry the RefPrefix or be bare file names; they never escape the
// directory.
func (s *Store) Path(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNotFound
	}
	clean := path.Clean("/" + filepath.ToSlash(ref))
	clean = strings.TrimPrefix(clean, RefPrefix)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", ErrNotFound
	}
	return filepath.Join(s.cfg.Dir, filepath.FromSlash(clean)), nil
}

// Open loads the attachment referenced by ref.
func (s *Store) Open(ctx context.Context, ref string) (*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", ref, err)
	}
	return &Attachment{Data: data, MimeType: MimeType(p), FileName: filepath.Base(p)}, nil
}

// Delete removes the attachment. Missing files are not an error.
func (s *Store) Delete(ref string) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}
