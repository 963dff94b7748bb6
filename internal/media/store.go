package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Domain errors for the media package.
var (
	// ErrUnsupportedType is returned when an upload's extension is not on
	// the allow-list.
	ErrUnsupportedType = errors.New("media: unsupported file type")

	// ErrTooLarge is returned when an upload exceeds the configured ceiling.
	ErrTooLarge = errors.New("media: file too large")

	// ErrNotFound is returned when a stored file no longer exists.
	ErrNotFound = errors.New("media: file not found")
)

// allowedExtensions is the upload allow-list. Keys are lowercase extensions
// including the dot.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".txt":  true,
	".csv":  true,
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
	".mp4":  true,
	".3gp":  true,
}

// Logger defines the logging interface used by the media store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store stages uploaded attachments on local disk, one directory per
// tenant, until the sidecar has read them and the retention sweeper
// reclaims them. Stored names are generated, never caller-supplied.
type Store struct {
	dir      string
	maxBytes int64
	logger   Logger
}

// NewStore creates a media store rooted at dir. maxBytes caps individual
// uploads; zero or negative disables the ceiling.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("media: directory not configured")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Save writes an upload to the tenant's staging directory and returns the
// absolute path of the stored file. The original filename contributes only
// its extension; the stored name is a generated identifier.
func (s *Store) Save(tenantID, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	tenantDir := filepath.Join(s.dir, tenantID)
	if err := os.MkdirAll(tenantDir, 0o700); err != nil {
		return "", fmt.Errorf("creating tenant media dir: %w", err)
	}

	path := filepath.Join(tenantDir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating media file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		// Read one byte past the ceiling so overflow is detectable.
		src = io.LimitReader(r, s.maxBytes+1)
	}

	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing media file: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		os.Remove(path)
		return "", fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxBytes)
	}

	s.logger.Debug("media stored",
		"tenant", tenantID,
		"path", path,
		"bytes", written,
	)
	return path, nil
}

// Remove deletes a single stored file. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing media file: %w", err)
	}
	return nil
}

// PurgeTenant erases a tenant's entire staging directory.
func (s *Store) PurgeTenant(tenantID string) error {
	dir := filepath.Join(s.dir, tenantID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("purging tenant media: %w", err)
	}
	return nil
}

// Allowed reports whether a filename's extension is on the allow-list.
func Allowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}
