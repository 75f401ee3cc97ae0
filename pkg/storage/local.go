package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

var (
	ErrNotFound          = errors.New("file not found")
	ErrInvalidName       = errors.New("invalid file name")
	ErrExtensionRejected = errors.New("file type not allowed")
	ErrTooLarge          = errors.New("file exceeds maximum size")
)

var allowedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".txt": true, ".csv": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".mp4": true,
	".zip": true, ".rar": true,
}

// LocalStore keeps uploaded attachments on the local filesystem.
type LocalStore struct {
	dir     string
	maxSize int64
}

func NewLocalStore(cfg environments.UploadConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	return &LocalStore{
		dir:     cfg.Dir,
		maxSize: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save stores the content under a unique name derived from the original
// filename and returns the stored name.
func (s *LocalStore) Save(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %s", ErrExtensionRejected, ext)
	}

	stored := uniqueName(originalName, ext)
	path := filepath.Join(s.dir, stored)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if written > s.maxSize {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w of %d MB", ErrTooLarge, s.maxSize/(1024*1024))
	}

	return stored, nil
}

// Load returns the content of a stored file reference.
func (s *LocalStore) Load(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", name, err)
	}

	return data, nil
}

func (s *LocalStore) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}

	return nil
}

// Cleanup removes regular files last modified before now-maxAge.
func (s *LocalStore) Cleanup(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list upload dir: %w", err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				logger.Warnf("Failed to remove expired upload %s: %v", entry.Name(), err)
				continue
			}
			removed++
		}
	}

	return removed, nil
}

func (s *LocalStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// uniqueName keeps up to 7 safe characters of the original base name.
func uniqueName(originalName, ext string) string {
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	base = strings.ReplaceAll(base, " ", "_")

	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}

	clean := []rune(b.String())
	if len(clean) > 7 {
		clean = clean[:7]
	}
	if len(clean) == 0 {
		clean = []rune("file")
	}

	return fmt.Sprintf("%s_%s%s", string(clean), uuid.NewString()[:8], ext)
}
