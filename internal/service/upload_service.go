package service

import (
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

type fileStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Delete(name string) error
	Cleanup(maxAge time.Duration, now time.Time) (int, error)
}

// UploadedFile describes a stored attachment. Filename is the reference
// later passed in a bulk request.
type UploadedFile struct {
	OriginalName string `json:"original_name"`
	Filename     string `json:"filename"`
}

type UploadFailure struct {
	OriginalName string `json:"original_name"`
	Error        string `json:"error"`
}

type UploadSource struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// UploadService stores attachments and expires them after the retention
// window.
type UploadService struct {
	store     fileStore
	retention time.Duration
	now       func() time.Time
}

func NewUploadService(store fileStore, retentionDays int) *UploadService {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &UploadService{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Upload stores every source independently; one rejected file does not
// stop the others.
func (s *UploadService) Upload(sources []UploadSource) ([]UploadedFile, []UploadFailure) {
	saved := make([]UploadedFile, 0, len(sources))
	var failed []UploadFailure

	for _, src := range sources {
		name, err := s.save(src)
		if err != nil {
			logger.Warnf("Upload of %s rejected: %v", src.Name, err)
			failed = append(failed, UploadFailure{OriginalName: src.Name, Error: err.Error()})
			continue
		}
		saved = append(saved, UploadedFile{OriginalName: src.Name, Filename: name})
	}

	return saved, failed
}

func (s *UploadService) save(src UploadSource) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	return s.store.Save(src.Name, rc)
}

func (s *UploadService) Delete(name string) error {
	return s.store.Delete(name)
}

// CleanupExpired removes files older than the retention window.
func (s *UploadService) CleanupExpired() (int, error) {
	removed, err := s.store.Cleanup(s.retention, s.now())
	if err != nil {
		return removed, err
	}
	logger.Infof("Upload cleanup removed %d files older than %s", removed, s.retention)
	return removed, nil
}

// ScheduleCleanup registers CleanupExpired on a standard five-field cron
// expression and starts the cron. The caller stops it on shutdown.
func (s *UploadService) ScheduleCleanup(schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(schedule, func() {
		if _, err := s.CleanupExpired(); err != nil {
			logger.Errorf("Upload cleanup failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.Infof("Upload cleanup scheduled (%s, retention %s)", schedule, s.retention)
	return c, nil
}
