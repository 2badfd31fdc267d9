package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radif/media/internal/metrics"
)

// ObjectStore is the part of storage.Storage the media paths need.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}

// RecordStore persists media records.
type RecordStore interface {
	Create(ctx context.Context, url string, t Type) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	Attach(ctx context.Context, postID string, ids []string) error
	Delete(ctx context.Context, id string) error
}

// UploadResult describes one stored attachment.
type UploadResult struct {
	Name    string `json:"name"`
	MediaID string `json:"mediaId"`
	URL     string `json:"url"`
}

// Service is the upload gateway for post attachments and the association surface used by
// the post service.
type Service struct {
	records RecordStore
	store   ObjectStore
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewService creates a new media Service.
func NewService(records RecordStore, store ObjectStore, m *metrics.Metrics, log *zap.SugaredLogger) *Service {
	return &Service{
		records: records,
		store:   store,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Upload validates the whole batch, then stores every file and creates an unattached record
// for it. Files are written concurrently and the outcome is decided once all of them finish.
// Objects and records committed before a sibling failed are not rolled back; the reaper
// reclaims them because they never get a post.
func (s *Service) Upload(ctx context.Context, callerID string, files []File) ([]UploadResult, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	if err := ValidateBatch(files); err != nil {
		s.metrics.UploadFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	results := make([]UploadResult, len(files))
	var g errgroup.Group
	for i, f := range files {
		g.Go(func() error {
			res, err := s.uploadOne(ctx, f)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.UploadFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	return results, nil
}

func (s *Service) uploadOne(ctx context.Context, f File) (UploadResult, error) {
	t, _ := TypeOf(f.ContentType)
	key := fmt.Sprintf("attachments/%d_%s.%s", s.now().UnixMilli(), uuid.NewString(), Extension(f.Name, f.ContentType))

	if err := s.store.Upload(ctx, key, f.Body, f.Size, f.ContentType); err != nil {
		return UploadResult{}, fmt.Errorf("%w: file %q: %w", ErrStorageWriteFailed, f.Name, err)
	}

	url := s.store.PublicURL(key)
	rec, err := s.records.Create(ctx, url, t)
	if err != nil {
		// Without a record the reaper can never find this object, so drop it now.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Warnw("failed to remove object after metadata error", "key", key, "error", delErr)
		}
		return UploadResult{}, fmt.Errorf("%w: file %q: %w", ErrMetadataWriteFailed, f.Name, err)
	}

	s.metrics.UploadedFiles.WithLabelValues(string(t)).Inc()
	s.metrics.UploadBytes.WithLabelValues(string(t)).Observe(float64(f.Size))
	return UploadResult{Name: f.Name, MediaID: rec.ID, URL: url}, nil
}

// Attach links staged media to a post. It is the only writer of PostID.
func (s *Service) Attach(ctx context.Context, postID string, mediaIDs []string) error {
	if _, err := uuid.Parse(postID); err != nil {
		return fmt.Errorf("%w: invalid post id %q", ErrValidationFailed, postID)
	}
	if len(mediaIDs) == 0 {
		return fmt.Errorf("%w: no media ids", ErrValidationFailed)
	}
	if len(mediaIDs) > MaxFilesPerUpload {
		return fmt.Errorf("%w: %d media, maximum %d per post", ErrTooManyFiles, len(mediaIDs), MaxFilesPerUpload)
	}

	seen := make(map[string]struct{}, len(mediaIDs))
	ids := make([]string, 0, len(mediaIDs))
	for _, id := range mediaIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: invalid media id %q", ErrValidationFailed, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if err := s.records.Attach(ctx, postID, ids); err != nil {
		if errors.Is(err, ErrAlreadyAttached) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrMetadataWriteFailed, err)
	}
	return nil
}

// Delete removes one attachment: the object first, then its record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if key, ok := s.store.KeyFromURL(rec.URL); ok {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageDeleteFailed, err)
		}
	}

	if err := s.records.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrMetadataWriteFailed, err)
	}
	return nil
}
