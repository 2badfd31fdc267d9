package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radif/media/internal/metrics"
	"github.com/radif/media/internal/storage/storagetest"
)

// memRecords is an in-memory RecordStore.
type memRecords struct {
	mu         sync.Mutex
	recs       map[string]*Record
	failCreate error
}

func newMemRecords() *memRecords {
	return &memRecords{recs: make(map[string]*Record)}
}

func (m *memRecords) Create(_ context.Context, url string, t Type) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	rec := &Record{ID: uuid.NewString(), URL: url, Type: t, CreatedAt: time.Now()}
	m.recs[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (m *memRecords) GetByID(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) Attach(_ context.Context, postID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		rec, ok := m.recs[id]
		if !ok || rec.PostID != nil {
			return ErrAlreadyAttached
		}
	}
	for _, id := range ids {
		p := postID
		m.recs[id].PostID = &p
	}
	return nil
}

func (m *memRecords) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *memRecords) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func setupService(t *testing.T) (*Service, *memRecords, *storagetest.Memory, *metrics.Metrics) {
	t.Helper()
	records := newMemRecords()
	store := storagetest.NewMemory("http://localhost:9000", "media")
	m := metrics.New(prometheus.NewRegistry())
	return NewService(records, store, m, zap.NewNop().Sugar()), records, store, m
}

func fileOf(name, contentType string, data []byte) File {
	return File{Name: name, ContentType: contentType, Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func TestUploadStoresObjectsAndRecords(t *testing.T) {
	svc, records, store, m := setupService(t)
	ctx := context.Background()

	png := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 64)
	mp4 := bytes.Repeat([]byte("ftypisom"), 128)

	results, err := svc.Upload(ctx, "user-1", []File{
		fileOf("cat.png", "image/png", png),
		fileOf("clip.mp4", "video/mp4", mp4),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "cat.png", results[0].Name)
	assert.Equal(t, "clip.mp4", results[1].Name)

	obj, ok := store.GetURL(results[0].URL)
	require.True(t, ok)
	assert.Equal(t, png, obj.Data)
	assert.Equal(t, "image/png", obj.ContentType)

	obj, ok = store.GetURL(results[1].URL)
	require.True(t, ok)
	assert.Equal(t, mp4, obj.Data)
	assert.Equal(t, "video/mp4", obj.ContentType)

	rec, err := records.GetByID(ctx, results[1].MediaID)
	require.NoError(t, err)
	assert.Equal(t, TypeVideo, rec.Type)
	assert.Nil(t, rec.PostID)
	assert.Equal(t, results[1].URL, rec.URL)

	assert.Regexp(t, `^http://localhost:9000/media/attachments/\d+_[0-9a-f-]{36}\.png$`, results[0].URL)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadedFiles.WithLabelValues("IMAGE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadedFiles.WithLabelValues("VIDEO")))
}

func TestUploadThreeMiBImage(t *testing.T) {
	svc, records, _, _ := setupService(t)

	results, err := svc.Upload(context.Background(), "user-1", []File{
		fileOf("big.jpg", "image/jpeg", make([]byte, 3<<20)),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	rec, err := records.GetByID(context.Background(), results[0].MediaID)
	require.NoError(t, err)
	assert.Equal(t, TypeImage, rec.Type)
	assert.Nil(t, rec.PostID)
}

func TestUploadRejectsBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name    string
		files   func() []File
		wantErr error
	}{
		{
			name: "oversized image",
			files: func() []File {
				return []File{fileOf("huge.png", "image/png", make([]byte, 5<<20))}
			},
			wantErr: ErrPayloadTooLarge,
		},
		{
			name: "six files",
			files: func() []File {
				out := make([]File, 6)
				for i := range out {
					out[i] = fileOf(fmt.Sprintf("%d.png", i), "image/png", []byte("x"))
				}
				return out
			},
			wantErr: ErrTooManyFiles,
		},
		{
			name: "valid file with a pdf",
			files: func() []File {
				return []File{
					fileOf("ok.png", "image/png", []byte("x")),
					fileOf("doc.pdf", "application/pdf", []byte("%PDF")),
				}
			},
			wantErr: ErrUnsupportedMediaType,
		},
		{
			name:    "no files",
			files:   func() []File { return nil },
			wantErr: ErrNoFiles,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, records, store, m := setupService(t)

			_, err := svc.Upload(context.Background(), "user-1", tt.files())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Zero(t, store.Uploads())
			assert.Zero(t, records.count())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadFailures.WithLabelValues("validation")))
		})
	}
}

func TestUploadRequiresCaller(t *testing.T) {
	svc, _, store, _ := setupService(t)

	_, err := svc.Upload(context.Background(), "", []File{fileOf("a.png", "image/png", []byte("x"))})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, store.Uploads())
}

func TestUploadStorageFailure(t *testing.T) {
	svc, _, store, _ := setupService(t)
	store.FailUpload = func(string) error { return errors.New("connection reset") }

	_, err := svc.Upload(context.Background(), "user-1", []File{fileOf("a.png", "image/png", []byte("x"))})
	assert.ErrorIs(t, err, ErrStorageWriteFailed)
	assert.Equal(t, 500, StatusCode(err))
}

func TestUploadMetadataFailureRemovesObject(t *testing.T) {
	svc, records, store, _ := setupService(t)
	records.failCreate = errors.New("db down")

	_, err := svc.Upload(context.Background(), "user-1", []File{fileOf("a.png", "image/png", []byte("x"))})
	assert.ErrorIs(t, err, ErrMetadataWriteFailed)
	assert.Equal(t, 1, store.Uploads())
	assert.Empty(t, store.Keys("attachments/"))
}

func TestAttach(t *testing.T) {
	svc, records, _, _ := setupService(t)
	ctx := context.Background()

	results, err := svc.Upload(ctx, "user-1", []File{
		fileOf("a.png", "image/png", []byte("a")),
		fileOf("b.png", "image/png", []byte("b")),
	})
	require.NoError(t, err)

	postID := uuid.NewString()
	ids := []string{results[0].MediaID, results[1].MediaID, results[0].MediaID}
	require.NoError(t, svc.Attach(ctx, postID, ids))

	for _, r := range results {
		rec, err := records.GetByID(ctx, r.MediaID)
		require.NoError(t, err)
		require.NotNil(t, rec.PostID)
		assert.Equal(t, postID, *rec.PostID)
	}

	err = svc.Attach(ctx, uuid.NewString(), []string{results[0].MediaID})
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestAttachValidation(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Attach(ctx, "not-a-uuid", []string{uuid.NewString()}), ErrValidationFailed)
	assert.ErrorIs(t, svc.Attach(ctx, uuid.NewString(), nil), ErrValidationFailed)
	assert.ErrorIs(t, svc.Attach(ctx, uuid.NewString(), []string{"bad"}), ErrValidationFailed)

	six := make([]string, 6)
	for i := range six {
		six[i] = uuid.NewString()
	}
	assert.ErrorIs(t, svc.Attach(ctx, uuid.NewString(), six), ErrTooManyFiles)
}

func TestDelete(t *testing.T) {
	svc, records, store, _ := setupService(t)
	ctx := context.Background()

	results, err := svc.Upload(ctx, "user-1", []File{fileOf("a.png", "image/png", []byte("a"))})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, results[0].MediaID))
	assert.Zero(t, records.count())
	_, ok := store.GetURL(results[0].URL)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Delete(ctx, results[0].MediaID), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "nope"), ErrNotFound)
}

func TestDeleteKeepsRecordWhenObjectDeleteFails(t *testing.T) {
	svc, records, store, _ := setupService(t)
	ctx := context.Background()

	results, err := svc.Upload(ctx, "user-1", []File{fileOf("a.png", "image/png", []byte("a"))})
	require.NoError(t, err)

	store.FailDelete = func(string) error { return errors.New("timeout") }
	assert.ErrorIs(t, svc.Delete(ctx, results[0].MediaID), ErrStorageDeleteFailed)
	assert.Equal(t, 1, records.count())
}
