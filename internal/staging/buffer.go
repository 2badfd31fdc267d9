// Package staging is the client half of the attachment flow: it holds a draft's
// attachments between upload and post submission.
//
// A Buffer allows one upload batch at a time and at most MaxAttachments entries. When a
// batch fails only its own entries are dropped. Call Reset when the draft is submitted or
// discarded so a new draft never carries stale media ids.
package staging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/radif/media/internal/media"
)

// MaxAttachments is the per-post attachment cap.
const MaxAttachments = media.MaxFilesPerUpload

var (
	ErrUploadInProgress   = errors.New("please wait for the current upload to finish")
	ErrTooManyAttachments = fmt.Errorf("you can only upload up to %d attachments per post", MaxAttachments)
	ErrNoFiles            = errors.New("no files selected")
)

// Status is the upload state of one attachment.
type Status int

const (
	StatusUploading Status = iota
	StatusUploaded
)

func (s Status) String() string {
	if s == StatusUploaded {
		return "uploaded"
	}
	return "uploading"
}

// Attachment is one staged file.
type Attachment struct {
	Name        string
	ContentType string
	MediaID     string
	Status      Status
}

// Uploader sends a batch to the attachment endpoint.
type Uploader interface {
	Upload(ctx context.Context, files []media.File) ([]media.UploadResult, error)
}

// Buffer holds the attachments of one draft.
type Buffer struct {
	uploader Uploader

	mu       sync.Mutex
	items    []Attachment
	inFlight bool
	gen      uint64
}

// NewBuffer returns an empty Buffer that uploads through u.
func NewBuffer(u Uploader) *Buffer {
	return &Buffer{uploader: u}
}

// Add renames files to attachment_<uuid>.<ext>, stages them as uploading and uploads them.
// It blocks until the batch finishes.
func (b *Buffer) Add(ctx context.Context, files []media.File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}

	b.mu.Lock()
	if b.inFlight {
		b.mu.Unlock()
		return ErrUploadInProgress
	}
	if len(b.items)+len(files) > MaxAttachments {
		b.mu.Unlock()
		return ErrTooManyAttachments
	}

	renamed := make([]media.File, len(files))
	for i, f := range files {
		f.Name = fmt.Sprintf("attachment_%s.%s", uuid.NewString(), media.Extension(f.Name, f.ContentType))
		renamed[i] = f
		b.items = append(b.items, Attachment{Name: f.Name, ContentType: f.ContentType, Status: StatusUploading})
	}
	b.inFlight = true
	gen := b.gen
	b.mu.Unlock()

	results, err := b.uploader.Upload(ctx, renamed)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		// Reset while uploading; the uploaded media are left for the server to reap.
		// A newer batch may own inFlight by now, so leave it alone.
		return err
	}
	b.inFlight = false
	if err != nil {
		b.dropUploading()
		return err
	}

	byName := make(map[string]string, len(results))
	for _, r := range results {
		byName[r.Name] = r.MediaID
	}
	for i := range b.items {
		a := &b.items[i]
		if a.Status != StatusUploading {
			continue
		}
		if id, ok := byName[a.Name]; ok {
			a.MediaID = id
			a.Status = StatusUploaded
		}
	}
	b.dropUploading()
	return nil
}

func (b *Buffer) dropUploading() {
	kept := b.items[:0]
	for _, a := range b.items {
		if a.Status != StatusUploading {
			kept = append(kept, a)
		}
	}
	b.items = kept
}

// Remove drops the attachment with the given (renamed) name.
func (b *Buffer) Remove(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.items[:0]
	for _, a := range b.items {
		if a.Name != name {
			kept = append(kept, a)
		}
	}
	b.items = kept
}

// Reset empties the buffer. A batch still in flight is forgotten when it completes.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.inFlight = false
	b.gen++
}

// Attachments returns a snapshot in insertion order.
func (b *Buffer) Attachments() []Attachment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Attachment, len(b.items))
	copy(out, b.items)
	return out
}

// MediaIDs returns the ids of uploaded attachments, ready to send with the post.
func (b *Buffer) MediaIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for _, a := range b.items {
		if a.Status == StatusUploaded {
			ids = append(ids, a.MediaID)
		}
	}
	return ids
}

// Uploading reports whether a batch is in flight.
func (b *Buffer) Uploading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}
