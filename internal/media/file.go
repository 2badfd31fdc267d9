package media

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Type is the media category stored on a record.
type Type string

// Supported media types.
const (
	TypeImage Type = "IMAGE"
	TypeVideo Type = "VIDEO"
)

// Upload limits.
const (
	MaxFilesPerUpload       = 5
	MaxImageSize      int64 = 4 << 20
	MaxVideoSize      int64 = 64 << 20
)

const fallbackExtension = "bin"

// File is one uploaded byte stream with its declared metadata.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// TypeOf derives the media category from a declared content type.
func TypeOf(contentType string) (Type, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return TypeImage, true
	case strings.HasPrefix(ct, "video/"):
		return TypeVideo, true
	default:
		return "", false
	}
}

// MaxSize is the per-file byte cap for the category.
func (t Type) MaxSize() int64 {
	if t == TypeVideo {
		return MaxVideoSize
	}
	return MaxImageSize
}

// ValidateBatch checks count, category and size of every file before any I/O happens.
func ValidateBatch(files []File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if len(files) > MaxFilesPerUpload {
		return fmt.Errorf("%w: %d files, maximum %d allowed", ErrTooManyFiles, len(files), MaxFilesPerUpload)
	}
	for _, f := range files {
		t, ok := TypeOf(f.ContentType)
		if !ok {
			return fmt.Errorf("%w: file %q has type %q", ErrUnsupportedMediaType, f.Name, f.ContentType)
		}
		if f.Size > t.MaxSize() {
			return fmt.Errorf("%w: file %q exceeds maximum size of %d MiB", ErrPayloadTooLarge, f.Name, t.MaxSize()>>20)
		}
	}
	return nil
}

// Extension returns the extension to use in a storage key: the original file's extension when
// it is a plain alphanumeric token, otherwise the one registered for contentType.
func Extension(name, contentType string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		if ext := name[i+1:]; isToken(ext) {
			return ext
		}
	}
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if mt := mimetype.Lookup(base); mt != nil && mt.Extension() != "" {
		return strings.TrimPrefix(mt.Extension(), ".")
	}
	return fallbackExtension
}

func isToken(s string) bool {
	if len(s) > 10 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// OpenParts opens every multipart file header as a File. Parts without a usable content type
// are sniffed. The returned func closes everything that was opened.
func OpenParts(headers []*multipart.FileHeader) ([]File, func(), error) {
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	files := make([]File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open part %q: %w", h.Filename, err)
		}
		opened = append(opened, f)

		ct := h.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			mt, err := mimetype.DetectReader(f)
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("detect type of %q: %w", h.Filename, err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("rewind %q: %w", h.Filename, err)
			}
			ct = mt.String()
		}

		files = append(files, File{
			Name:        h.Filename,
			ContentType: ct,
			Size:        h.Size,
			Body:        f,
		})
	}
	return files, closeAll, nil
}
