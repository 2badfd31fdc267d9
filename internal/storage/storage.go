// Package storage defines the interface for object storage operations.
// Two S3-compatible implementations exist: MinioStorage (minio-go) and S3Storage (aws-sdk-go-v2).
// Pick one with Config.Driver; both work against MinIO, ArvanCloud or AWS S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Supported values for Config.Driver.
const (
	DriverMinio = "minio"
	DriverS3    = "s3"
)

// ErrCORSNotApplied is returned by Provision when the bucket and policy are in place
// but the backend refused the CORS configuration. Callers usually log it and continue.
var ErrCORSNotApplied = errors.New("bucket cors configuration not applied")

// Storage is the interface for uploading and deleting objects.
type Storage interface {
	// Upload streams data to the store under the given key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Delete removes an object identified by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
	// KeyFromURL recovers the object key from a URL built by PublicURL.
	KeyFromURL(rawURL string) (string, bool)
	// Provision creates the bucket if needed and applies the public-read policy and CORS rules.
	Provision(ctx context.Context) error
}

// Config describes how to reach the object store.
type Config struct {
	Driver     string
	Endpoint   string // host[:port], no scheme
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PublicBase string // browser-accessible base URL, e.g. "http://localhost:9000"
}

// New builds the Storage selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	switch cfg.Driver {
	case DriverMinio, "":
		return NewMinioStorage(cfg)
	case DriverS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Locator maps object keys to public URLs of the form <publicBase>/<bucket>/<key> and back.
type Locator struct {
	publicBase string
	bucket     string
}

// NewLocator returns a Locator for bucket served under publicBase.
func NewLocator(publicBase, bucket string) Locator {
	return Locator{publicBase: strings.TrimRight(publicBase, "/"), bucket: bucket}
}

// Bucket returns the bucket name.
func (l Locator) Bucket() string {
	return l.bucket
}

// PublicURL returns the browser-accessible URL for the given key.
// For local MinIO: "http://localhost:9000/media/attachments/1700000000000_<uuid>.jpg"
func (l Locator) PublicURL(key string) string {
	return l.publicBase + "/" + l.bucket + "/" + key
}

// KeyFromURL strips the public base and bucket from rawURL. URLs minted under an older
// public base still resolve as long as they contain the "/<bucket>/" segment.
func (l Locator) KeyFromURL(rawURL string) (string, bool) {
	if prefix := l.PublicURL(""); strings.HasPrefix(rawURL, prefix) {
		key := rawURL[len(prefix):]
		return key, key != ""
	}
	marker := "/" + l.bucket + "/"
	if i := strings.Index(rawURL, marker); i >= 0 {
		key := rawURL[i+len(marker):]
		return key, key != ""
	}
	return "", false
}
