// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/radif/media/internal/storage"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory keeps objects in a map. FailUpload and FailDelete, when set, are consulted
// before every call and their error is returned as-is.
type Memory struct {
	storage.Locator

	FailUpload func(key string) error
	FailDelete func(key string) error

	mu      sync.Mutex
	objects map[string]Object
	uploads int
	deletes int
}

// NewMemory returns an empty store served under publicBase/bucket.
func NewMemory(publicBase, bucket string) *Memory {
	return &Memory{
		Locator: storage.NewLocator(publicBase, bucket),
		objects: make(map[string]Object),
	}
}

func (m *Memory) Upload(ctx context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	if m.FailUpload != nil {
		if err := m.FailUpload(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: data, ContentType: contentType}
	m.uploads++
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if m.FailDelete != nil {
		if err := m.FailDelete(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deletes++
	return nil
}

func (m *Memory) Provision(context.Context) error { return nil }

// Put seeds an object without counting it as an upload.
func (m *Memory) Put(key string, obj Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
}

// Get returns the object stored under key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// GetURL resolves a public URL and returns the object behind it.
func (m *Memory) GetURL(rawURL string) (Object, bool) {
	key, ok := m.KeyFromURL(rawURL)
	if !ok {
		return Object{}, false
	}
	return m.Get(key)
}

// Keys lists stored keys with the given prefix in lexical order.
func (m *Memory) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Uploads reports how many successful Upload calls were made.
func (m *Memory) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Deletes reports how many successful Delete calls were made.
func (m *Memory) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}
