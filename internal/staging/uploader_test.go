package staging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radif/media/internal/media"
)

func TestHTTPUploader(t *testing.T) {
	var gotAuth string
	var gotParts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var results []media.UploadResult
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if !assert.NoError(t, err) {
				continue
			}
			data, _ := io.ReadAll(f)
			_ = f.Close()
			gotParts = append(gotParts, fh.Header.Get("Content-Type")+":"+string(data))
			results = append(results, media.UploadResult{Name: fh.Filename, MediaID: "m-" + fh.Filename})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer srv.Close()

	u := &HTTPUploader{Client: srv.Client(), Endpoint: srv.URL, Token: "tok"}
	results, err := u.Upload(context.Background(), files("a.png", "b.png"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []string{"image/png:x", "image/png:x"}, gotParts)
	require.Len(t, results, 2)
	assert.Equal(t, "m-b.png", results[1].MediaID)
}

func TestHTTPUploaderSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"validation failed: too many files"}`))
	}))
	defer srv.Close()

	u := &HTTPUploader{Endpoint: srv.URL}
	_, err := u.Upload(context.Background(), files("a.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many files")
}

func TestBufferWithHTTPUploader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var results []media.UploadResult
		for _, fh := range r.MultipartForm.File["files"] {
			results = append(results, media.UploadResult{Name: fh.Filename, MediaID: "m-" + fh.Filename})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer srv.Close()

	b := NewBuffer(&HTTPUploader{Endpoint: srv.URL})
	require.NoError(t, b.Add(context.Background(), files("cat.png")))
	ids := b.MediaIDs()
	require.Len(t, ids, 1)
	assert.Regexp(t, `^m-attachment_[0-9a-f-]{36}\.png$`, ids[0])
}
