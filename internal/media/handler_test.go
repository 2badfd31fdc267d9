package media

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radif/media/internal/middleware"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type part struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, field string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+p.name+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func newTestRouter(t *testing.T) (http.Handler, *memRecords) {
	svc, records, _, _ := setupService(t)
	h := NewHandler(svc, zap.NewNop().Sugar())

	r := chi.NewRouter()
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-User"); id != "" {
				r = r.WithContext(middleware.WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}).Post("/uploads/attachments", h.UploadAttachments)
	r.Post("/internal/media/attach", h.Attach)
	r.Delete("/internal/media/{id}", h.Delete)
	return r, records
}

func TestUploadAttachmentsHandler(t *testing.T) {
	router, records := newTestRouter(t)

	body, ct := multipartBody(t, "files",
		part{name: "a.png", contentType: "image/png", data: pngHeader},
		part{name: "sniffed", contentType: "application/octet-stream", data: pngHeader},
	)
	req := httptest.NewRequest(http.MethodPost, "/uploads/attachments", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", "user-1")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a.png", resp.Results[0].Name)
	assert.True(t, strings.HasSuffix(resp.Results[1].URL, ".png"))
	assert.Equal(t, 2, records.count())
}

func TestUploadAttachmentsHandlerErrors(t *testing.T) {
	router, records := newTestRouter(t)

	body, ct := multipartBody(t, "files", part{name: "a.png", contentType: "image/png", data: pngHeader})
	req := httptest.NewRequest(http.MethodPost, "/uploads/attachments", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body, ct = multipartBody(t, "files", part{name: "doc.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4")})
	req = httptest.NewRequest(http.MethodPost, "/uploads/attachments", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", "user-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, "other")
	req = httptest.NewRequest(http.MethodPost, "/uploads/attachments", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", "user-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/uploads/attachments", strings.NewReader("not multipart"))
	req.Header.Set("X-Test-User", "user-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Zero(t, records.count())
}

func TestAttachAndDeleteHandlers(t *testing.T) {
	router, records := newTestRouter(t)

	body, ct := multipartBody(t, "files", part{name: "a.png", contentType: "image/png", data: pngHeader})
	req := httptest.NewRequest(http.MethodPost, "/uploads/attachments", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var up uploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&up))
	mediaID := up.Results[0].MediaID

	payload, _ := json.Marshal(attachRequest{PostID: uuid.NewString(), MediaIDs: []string{mediaID}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/media/attach", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/media/attach", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/media/attach", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/internal/media/"+mediaID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, records.count())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/internal/media/"+mediaID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
