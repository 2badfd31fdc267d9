package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.UploadedFiles.WithLabelValues("IMAGE").Add(2)
	m.ReaperDeleted.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UploadedFiles.WithLabelValues("IMAGE")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `media_uploaded_files_total{type="IMAGE"} 2`))
	assert.True(t, strings.Contains(body, "media_reaper_deleted_total 1"))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
