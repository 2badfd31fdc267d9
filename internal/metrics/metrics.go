// Package metrics exposes Prometheus collectors for the media lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "media"

// Metrics groups every collector the service records.
type Metrics struct {
	UploadedFiles   *prometheus.CounterVec
	UploadBytes     *prometheus.HistogramVec
	UploadFailures  *prometheus.CounterVec
	AvatarReplaced  *prometheus.CounterVec
	ReaperSweeps    *prometheus.CounterVec
	ReaperDeleted   prometheus.Counter
	ReaperRetained  prometheus.Counter
	OldAvatarErrors prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UploadedFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Attachments stored and recorded, by media type.",
		}, []string{"type"}),
		UploadBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of accepted uploads.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		}, []string{"type"}),
		UploadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_failures_total",
			Help:      "Rejected or failed upload batches, by reason.",
		}, []string{"reason"}),
		AvatarReplaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "avatar_replacements_total",
			Help:      "Avatar replace attempts, by outcome.",
		}, []string{"outcome"}),
		ReaperSweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_sweeps_total",
			Help:      "Orphan reaper runs, by outcome.",
		}, []string{"outcome"}),
		ReaperDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_deleted_total",
			Help:      "Orphaned media removed from both stores.",
		}),
		ReaperRetained: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_retained_total",
			Help:      "Orphans kept for the next sweep because their object delete failed.",
		}),
		OldAvatarErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "old_avatar_delete_failures_total",
			Help:      "Best-effort deletes of a previous avatar object that failed.",
		}),
	}
}

// Handler serves the collectors registered on g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
