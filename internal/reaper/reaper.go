// Package reaper reclaims staged media that never got linked to a post.
//
// A sweep deletes objects before records. If it stops half way, the records that remain
// still have post_id NULL and the next sweep picks them up again; deleting an absent
// object is a no-op.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radif/media/internal/media"
	"github.com/radif/media/internal/metrics"
)

// RecordStore lists and removes unattached media records.
type RecordStore interface {
	ListUnattached(ctx context.Context, createdBefore *time.Time) ([]media.Record, error)
	DeleteUnattached(ctx context.Context, ids []string) (int64, error)
}

// ObjectStore removes objects addressed by their public URL.
type ObjectStore interface {
	Delete(ctx context.Context, key string) error
	KeyFromURL(rawURL string) (string, bool)
}

// Config tunes a Reaper.
type Config struct {
	// Grace is the minimum age of a record before it can be reaped.
	Grace time.Duration
	// EnforceGrace applies Grace. When false every unattached record is eligible.
	EnforceGrace bool
	// Concurrency bounds parallel object deletes.
	Concurrency int
}

// Result summarises one sweep.
type Result struct {
	Selected int `json:"selected"`
	Deleted  int `json:"deleted"`
	Retained int `json:"retained"`
}

// Reaper deletes orphaned media from object storage and the metadata store.
type Reaper struct {
	records RecordStore
	store   ObjectStore
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

// New creates a Reaper.
func New(records RecordStore, store ObjectStore, cfg Config, m *metrics.Metrics, log *zap.SugaredLogger) *Reaper {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Reaper{
		records: records,
		store:   store,
		cfg:     cfg,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Sweep runs one reclamation pass. Records whose object could not be deleted are kept
// and retried on the next pass. A canceled ctx stops the pass before any record is removed.
func (r *Reaper) Sweep(ctx context.Context) (Result, error) {
	var cutoff *time.Time
	if r.cfg.EnforceGrace {
		c := r.now().Add(-r.cfg.Grace)
		cutoff = &c
	}

	orphans, err := r.records.ListUnattached(ctx, cutoff)
	if err != nil {
		r.metrics.ReaperSweeps.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("select orphans: %w", err)
	}
	res := Result{Selected: len(orphans)}
	if len(orphans) == 0 {
		r.metrics.ReaperSweeps.WithLabelValues("ok").Inc()
		return res, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	reapable := make([]string, 0, len(orphans))
	g.SetLimit(r.cfg.Concurrency)
	for _, rec := range orphans {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if key, ok := r.store.KeyFromURL(rec.URL); ok {
				if err := r.store.Delete(ctx, key); err != nil {
					r.log.Warnw("orphan object delete failed, keeping record", "media_id", rec.ID, "key", key, "error", err)
					return nil
				}
			} else {
				r.log.Warnw("orphan url outside bucket, dropping record only", "media_id", rec.ID, "url", rec.URL)
			}
			mu.Lock()
			reapable = append(reapable, rec.ID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.metrics.ReaperSweeps.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("delete orphan objects: %w", err)
	}

	res.Retained = res.Selected - len(reapable)
	r.metrics.ReaperRetained.Add(float64(res.Retained))

	deleted, err := r.records.DeleteUnattached(ctx, reapable)
	if err != nil {
		r.metrics.ReaperSweeps.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("%w: %w", media.ErrMetadataWriteFailed, err)
	}
	res.Deleted = int(deleted)
	r.metrics.ReaperDeleted.Add(float64(deleted))
	r.metrics.ReaperSweeps.WithLabelValues("ok").Inc()

	r.log.Infow("orphan sweep finished",
		"selected", res.Selected,
		"deleted", res.Deleted,
		"retained", res.Retained,
		"grace_enforced", r.cfg.EnforceGrace,
	)
	return res, nil
}
