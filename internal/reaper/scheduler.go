package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 10 * time.Minute

// Scheduler runs sweeps in-process on a cron schedule. A tick that fires while the
// previous sweep is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	reaper *Reaper
	log    *zap.SugaredLogger
}

// NewScheduler parses spec (standard five-field cron or a descriptor such as "@hourly").
func NewScheduler(spec string, reaper *Reaper, log *zap.SugaredLogger) (*Scheduler, error) {
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		reaper: reaper,
		log:    log,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("parse reaper schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new sweeps and returns a context that is done once the running one ends.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.reaper.Sweep(ctx); err != nil {
		s.log.Errorw("scheduled orphan sweep failed", "error", err)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
