// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger drops drafts last written before cutoff.
type Purger interface {
	PurgeDrafts(ctx context.Context, cutoff time.Time) (int64, error)
}

const DefaultSchedule = "@hourly"

// Janitor removes drafts older than MaxAge.
type Janitor struct {
	Purger   Purger
	MaxAge   time.Duration
	Schedule string
	Now      func() time.Time
	Log      *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func (j *Janitor) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().UTC()
}

func (j *Janitor) log() *zap.Logger {
	if j.Log == nil {
		return zap.NewNop()
	}
	return j.Log
}

// RunOnce purges once and returns the number of drafts removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.MaxAge)
	n, err := j.Purger.PurgeDrafts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	if n > 0 {
		j.log().Info("purged stale drafts", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start schedules RunOnce. Calling Start twice is an error.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return fmt.Errorf("janitor already started")
	}
	spec := j.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.log().Warn("draft janitor failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	c.Start()
	j.cron = c
	return nil
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
