// Package handler contains the HTTP handlers: job triggers, job polling,
// log streaming, and supporting endpoints.
package handler

import (
	"context"
	"time"

	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/internal/jobs"
)

// Terminal statuses stay visible to dashboard polls for a day even if the
// server restarts and loses the in-memory registry.
const jobStatusTTL = 24 * time.Hour

// statusSink decorates a job so status changes are mirrored into redis.
// Log lines pass straight through; only the terminal transition is mirrored.
type statusSink struct {
	job   *jobs.Job
	cache cache.Cache
}

func newStatusSink(job *jobs.Job, c cache.Cache) jobs.Sink {
	if c == nil {
		return job
	}
	return &statusSink{job: job, cache: c}
}

func (s *statusSink) LogLine(line string) {
	s.job.LogLine(line)
}

func (s *statusSink) Complete(success bool) {
	s.job.Complete(success)

	snap := s.job.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// best effort, the registry remains the source of truth
	_ = s.cache.SetJobStatus(ctx, s.job.ID, snap.Status, jobStatusTTL)
}

func mirrorRunning(job *jobs.Job, c cache.Cache) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.SetJobStatus(ctx, job.ID, jobs.StatusRunning, jobStatusTTL)
}
