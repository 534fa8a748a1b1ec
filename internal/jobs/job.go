// Package jobs tracks long-running background tasks in memory: each job has a
// status, timestamps, and a bounded log buffer that streaming subscribers
// replay and tail. Jobs live only in the process that started them.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// MaxLogLines bounds each job's log buffer; the oldest lines are evicted
// first once the buffer is full.
const MaxLogLines = 2000

// Job is one tracked background task. All methods are safe for concurrent
// use; a job has a single writer (its task) and any number of readers.
type Job struct {
	ID uuid.UUID

	mu         sync.RWMutex
	status     string
	startedAt  time.Time
	finishedAt *time.Time

	// logs is a ring buffer: start is the index of the oldest buffered line
	// and total counts every line ever appended, so subscribers can keep
	// absolute cursors across evictions.
	logs  []string
	start int
	total int
}

func newJob() *Job {
	return &Job{
		ID:        uuid.New(),
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
	}
}

// LogLine appends one line, evicting the oldest on overflow. No-op once the
// job reached a terminal status.
func (j *Job) LogLine(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusRunning {
		return
	}
	if len(j.logs) < MaxLogLines {
		j.logs = append(j.logs, line)
	} else {
		j.logs[j.start] = line
		j.start = (j.start + 1) % MaxLogLines
	}
	j.total++
}

// Complete moves the job to its terminal status. Only the first call has
// effect; the record is immutable afterwards.
func (j *Job) Complete(success bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusRunning {
		return
	}
	if success {
		j.status = StatusFinished
	} else {
		j.status = StatusFailed
	}
	now := time.Now().UTC()
	j.finishedAt = &now
}

// Snapshot is a point-in-time, read-only view of a job.
type Snapshot struct {
	ID         uuid.UUID  `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LogCount   int        `json:"log_count"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return Snapshot{
		ID:         j.ID,
		Status:     j.status,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
		LogCount:   j.total,
	}
}

// LogsSince returns buffered lines with absolute index >= cursor, in append
// order, plus the cursor to use next. Lines evicted before cursor are gone;
// the caller just misses them (eviction is not signaled).
func (j *Job) LogsSince(cursor int) ([]string, int) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	oldest := j.total - len(j.logs)
	if cursor < oldest {
		cursor = oldest
	}
	if cursor >= j.total {
		return nil, j.total
	}

	lines := make([]string, 0, j.total-cursor)
	for i := cursor; i < j.total; i++ {
		lines = append(lines, j.logs[(j.start+i-oldest)%len(j.logs)])
	}
	return lines, j.total
}
