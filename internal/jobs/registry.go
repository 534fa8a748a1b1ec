package jobs

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns job records. The in-memory implementation matches the
// process-lifetime semantics of the jobs themselves; it is an interface so
// handlers can be tested against fakes.
type Registry interface {
	Create() *Job
	Get(id uuid.UUID) (*Job, bool)
}

// MemoryRegistry is the process-local Registry. Safe for concurrent use.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[uuid.UUID]*Job)}
}

// Create registers a new running job with an empty log.
func (r *MemoryRegistry) Create() *Job {
	job := newJob()

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job
}

// Get returns the job for id, or false if no such job exists in this process.
func (r *MemoryRegistry) Get(id uuid.UUID) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	return job, ok
}
