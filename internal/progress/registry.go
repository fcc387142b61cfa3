// Package progress tracks coarse per-job progress in memory.
//
// Each worker process owns its own Registry; there is no cross-process
// state. Finished jobs stay readable until swept, so late polls still see
// the terminal snapshot.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Snapshot is the externally visible progress of one job.
type Snapshot struct {
	JobID              string
	Current            int
	Total              int
	Successful         int
	Failed             int
	CurrentFile        string
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
	Status             Status
	LastUpdated        time.Time
}

// Registry is an in-process arena of job id to progress snapshot.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Snapshot

	now func() time.Time // test hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]Snapshot),
		now:  time.Now,
	}
}

// Create registers a new running job and returns its id.
func (r *Registry) Create() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.jobs[id] = Snapshot{
		JobID:       id,
		Status:      StatusRunning,
		LastUpdated: r.now(),
	}
	r.mu.Unlock()
	return id
}

// Update overwrites a job's progress counters. Unknown ids are ignored; a
// job may have been swept while its batch was still reporting.
func (r *Registry) Update(id string, s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[id]
	if !ok {
		return
	}
	s.JobID = id
	s.Status = cur.Status
	s.LastUpdated = r.now()
	r.jobs[id] = s
}

// Get returns a job's snapshot.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.jobs[id]
	return s, ok
}

// Complete marks a job terminal.
func (r *Registry) Complete(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.jobs[id]
	if !ok {
		return
	}
	s.Status = status
	s.LastUpdated = r.now()
	r.jobs[id] = s
}

// Sweep evicts jobs idle for longer than maxAge and returns how many were
// removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.jobs {
		if s.LastUpdated.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps the registry every maxAge until ctx is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(maxAge)
		}
	}
}
