// Package store implements C8, the process repository and scheduler:
// a bounded, FIFO-windowed mapping from process id to AgentProcess, and
// the scheduling seam a platform consults before letting a process tick.
package store

import (
	"context"
	"sync"

	"github.com/kaelion/agentkit/process"
)

// ProcessRepository maps processId -> *process.AgentProcess under a
// bounded window, safe for concurrent Save/FindByID/List/Delete (spec.md
// §5: "the process repository is shared and must be safe under concurrent
// save/findById/delete").
type ProcessRepository interface {
	Save(ctx context.Context, p *process.AgentProcess) error
	FindByID(ctx context.Context, id string) (*process.AgentProcess, bool, error)
	List(ctx context.Context) ([]*process.AgentProcess, error)
	Delete(ctx context.Context, id string) error
}

// defaultWindowSize is the repository's default FIFO window (spec.md §4.8).
const defaultWindowSize = 1000

// terminal reports whether status is one of the statuses spec.md §8
// states are sticky once reached (COMPLETED/FAILED/TERMINATED) — the only
// statuses an eviction may safely remove, since a process in any other
// status may still have in-flight work depending on it.
func terminal(status process.Status) bool {
	switch status {
	case process.StatusCompleted, process.StatusFailed, process.StatusTerminated:
		return true
	default:
		return false
	}
}

// InMemoryRepository is the default ProcessRepository: an in-process map
// plus an insertion-order slice for FIFO eviction, grounded on the
// teacher's runtime/agent/run/inmem.Store (a mutex-guarded map with no
// durability, intended for single-process use), generalized here with
// windowed eviction since spec.md §4.8 requires it where the teacher's
// run store does not window at all.
type InMemoryRepository struct {
	mu         sync.Mutex
	windowSize int
	order      []string
	byID       map[string]*process.AgentProcess
}

// NewInMemoryRepository constructs an InMemoryRepository with the given
// window size; windowSize <= 0 uses the spec default of 1000.
func NewInMemoryRepository(windowSize int) *InMemoryRepository {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &InMemoryRepository{windowSize: windowSize, byID: make(map[string]*process.AgentProcess)}
}

// Save inserts or updates p, keyed by p.ID(). Inserting a new id may evict
// the oldest terminal entry if the window is full; eviction of a running
// process is disallowed (spec.md §4.8), so eviction skips forward to the
// next-oldest terminal entry, leaving the window temporarily over-size
// when every tracked process is still active.
func (r *InMemoryRepository) Save(_ context.Context, p *process.AgentProcess) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
	}
	r.byID[id] = p
	r.evictLocked()
	return nil
}

// evictLocked removes the oldest terminal entry if the repository is over
// its window, scanning forward past running entries it may not evict.
// Callers must hold r.mu.
func (r *InMemoryRepository) evictLocked() {
	for len(r.order) > r.windowSize {
		evictedAt := -1
		for i, id := range r.order {
			p, ok := r.byID[id]
			if !ok {
				evictedAt = i // stale entry (already deleted directly); drop it
				break
			}
			if terminal(p.Status()) {
				evictedAt = i
				break
			}
		}
		if evictedAt < 0 {
			return // nothing evictable: every tracked entry is still active
		}
		id := r.order[evictedAt]
		delete(r.byID, id)
		r.order = append(r.order[:evictedAt], r.order[evictedAt+1:]...)
	}
}

// FindByID returns the process for id, if tracked.
func (r *InMemoryRepository) FindByID(_ context.Context, id string) (*process.AgentProcess, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	return p, ok, nil
}

// List returns every tracked process, oldest-inserted first.
func (r *InMemoryRepository) List(_ context.Context) ([]*process.AgentProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*process.AgentProcess, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out, nil
}

// Delete removes id unconditionally, regardless of its process's status.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return nil
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Scheduler decides whether a process may proceed now, or should instead
// be left PAUSED (spec.md §4.8).
type Scheduler interface {
	Allow(ctx context.Context, processID string) (bool, error)
}

// ProntoScheduler is the default Scheduler: it always allows progress.
type ProntoScheduler struct{}

// Allow implements Scheduler by always returning true.
func (ProntoScheduler) Allow(context.Context, string) (bool, error) { return true, nil }
