package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
)

// HooksRecorder keeps every aggregate hook call so tests can assert on
// outcomes, conflicts, retries and root lock acquisition.
type HooksRecorder struct {
	mu sync.Mutex

	Operations []OperationEvent
	Conflicts  []string
	Retries    []string
	LockWaits  []LockWait
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

type LockWait struct {
	Name     string
	Acquired bool
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, OperationEvent{Name: name, Status: status, Duration: dur})
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

func (h *HooksRecorder) ObserveLockWait(name string, acquired bool, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LockWaits = append(h.LockWaits, LockWait{Name: name, Acquired: acquired})
}

// StatusesOf returns the recorded outcome of every call to op, in order.
func (h *HooksRecorder) StatusesOf(op string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.Operations {
		if e.Name == op {
			out = append(out, e.Status)
		}
	}
	return out
}
