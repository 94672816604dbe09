package trainer

import (
	"context"
	"sync"
)

// jobSlot holds at most one active job id. Acquisition and release are
// symmetric on every code path, so a crashed run can never leave the
// trainer stuck in a busy state.
type jobSlot struct {
	mu       sync.Mutex
	activeID string
	cancelFn context.CancelFunc
}

// acquire claims the slot for jobID. Returns false if another job
// already holds it.
func (s *jobSlot) acquire(jobID string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != "" {
		return false
	}
	s.activeID = jobID
	s.cancelFn = cancel
	return true
}

// release frees the slot if jobID still holds it.
func (s *jobSlot) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != jobID {
		return
	}
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.activeID = ""
	s.cancelFn = nil
}

// cancel cancels the active job's context if jobID holds the slot.
func (s *jobSlot) cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != jobID || s.cancelFn == nil {
		return false
	}
	s.cancelFn()
	return true
}

// active returns the currently held job id, empty when idle.
func (s *jobSlot) active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}
