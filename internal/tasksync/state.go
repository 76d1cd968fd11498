// Package tasksync provides the process-shared active/error signalling
// maps that stand in for the source's process-shared state (spec.md §5):
// the only inter-worker communication channel between the orchestrator
// and the task runner.
package tasksync

import (
	"sync"
)

// TaskState is the process-shared, concurrency-safe pair of active/error
// maps described in spec.md §5: the only inter-worker signalling
// mechanism. A real fork/exec model would share these as OS-level shared
// memory between sibling processes; here goroutines share the same
// *TaskState value directly, which is the substitution spec.md's DESIGN
// NOTES §9 explicitly sanctions.
type TaskState struct {
	mu     sync.Mutex
	cond   *sync.Cond
	active map[string]bool
	errors map[string]bool
}

// NewTaskState creates an empty shared state.
func NewTaskState() *TaskState {
	s := &TaskState{
		active: make(map[string]bool),
		errors: make(map[string]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetActive sets node n's active bit and wakes any waiter.
func (s *TaskState) SetActive(n string, v bool) {
	s.mu.Lock()
	s.active[n] = v
	s.mu.Unlock()
	s.cond.Broadcast()
}

// SetError sets node n's terminal error bit.
func (s *TaskState) SetError(n string, v bool) {
	s.mu.Lock()
	s.errors[n] = v
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Active reports whether node n is still running.
func (s *TaskState) Active(n string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[n]
}

// Error reports node n's terminal error bit.
func (s *TaskState) Error(n string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors[n]
}

// WaitInactive blocks until node n's active bit is false, woken by the
// condvar whenever a writer calls SetActive or SetError. The upstream waits
// in internal/task and internal/orchestrator do not call it; they poll
// Active every 100ms.
func (s *TaskState) WaitInactive(n string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.active[n] {
		s.cond.Wait()
	}
}

// AnyError reports whether any node in names has its error bit set.
func (s *TaskState) AnyError(names []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if s.errors[n] {
			return true
		}
	}
	return false
}
