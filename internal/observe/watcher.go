package observe

// The engine owns its children.
// The runner only checks whether any of them outlived the engine.

import (
	"errors"
	"syscall"
	"time"
)

// GroupWatcher observes a process group. Nothing else.
type GroupWatcher struct {
	pgid      int
	startTime time.Time
}

// NewGroupWatcher creates a watcher for a process group id
func NewGroupWatcher(pgid int) *GroupWatcher {
	return &GroupWatcher{
		pgid:      pgid,
		startTime: time.Now(),
	}
}

// Alive reports whether any process in the group still exists
func (w *GroupWatcher) Alive() bool {
	if w.pgid <= 0 {
		return false
	}
	// Signal 0 checks existence without delivering anything
	err := syscall.Kill(-w.pgid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Reap sends SIGTERM to a surviving group, waits up to grace for it to go
// away, then sends SIGKILL. It returns true if stragglers were found.
func (w *GroupWatcher) Reap(grace time.Duration) bool {
	if !w.Alive() {
		return false
	}

	_ = syscall.Kill(-w.pgid, syscall.SIGTERM)

	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		if !w.Alive() {
			return true
		}
	}

	_ = syscall.Kill(-w.pgid, syscall.SIGKILL)
	return true
}

// Duration returns how long we've been observing
func (w *GroupWatcher) Duration() time.Duration {
	return time.Since(w.startTime)
}
