package observe

// Timing only records timestamps.
// It never decides anything about the run.

import (
	"sync"
	"time"
)

// Timing records run start/end timestamps and per-phase durations
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time

	mu     sync.Mutex
	phases map[string]time.Duration
	order  []string
	now    func() time.Time
}

// NewTiming creates timing with current start time
func NewTiming() *Timing {
	return newTimingWithClock(time.Now)
}

func newTimingWithClock(now func() time.Time) *Timing {
	return &Timing{
		StartedAt: now(),
		phases:    make(map[string]time.Duration),
		now:       now,
	}
}

// StartPhase begins timing a phase. The returned func stops it; calling it
// more than once has no further effect.
func (t *Timing) StartPhase(name string) func() {
	start := t.now()
	var once sync.Once
	return func() {
		once.Do(func() {
			elapsed := t.now().Sub(start)
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, seen := t.phases[name]; !seen {
				t.order = append(t.order, name)
			}
			t.phases[name] += elapsed
		})
	}
}

// Phases returns a copy of the recorded phase durations
func (t *Timing) Phases() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.phases))
	for k, v := range t.phases {
		out[k] = v
	}
	return out
}

// PhaseOrder returns phase names in the order they first completed
func (t *Timing) PhaseOrder() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = t.now()
}

// Duration returns execution duration
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.now().Sub(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
