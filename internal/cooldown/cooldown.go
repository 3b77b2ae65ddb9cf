package cooldown

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum gap between two accepted recognitions of the
// same identity.
const DefaultWindow = 3 * time.Second

// Tracker remembers when each identity was last let through. It is
// process-local and safe for concurrent use.
type Tracker struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// New creates a tracker. A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window: window,
		last:   make(map[string]time.Time),
	}
}

func (t *Tracker) Window() time.Duration { return t.window }

// ShouldSuppress reports whether id was let through less than one window
// before now, and how long remains. When not suppressed, now becomes the
// new reference instant for id.
func (t *Tracker) ShouldSuppress(id string, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[id]; ok {
		if elapsed := now.Sub(prev); elapsed < t.window {
			return true, t.window - elapsed
		}
	}
	t.last[id] = now
	return false, 0
}

// Forget drops the entry for id so its next recognition is not throttled.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.last, id)
	t.mu.Unlock()
}

// Prune removes entries whose window has expired and returns how many were
// dropped.
func (t *Tracker) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, prev := range t.last {
		if now.Sub(prev) >= t.window {
			delete(t.last, id)
			n++
		}
	}
	return n
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
