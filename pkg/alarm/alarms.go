package alarm

import (
	"sync"
	"time"
)

// Tracker keeps the currently active alarm code and when it first became
// active. Observations arrive from the ingestion pipeline; readers are the
// metrics exporter and the HTTP API.
type Tracker struct {
	code  int
	since time.Time
	sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records an alarm reading and returns true if the active code
// changed. Repeated readings of the same code keep the original activation
// time so callers can compute how long the alarm has been active.
func (t *Tracker) Observe(code int, at time.Time) bool {
	t.Lock()
	defer t.Unlock()
	if code == t.code {
		return false
	}
	t.code = code
	if code == 0 {
		t.since = time.Time{}
	} else {
		t.since = at
	}
	return true
}

// Current returns the active alarm code, its activation time and whether an
// alarm is active at all.
func (t *Tracker) Current() (int, time.Time, bool) {
	t.RLock()
	defer t.RUnlock()
	return t.code, t.since, t.code != 0
}

// Clear resets the tracker and returns true if an alarm was active.
func (t *Tracker) Clear() bool {
	t.Lock()
	defer t.Unlock()
	hadActive := t.code != 0
	t.code = 0
	t.since = time.Time{}
	return hadActive
}
