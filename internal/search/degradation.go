package search

import (
	"sync"
	"time"
)

// degradationTracker records semantic-index failures so Search can decide to
// fall back to keyword-only silently while still making the condition
// observable to the monitoring layer. One vector-index backend runs at a
// time, so a single in-process counter is enough; there is no remote/local
// store pair to arbitrate between.
type degradationTracker struct {
	mu            sync.Mutex
	semanticFails int64
	lastFailure   time.Time
	lastError     string
}

func newDegradationTracker() *degradationTracker {
	return &degradationTracker{}
}

func (d *degradationTracker) recordSemanticFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.semanticFails++
	d.lastFailure = now()
	if err != nil {
		d.lastError = err.Error()
	}
}

// Status is a snapshot of the tracker's state, exposed to internal/monitor.
type Status struct {
	SemanticFailures int64
	LastFailure      time.Time
	LastError        string
}

func (d *degradationTracker) status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		SemanticFailures: d.semanticFails,
		LastFailure:      d.lastFailure,
		LastError:        d.lastError,
	}
}

// now is a seam for testing.
var now = time.Now
