package scanning

import (
	"context"
	"sync"
	"time"

	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/metrics"
)

// admission gates entry of targets into the in-flight state. It enforces the
// concurrency ceiling with a fixed-capacity semaphore and tracks active
// attempts so the bound is observable from outside the executor.
type admission struct {
	capacity  int
	semaphore chan struct{}
	active    map[string]time.Time
	peak      int
	mutex     sync.Mutex
	closed    bool
}

// newAdmission creates an admission gate with the specified capacity.
func newAdmission(capacity int) *admission {
	if capacity <= 0 {
		capacity = 1
	}

	return &admission{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
		active:    make(map[string]time.Time),
	}
}

// Acquire blocks until an in-flight slot is available for the given target
// or the context is cancelled.
func (a *admission) Acquire(ctx context.Context, target string) error {
	a.mutex.Lock()
	if a.closed {
		a.mutex.Unlock()
		return qerrors.NewScanError(qerrors.CodeCanceled, "executor is shut down")
	}
	a.mutex.Unlock()

	select {
	case a.semaphore <- struct{}{}:
		a.mutex.Lock()
		a.active[target] = time.Now()
		if n := len(a.active); n > a.peak {
			a.peak = n
		}
		metrics.Gauge(metrics.MetricProbesInFlight, float64(len(a.active)), nil)
		a.mutex.Unlock()
		metrics.Counter(metrics.MetricProbesAdmitted, nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the in-flight slot for the given target after it reached a
// terminal state.
func (a *admission) Release(target string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, exists := a.active[target]; !exists {
		return
	}
	delete(a.active, target)
	metrics.Gauge(metrics.MetricProbesInFlight, float64(len(a.active)), nil)

	select {
	case <-a.semaphore:
	default:
		// Semaphore already empty; release without a matching acquire.
	}
}

// Active returns the current number of in-flight attempts.
func (a *admission) Active() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.active)
}

// Peak returns the highest number of simultaneously in-flight attempts
// observed so far.
func (a *admission) Peak() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.peak
}

// AvailableSlots returns the number of free in-flight slots.
func (a *admission) AvailableSlots() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.capacity - len(a.active)
}

// Close shuts the gate; subsequent Acquire calls fail.
func (a *admission) Close() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	a.active = make(map[string]time.Time)
}
