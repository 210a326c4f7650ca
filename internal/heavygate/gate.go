// Package heavygate is a process-wide concurrency limiter for expensive
// "heavy" models, grounded on core/heavy_gate.py. A model is heavy if its
// name contains one of a known set of substrings; acquiring the gate for
// a non-heavy model is a no-op.
package heavygate

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// heavyHints mirrors HEAVY_HINTS from core/heavy_gate.py.
var heavyHints = []string{"32b", "70b", "72b", "mixtral-8x7b"}

// IsHeavy reports whether a model name matches a known heavy hint,
// case-insensitively.
func IsHeavy(model string) bool {
	m := strings.ToLower(model)
	for _, hint := range heavyHints {
		if strings.Contains(m, hint) {
			return true
		}
	}
	return false
}

// Gate is a scoped semaphore protecting concurrent use of heavy models.
type Gate struct {
	sem     *semaphore.Weighted
	cap     int64
	inUse   int64
	waiters int64
}

// New creates a Gate with the given capacity (default 1).
func New(capacity int64) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{sem: semaphore.NewWeighted(capacity), cap: capacity}
}

// Metrics is the current occupancy of the gate.
type Metrics struct {
	InUse   int64
	Waiters int64
}

func (g *Gate) Metrics() Metrics {
	return Metrics{InUse: atomic.LoadInt64(&g.inUse), Waiters: atomic.LoadInt64(&g.waiters)}
}

// Section acquires the gate if modelID is heavy and returns a release
// function that must be called on every exit path. For non-heavy models
// it returns a no-op release immediately. Release is always safe to call
// exactly once.
func (g *Gate) Section(ctx context.Context, modelID string) (release func(), err error) {
	if !IsHeavy(modelID) {
		return func() {}, nil
	}

	atomic.AddInt64(&g.waiters, 1)
	err = g.sem.Acquire(ctx, 1)
	atomic.AddInt64(&g.waiters, -1)
	if err != nil {
		return func() {}, err
	}

	atomic.AddInt64(&g.inUse, 1)
	var released int32
	release = func() {
		if atomic.CompareAndSwapInt32(&released, 0, 1) {
			atomic.AddInt64(&g.inUse, -1)
			g.sem.Release(1)
		}
	}
	return release, nil
}
