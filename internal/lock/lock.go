// Package lock provides the per-branch access lock described in §5: tools
// that only read (status, preview) take a shared lock, tools that mutate a
// branch's sync state (execute merge, execute import, reset) take an
// exclusive lock. Unlike the teacher's flock-based AccessLock (which
// coordinates separate OS processes sharing one Dolt data directory), this
// bridge runs as a single process per repository, so branch isolation is
// modeled with an in-process sync.RWMutex per branch rather than a file
// lock — the coordination problem is the same shape, just within one
// process instead of across several.
package lock

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry hands out per-branch locks, creating them lazily on first use.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*sync.RWMutex)}
}

func (r *Registry) branchLock(branch string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byName[branch]
	if !ok {
		l = &sync.RWMutex{}
		r.byName[branch] = l
	}
	return l
}

// Release, returned from RLock/Lock, unlocks the branch.
type Release func()

// RLock acquires a shared (reader) lock on branch, for status/preview tools.
func (r *Registry) RLock(ctx context.Context, branch string) Release {
	start := time.Now()
	l := r.branchLock(branch)
	l.RLock()
	recordWait(ctx, branch, false, start)
	return Release(l.RUnlock)
}

// Lock acquires an exclusive (writer) lock on branch, for tools that mutate
// sync state: ExecuteMerge, ExecuteImport, Reset.
func (r *Registry) Lock(ctx context.Context, branch string) Release {
	start := time.Now()
	l := r.branchLock(branch)
	l.Lock()
	recordWait(ctx, branch, true, start)
	return Release(l.Unlock)
}

var lockWaitMs metric.Float64Histogram

func init() {
	m := otel.Meter("github.com/steveyegge/syncbridge/internal/lock")
	lockWaitMs, _ = m.Float64Histogram("syncbridge.branch_lock.wait_ms",
		metric.WithDescription("Time spent waiting to acquire a per-branch lock"),
		metric.WithUnit("ms"),
	)
}

func recordWait(ctx context.Context, branch string, exclusive bool, start time.Time) {
	lockWaitMs.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("branch", branch),
		attribute.Bool("exclusive", exclusive),
	))
}
