// Package affinity pins a rank's worker goroutines to specific CPU
// cores, so a tree build or walk phase keeps its Node Pool and
// particle columns resident in the same cache/NUMA domain across the
// lifetime of a run rather than migrating between cores as the Go
// scheduler sees fit.
package affinity

import (
	"runtime"
	"sync"

	"github.com/gravtree/gravtree/internal/gtreeerr"
)

// Config selects which cores a Pinner may hand out.
type Config struct {
	// Cores is the pool of OS logical CPU indices available for
	// pinning. Empty means affinity is disabled: Pin becomes a no-op.
	Cores []int
}

// Pinner hands out one core per call to Pin, round-robin over
// cfg.Cores, and pins the calling goroutine's underlying OS thread to
// it for the remainder of its lifetime.
type Pinner struct {
	cores []int

	mu   sync.Mutex
	next int

	assigned map[int]int // goroutine-local slot -> core, for CoreFor
}

// New builds a Pinner from cfg. A nil or empty Cores list is valid and
// disables pinning.
func New(cfg Config) *Pinner {
	cores := make([]int, len(cfg.Cores))
	copy(cores, cfg.Cores)

	return &Pinner{cores: cores, assigned: make(map[int]int)}
}

// Enabled reports whether this Pinner was configured with any cores.
func (p *Pinner) Enabled() bool { return len(p.cores) > 0 }

// Pin locks the calling goroutine to its own OS thread and sets that
// thread's CPU affinity to the next core in the round-robin, returning
// the core it chose. It must be called from the goroutine that is to
// be pinned (runtime.LockOSThread applies to the calling goroutine
// only) and should be one of the first things a worker goroutine does.
// Pin is a no-op that always returns (-1, nil) when the Pinner has no
// cores configured.
func (p *Pinner) Pin(slot int) (int, error) {
	if !p.Enabled() {
		return -1, nil
	}

	p.mu.Lock()
	core := p.cores[p.next%len(p.cores)]
	p.next++
	p.assigned[slot] = core
	p.mu.Unlock()

	runtime.LockOSThread()

	if err := setThreadAffinity(core); err != nil {
		return -1, gtreeerr.Configuration("pin slot %d to core %d: %v", slot, core, err)
	}

	return core, nil
}

// CoreFor reports the core last assigned to slot by Pin, or (-1,
// false) if Pin was never called for it.
func (p *Pinner) CoreFor(slot int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	core, ok := p.assigned[slot]

	return core, ok
}
