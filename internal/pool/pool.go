// Package pool implements the gravity tree's node allocator: a growable,
// contiguous array of fixed-size node records with bump allocation and
// power-of-two reallocation.
//
// The pool hands out indices, never pointers: growth reallocates the
// backing array, so any raw pointer taken before a growth is no longer
// valid. Callers that need to touch a node after calling Acquire must
// re-resolve it through At.
package pool

import "github.com/gravtree/gravtree/internal/gtreeerr"

const defaultCapacity = 1024

// Pool is a bump-allocated, growable array of T.
type Pool[T any] struct {
	nodes []T
	used  int
}

// New creates a pool with room for at least initialCapacity elements.
// A non-positive initialCapacity falls back to a small default so a
// freshly constructed Pool is always usable.
func New[T any](initialCapacity int) *Pool[T] {
	if initialCapacity <= 0 {
		initialCapacity = defaultCapacity
	}

	return &Pool[T]{nodes: make([]T, initialCapacity)}
}

// Acquire reserves n contiguous slots and returns the index of the
// first one. Capacity doubles (possibly more than once) until the
// request fits; existing indices remain valid across growth, but any
// pointer obtained from At before this call must be re-resolved.
func (p *Pool[T]) Acquire(n int) (int, error) {
	if n <= 0 {
		return 0, gtreeerr.New(gtreeerr.CategoryAllocation, "POOL_BAD_COUNT",
			"acquire count must be positive", gtreeerr.Fields{"n": n})
	}

	first := p.used
	need := p.used + n

	cap := len(p.nodes)
	if need > cap {
		if cap == 0 {
			cap = defaultCapacity
		}

		for cap < need {
			cap *= 2
		}

		grown := make([]T, cap)
		copy(grown, p.nodes[:p.used])
		p.nodes = grown
	}

	p.used = need

	return first, nil
}

// At returns a pointer to the node at index i. The pointer is only
// valid until the next Acquire call that triggers growth.
func (p *Pool[T]) At(i int) *T {
	return &p.nodes[i]
}

// Reset marks the pool empty without releasing the backing array, so
// the next force evaluation reuses already-grown capacity.
func (p *Pool[T]) Reset() {
	var zero T

	for i := range p.nodes[:p.used] {
		p.nodes[i] = zero
	}

	p.used = 0
}

// Used returns the number of slots handed out since the last Reset.
func (p *Pool[T]) Used() int {
	return p.used
}

// Capacity returns the current backing array length.
func (p *Pool[T]) Capacity() int {
	return len(p.nodes)
}

// CountLeaves scans the pool and counts nodes for which isLeaf
// reports true. O(Used()).
func (p *Pool[T]) CountLeaves(isLeaf func(*T) bool) int {
	n := 0

	for i := range p.nodes[:p.used] {
		if isLeaf(&p.nodes[i]) {
			n++
		}
	}

	return n
}
