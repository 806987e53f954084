package pool

import "testing"

func TestPool_AcquireGrows(t *testing.T) {
	p := New[int](2)

	first, err := p.Acquire(1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if first != 0 {
		t.Fatalf("expected first index 0, got %d", first)
	}

	*p.At(first) = 7

	// force growth past the initial capacity of 2
	idx, err := p.Acquire(5)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected second acquire to start at 1, got %d", idx)
	}
	if got := *p.At(0); got != 7 {
		t.Fatalf("growth must preserve existing slots, got %d want 7", got)
	}
	if p.Capacity() < 6 {
		t.Fatalf("expected capacity to have doubled past 6, got %d", p.Capacity())
	}
}

func TestPool_Reset(t *testing.T) {
	p := New[int](4)

	idx, _ := p.Acquire(3)
	*p.At(idx) = 42

	p.Reset()

	if p.Used() != 0 {
		t.Fatalf("expected Used() == 0 after Reset, got %d", p.Used())
	}
	if p.Capacity() < 4 {
		t.Fatalf("Reset must not release capacity, got %d", p.Capacity())
	}
}

func TestPool_AcquireRejectsNonPositive(t *testing.T) {
	p := New[int](4)

	if _, err := p.Acquire(0); err == nil {
		t.Fatalf("expected error for Acquire(0)")
	}
	if _, err := p.Acquire(-1); err == nil {
		t.Fatalf("expected error for Acquire(-1)")
	}
}

func TestPool_CountLeaves(t *testing.T) {
	p := New[int](4)

	idx, _ := p.Acquire(4)
	*p.At(idx) = 1
	*p.At(idx + 1) = 0
	*p.At(idx + 2) = 1
	*p.At(idx + 3) = 0

	n := p.CountLeaves(func(v *int) bool { return *v == 1 })
	if n != 2 {
		t.Fatalf("expected 2 leaves, got %d", n)
	}
}
