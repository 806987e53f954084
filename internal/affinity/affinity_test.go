package affinity

import "testing"

func TestDisabledPinnerIsNoOp(t *testing.T) {
	p := New(Config{})

	if p.Enabled() {
		t.Fatal("Pinner with no cores reported Enabled")
	}

	core, err := p.Pin(0)
	if err != nil {
		t.Fatalf("Pin on disabled Pinner: %v", err)
	}

	if core != -1 {
		t.Fatalf("Pin on disabled Pinner returned core %d, want -1", core)
	}
}

func TestPinRoundRobinsAcrossCores(t *testing.T) {
	p := New(Config{Cores: []int{2, 4}})

	if !p.Enabled() {
		t.Fatal("Pinner with cores reported disabled")
	}

	got := make([]int, 4)

	for slot := 0; slot < 4; slot++ {
		core, err := p.Pin(slot)
		if err != nil {
			t.Fatalf("Pin(%d): %v", slot, err)
		}

		got[slot] = core
	}

	want := []int{2, 4, 2, 4}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d pinned to core %d, want %d", i, got[i], want[i])
		}
	}

	for slot, wantCore := range want {
		core, ok := p.CoreFor(slot)
		if !ok {
			t.Fatalf("CoreFor(%d) missing", slot)
		}

		if core != wantCore {
			t.Fatalf("CoreFor(%d) = %d, want %d", slot, core, wantCore)
		}
	}
}
