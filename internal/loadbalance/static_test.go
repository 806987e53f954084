package loadbalance

import "testing"

func TestNewStaticFindLeafMatchesKeyRange(t *testing.T) {
	dim := 2
	leaves := EvenLeaves(dim, 4)

	domainMin := [3]float64{0, 0, 0}
	domainMax := [3]float64{1, 1, 1}

	st := NewStatic(dim, domainMin, domainMax, leaves)

	if st.Dim() != dim {
		t.Fatalf("Dim() = %d, want %d", st.Dim(), dim)
	}

	if st.NumLeaves() != 4 {
		t.Fatalf("NumLeaves() = %d, want 4", st.NumLeaves())
	}

	for _, l := range leaves {
		mid := l.KeyLo + (l.KeyHi-l.KeyLo)/2

		got := st.FindLeaf(mid)
		if st.LeafOwner(got.ArrayIndex) != l.Rank {
			t.Fatalf("FindLeaf(%d) owner = %d, want %d", mid, st.LeafOwner(got.ArrayIndex), l.Rank)
		}
	}
}

func TestNewStaticRootSpansDomain(t *testing.T) {
	dim := 3
	leaves := EvenLeaves(dim, 8)

	domainMin := [3]float64{-2, -2, -2}
	domainMax := [3]float64{2, 2, 2}

	st := NewStatic(dim, domainMin, domainMax, leaves)

	root := st.Root()

	center := st.Center(root)
	for k := 0; k < dim; k++ {
		if center[k] != 0 {
			t.Fatalf("root center[%d] = %g, want 0", k, center[k])
		}
	}

	if st.Width(root) != 4 {
		t.Fatalf("root width = %g, want 4", st.Width(root))
	}

	if st.IsLeaf(root) {
		t.Fatal("root reported as leaf with 8 leaves under it")
	}
}

func TestNewStaticSingleLeafIsRoot(t *testing.T) {
	dim := 2
	leaves := EvenLeaves(dim, 1)

	st := NewStatic(dim, [3]float64{0, 0, 0}, [3]float64{1, 1, 1}, leaves)

	root := st.Root()
	if !st.IsLeaf(root) {
		t.Fatal("single-leaf tree's root is not a leaf")
	}

	if st.LeafOwner(st.LeafArrayIndex(root)) != 0 {
		t.Fatalf("owner = %d, want 0", st.LeafOwner(st.LeafArrayIndex(root)))
	}
}

func TestNewStaticChildrenPartitionParent(t *testing.T) {
	dim := 2
	leaves := EvenLeaves(dim, 4)

	domainMin := [3]float64{0, 0, 0}
	domainMax := [3]float64{8, 8, 8}

	st := NewStatic(dim, domainMin, domainMax, leaves)

	root := st.Root()
	start := st.ChildrenStart(root)

	if start == NotExist {
		t.Fatal("root has no children")
	}

	branch := 1 << dim

	seen := map[int]bool{}

	for c := 0; c < branch; c++ {
		child := int(start) + c

		if !st.IsLeaf(child) {
			t.Fatalf("child %d is not a leaf in a 4-leaf, branch-4 tree", c)
		}

		seen[st.LeafArrayIndex(child)] = true

		if st.Width(child) != 4 {
			t.Fatalf("child %d width = %g, want 4", c, st.Width(child))
		}
	}

	if len(seen) != branch {
		t.Fatalf("children cover %d distinct leaves, want %d", len(seen), branch)
	}
}

func TestZOrderToHilbertIsIdentity(t *testing.T) {
	dim := 3
	leaves := EvenLeaves(dim, 8)

	st := NewStatic(dim, [3]float64{0, 0, 0}, [3]float64{1, 1, 1}, leaves)

	zh := st.ZOrderToHilbert(st.Root())

	for i := 0; i < 1<<dim; i++ {
		if zh[i] != i {
			t.Fatalf("ZOrderToHilbert()[%d] = %d, want %d (identity)", i, zh[i], i)
		}
	}
}

func TestValidLeafCount(t *testing.T) {
	cases := []struct {
		dim, p int
		want   bool
	}{
		{2, 1, true},
		{2, 4, true},
		{2, 16, true},
		{2, 3, false},
		{2, 8, false},
		{3, 1, true},
		{3, 8, true},
		{3, 64, true},
		{3, 4, false},
		{3, 0, false},
	}

	for _, c := range cases {
		if got := ValidLeafCount(c.dim, c.p); got != c.want {
			t.Errorf("ValidLeafCount(%d, %d) = %v, want %v", c.dim, c.p, got, c.want)
		}
	}
}
