package shape

import "testing"

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Float64, 8},
		{Int32, 4},
		{Int64, 8},
		{Uint8, 1},
		{Bool, 1},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.size)
		}
	}
}

func TestDataTypeString(t *testing.T) {
	tests := []struct {
		dtype DataType
		str   string
	}{
		{Float32, "float32"},
		{Float64, "float64"},
		{Int32, "int32"},
		{Int64, "int64"},
		{Uint8, "uint8"},
		{Bool, "bool"},
	}

	for _, tt := range tests {
		if got := tt.dtype.String(); got != tt.str {
			t.Errorf("%s.String() = %q, want %q", tt.dtype, got, tt.str)
		}
	}
}

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3}, 6},
		{Shape{2, 3, 4}, 24},
		{Shape{0}, 0},
		{Shape{2, 0, 4}, 0},
	}

	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 3}).Validate(); err != nil {
		t.Errorf("Validate(%v) = %v, want nil", Shape{2, 3}, err)
	}
	if err := (Shape{0}).Validate(); err != nil {
		t.Errorf("Validate(%v) = %v, want nil (zero dims are legal)", Shape{0}, err)
	}
	if err := (Shape{2, -1}).Validate(); err == nil {
		t.Errorf("Validate(%v) = nil, want error", Shape{2, -1})
	}
}

func TestShapeEqual(t *testing.T) {
	if !(Shape{2, 3}).Equal(Shape{2, 3}) {
		t.Error("equal shapes reported unequal")
	}
	if (Shape{2, 3}).Equal(Shape{3, 2}) {
		t.Error("transposed shapes reported equal")
	}
	if (Shape{2, 3}).Equal(Shape{2, 3, 1}) {
		t.Error("shapes of different rank reported equal")
	}
}

func TestIndexString(t *testing.T) {
	tests := []struct {
		index Index
		want  string
	}{
		{Index{}, "{}"},
		{Index{0}, "{0}"},
		{Index{0, 1}, "{0,1}"},
		{Index{2, 0, 1}, "{2,0,1}"},
	}

	for _, tt := range tests {
		if got := tt.index.String(); got != tt.want {
			t.Errorf("Index%v.String() = %q, want %q", []int(tt.index), got, tt.want)
		}
	}
}

func TestIndexChild(t *testing.T) {
	root := Index{}
	first := root.Child(0)
	second := first.Child(3)
	if got := second.String(); got != "{0,3}" {
		t.Errorf("Child chain = %q, want {0,3}", got)
	}
	// Child must not share backing storage with the parent.
	third := first.Child(7)
	if got := second.String(); got != "{0,3}" {
		t.Errorf("sibling Child corrupted %q", got)
	}
	if got := third.String(); got != "{0,7}" {
		t.Errorf("Child = %q, want {0,7}", got)
	}
}

func TestPhysicalLeafByteSize(t *testing.T) {
	p := NewLeaf(Float32, Shape{1024})
	if got := p.ByteSize(); got != 4096 {
		t.Errorf("ByteSize() = %d, want 4096", got)
	}
	if p.IsTuple() {
		t.Error("leaf reported as tuple")
	}
}

func TestPhysicalTupleByteSize(t *testing.T) {
	p := NewTuple(NewLeaf(Float32, Shape{2}), NewLeaf(Int64, Shape{3}))
	// Tuple node footprint is the index table, one address per member.
	if got := p.ByteSize(); got != 2*IndexTableEntrySize {
		t.Errorf("ByteSize() = %d, want %d", got, 2*IndexTableEntrySize)
	}
	if !p.IsTuple() {
		t.Error("tuple reported as leaf")
	}
}

func TestPhysicalLeavesOrder(t *testing.T) {
	p := NewTuple(
		NewLeaf(Float32, Shape{2}),
		NewTuple(NewLeaf(Int32, Shape{1}), NewLeaf(Int32, Shape{4})),
		NewLeaf(Uint8, Shape{8}),
	)
	leaves := p.Leaves()
	want := []string{"{0}", "{1,0}", "{1,1}", "{2}"}
	if len(leaves) != len(want) {
		t.Fatalf("Leaves() returned %d indices, want %d", len(leaves), len(want))
	}
	for i, w := range want {
		if got := leaves[i].String(); got != w {
			t.Errorf("Leaves()[%d] = %s, want %s", i, got, w)
		}
	}
}

func TestPhysicalNode(t *testing.T) {
	inner := NewLeaf(Int32, Shape{4})
	p := NewTuple(NewLeaf(Float32, Shape{2}), NewTuple(inner))

	node, err := p.Node(Index{1, 0})
	if err != nil {
		t.Fatalf("Node({1,0}) error: %v", err)
	}
	if node != inner {
		t.Error("Node({1,0}) did not resolve to the inner leaf")
	}
	if _, err := p.Node(Index{0, 0}); err == nil {
		t.Error("Node into a leaf should fail")
	}
	if _, err := p.Node(Index{5}); err == nil {
		t.Error("Node out of range should fail")
	}
}

func TestPhysicalEqual(t *testing.T) {
	a := NewTuple(NewLeaf(Float32, Shape{2}), NewLeaf(Int64, Shape{3}))
	b := NewTuple(NewLeaf(Float32, Shape{2}), NewLeaf(Int64, Shape{3}))
	c := NewTuple(NewLeaf(Float32, Shape{2}), NewLeaf(Int64, Shape{4}))
	if !a.Equal(b) {
		t.Error("identical tuples reported unequal")
	}
	if a.Equal(c) {
		t.Error("different tuples reported equal")
	}
	if a.Equal(NewLeaf(Float32, Shape{2})) {
		t.Error("tuple equal to leaf")
	}
}

func TestPhysicalString(t *testing.T) {
	p := NewTuple(NewLeaf(Float32, Shape{2, 3}), NewLeaf(Int32, Shape{4}))
	if got := p.String(); got != "(float32[2,3],int32[4])" {
		t.Errorf("String() = %q", got)
	}
}

func TestDefaultRepresentation(t *testing.T) {
	p, err := DefaultRepresentation(Shape{2, 3}, Float32, false)
	if err != nil {
		t.Fatalf("DefaultRepresentation error: %v", err)
	}
	if p.IsTuple() {
		t.Error("default representation should be a dense leaf")
	}
	if got := p.ByteSize(); got != 24 {
		t.Errorf("ByteSize() = %d, want 24", got)
	}
	if _, err := DefaultRepresentation(Shape{-1}, Float32, false); err == nil {
		t.Error("negative dimension should fail")
	}
}
