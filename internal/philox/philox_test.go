package philox

import (
	"math"
	"testing"
)

func TestStreamDeterministic(t *testing.T) {
	a := New(42, 7)
	b := New(42, 7)
	for i := 0; i < 1000; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestStreamsDiffer(t *testing.T) {
	tests := []struct {
		name string
		a, b *Stream
	}{
		{"seed", New(1, 0), New(2, 0)},
		{"stream", New(1, 0), New(1, 1)},
		{"sub", New(1, 0).Sub(3), New(1, 0).Sub(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			same := 0
			for i := 0; i < 100; i++ {
				if tt.a.Uint64() == tt.b.Uint64() {
					same++
				}
			}
			if same > 0 {
				t.Errorf("%d of 100 draws identical", same)
			}
		})
	}
}

func TestFloat64Range(t *testing.T) {
	s := New(9, 9)
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		v := s.Float64()
		if v <= 0 || v >= 1 {
			t.Fatalf("Float64() = %v outside (0, 1)", v)
		}
		sum += v
	}
	if mean := sum / n; math.Abs(mean-0.5) > 0.02 {
		t.Errorf("mean = %v, want about 0.5", mean)
	}
}

func TestExpMean(t *testing.T) {
	s := New(3, 0)
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		sum += s.ExpFloat64()
	}
	if mean := sum / n; math.Abs(mean-1) > 0.05 {
		t.Errorf("mean = %v, want about 1", mean)
	}
}

func TestSubStreamsShareKeyNotLane(t *testing.T) {
	base := New(3, 2)
	a, b := base.Sub(6948), base.Sub(9322)
	if a.key != b.key {
		t.Fatalf("keys differ: %#x vs %#x", a.key, b.key)
	}
	if a.counter.Y == b.counter.Y {
		t.Fatalf("lanes collide at %d", a.counter.Y)
	}
	if a.Uint64() == b.Uint64() {
		t.Error("first draws identical")
	}
}

func TestSubStreamsAreDistinct(t *testing.T) {
	const fibers = 10000
	for seed := uint64(0); seed < 50; seed++ {
		base := New(seed, 2)
		first := make(map[uint64]uint64, fibers)
		for id := uint64(0); id < fibers; id++ {
			v := base.Sub(id).Uint64()
			if other, ok := first[v]; ok {
				t.Fatalf("seed %d: fibers %d and %d share a first draw", seed, other, id)
			}
			first[v] = id
		}
	}
}

func TestSubDiffersFromParent(t *testing.T) {
	parent := New(1, 1)
	child := New(1, 1).Sub(0)
	if parent.Uint64() == child.Uint64() {
		t.Error("child 0 repeats its parent")
	}
	nested := New(1, 1).Sub(4).Sub(4)
	if New(1, 1).Sub(4).Uint64() == nested.Uint64() {
		t.Error("nested sub-stream repeats its parent")
	}
}

func TestSubRejectsHugeIndex(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	New(1, 1).Sub(math.MaxUint32)
}

func TestPerm(t *testing.T) {
	p := New(5, 5).Perm(50)
	seen := make([]bool, 50)
	for _, v := range p {
		if seen[v] {
			t.Fatalf("value %d repeated", v)
		}
		seen[v] = true
	}
}
