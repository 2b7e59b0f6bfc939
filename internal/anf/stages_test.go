package anf

import (
	"math"
	"testing"
)

func TestReceptorOperatingPoint(t *testing.T) {
	// Small signal response is linear around rest.
	u := CiliaGain * ReferenceVelocity
	got := openProbability(u) - restingProbability
	if rel := math.Abs(got-referenceDrive) / referenceDrive; rel > 0.01 {
		t.Errorf("small signal response %g, want %g (rel err %g)", got, referenceDrive, rel)
	}
	if l := driveLevel(referenceDrive); math.Abs(l) > 1e-9 {
		t.Errorf("driveLevel(referenceDrive) = %g dB, want 0", l)
	}
	if l := driveLevel(0); !math.IsInf(l, -1) {
		t.Errorf("driveLevel(0) = %g, want -Inf", l)
	}

	// Open probability rises monotonically and saturates both ways.
	prev := openProbability(-1e-6)
	if prev > 1e-6 {
		t.Errorf("open probability at large negative deflection = %g, want ~0", prev)
	}
	for u := -1e-6; u <= 1e-6; u += 1e-9 {
		p := openProbability(u)
		if p < prev {
			t.Fatalf("open probability falls at u=%g: %g < %g", u, p, prev)
		}
		prev = p
	}
	if prev < 1-1e-6 {
		t.Errorf("open probability at large positive deflection = %g, want ~1", prev)
	}
}

func TestRateAdaptation(t *testing.T) {
	const fs = 100e3
	tests := []struct {
		name  string
		class SRClass
	}{
		{"high", HighSR},
		{"low", LowSR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := shapes[tt.class]
			f := newRateFunc(tt.class, 20, fs)

			silence := make([]float64, 1000)
			for i := range silence {
				silence[i] = math.Inf(-1)
			}
			out := make([]float64, len(silence))
			f.apply(silence, out)
			for i, r := range out {
				if r != s.spont {
					t.Fatalf("silent rate[%d] = %g, want %g", i, r, s.spont)
				}
			}

			// 300 ms step 40 dB above threshold.
			levels := make([]float64, int(0.3*fs))
			for i := range levels {
				levels[i] = 60
			}
			out = make([]float64, len(levels))
			f.apply(levels, out)
			for i, r := range out {
				if r < 0 || r > s.sat {
					t.Fatalf("rate[%d] = %g outside [0, %g]", i, r, s.sat)
				}
			}
			onset, steady := out[0], out[len(out)-1]
			if onset <= steady {
				t.Errorf("onset %g not above steady state %g", onset, steady)
			}
			if steady <= s.spont {
				t.Errorf("steady state %g not above spontaneous %g", steady, s.spont)
			}
		})
	}
}
