package anf

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/linuxmatters/corti/internal/cochlea"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
)

const testRate = 10000.0

// syntheticBM drives section 0 with a 500 Hz velocity of the given
// amplitude and leaves the other sections still.
func syntheticBM(sections, samples int, amplitude float64) *cochlea.Output {
	out := &cochlea.Output{
		SampleRate:   testRate,
		CF:           make([]float64, sections),
		Velocity:     make([][]float64, sections),
		Displacement: make([][]float64, sections),
		Emission:     make([]float64, samples),
	}
	for s := 0; s < sections; s++ {
		out.CF[s] = 4000 / float64(s+1)
		out.Velocity[s] = make([]float64, samples)
		out.Displacement[s] = make([]float64, samples)
	}
	for i := range out.Velocity[0] {
		out.Velocity[0][i] = amplitude * math.Sin(2*math.Pi*500*float64(i)/testRate)
	}
	return out
}

func generate(t *testing.T, p params.ModelParameters, seed uint64, bm *cochlea.Output) *Output {
	t.Helper()
	g, err := New(p, seed)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	out, err := g.Generate(context.Background(), bm)
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	return out
}

func spikesIn(out *Output, section int, class SRClass) int {
	n := 0
	for _, tr := range out.Trains {
		if tr.Section == section && tr.Class == class {
			n += len(tr.SpikeTimes)
		}
	}
	return n
}

func mean(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

func TestClassifyFiber(t *testing.T) {
	tests := []struct {
		threshold, boundary float64
		want                SRClass
	}{
		{19.9, 20, HighSR},
		{-5, 20, HighSR},
		{20, 20, LowSR},
		{35, 20, LowSR},
		{0, 0, LowSR},
	}
	for _, tt := range tests {
		if got := ClassifyFiber(tt.threshold, tt.boundary); got != tt.want {
			t.Errorf("ClassifyFiber(%g, %g) = %v, want %v", tt.threshold, tt.boundary, got, tt.want)
		}
	}
}

func TestPopulation(t *testing.T) {
	t.Run("default split", func(t *testing.T) {
		f := params.Default().Fibers
		fibers := population(f)
		if len(fibers) != f.FibersPerSection {
			t.Fatalf("got %d fibers, want %d", len(fibers), f.FibersPerSection)
		}
		counts := map[SRClass]int{}
		for _, fb := range fibers {
			counts[fb.class]++
			if fb.class == HighSR && fb.threshold >= f.ThresholdDB {
				t.Errorf("high SR fiber %d threshold %g at or above boundary", fb.index, fb.threshold)
			}
			if fb.class == LowSR && fb.threshold < f.ThresholdDB {
				t.Errorf("low SR fiber %d threshold %g below boundary", fb.index, fb.threshold)
			}
		}
		if counts[HighSR] != 6 || counts[LowSR] != 4 {
			t.Errorf("class counts = %v, want 6 high and 4 low", counts)
		}
	})

	t.Run("all low sits on the boundary", func(t *testing.T) {
		f := params.FiberPopulation{HighSRFraction: 0, LowSRFraction: 1, ThresholdDB: 20, FibersPerSection: 4}
		fibers := population(f)
		if fibers[0].threshold != 20 {
			t.Errorf("first threshold = %g, want 20", fibers[0].threshold)
		}
		for _, fb := range fibers {
			if fb.class != LowSR {
				t.Errorf("fiber %d classified %v", fb.index, fb.class)
			}
		}
	})
}

func TestSilenceFiresAtSpontaneousRate(t *testing.T) {
	p := params.WithSections(3, testRate)
	out := generate(t, p, 7, syntheticBM(3, 10000, 0))

	for s := 0; s < 3; s++ {
		for _, c := range Classes {
			for i, r := range out.Rates[c][s] {
				if r != shapes[c].spont {
					t.Fatalf("%v rate in silent section %d sample %d = %g, want %g", c, s, i, r, shapes[c].spont)
				}
			}
		}
		// Six high SR fibers for one second at about 55 spikes/s.
		if n := spikesIn(out, s, HighSR); n < 200 || n > 500 {
			t.Errorf("section %d high SR spikes = %d", s, n)
		}
	}
}

func TestDrivenSectionFiresMore(t *testing.T) {
	p := params.WithSections(3, testRate)
	out := generate(t, p, 7, syntheticBM(3, 5000, 1e-4))

	if m := mean(out.Rates[HighSR][0]); m < 90 {
		t.Errorf("driven high SR mean rate = %g", m)
	}
	if m := mean(out.Rates[LowSR][0]); m < 10 {
		t.Errorf("driven low SR mean rate = %g", m)
	}
	if driven, quiet := spikesIn(out, 0, HighSR), spikesIn(out, 1, HighSR); driven <= quiet {
		t.Errorf("driven section spikes %d, silent section %d", driven, quiet)
	}
	if m := mean(out.Receptor[0]); m <= 0 {
		t.Errorf("mean receptor depolarisation = %g", m)
	}
}

func TestSpikeTrainInvariants(t *testing.T) {
	p := params.WithSections(3, testRate)
	out := generate(t, p, 11, syntheticBM(3, 5000, 1e-4))
	duration := float64(out.Samples) / out.SampleRate

	if len(out.Trains) != 3*p.Fibers.FibersPerSection {
		t.Fatalf("got %d trains", len(out.Trains))
	}
	seen := map[int]bool{}
	for k, tr := range out.Trains {
		if seen[tr.FiberID] {
			t.Errorf("duplicate fiber ID %d", tr.FiberID)
		}
		seen[tr.FiberID] = true
		if k > 0 && tr.Section < out.Trains[k-1].Section {
			t.Errorf("train %d out of section order", k)
		}
		if tr.Class != ClassifyFiber(tr.ThresholdDB, p.Fibers.ThresholdDB) {
			t.Errorf("fiber %d class %v disagrees with threshold %g", tr.FiberID, tr.Class, tr.ThresholdDB)
		}
		for i, st := range tr.SpikeTimes {
			if st < 0 || st >= duration {
				t.Errorf("fiber %d spike at %g outside [0, %g)", tr.FiberID, st, duration)
			}
			if i > 0 && st-tr.SpikeTimes[i-1] < AbsoluteRefractory-1e-9 {
				t.Errorf("fiber %d interval %g shorter than refractory period", tr.FiberID, st-tr.SpikeTimes[i-1])
			}
		}
	}
}

func TestSeedDeterminism(t *testing.T) {
	bm := syntheticBM(4, 3000, 1e-4)

	seq := params.WithSections(4, testRate)
	par := seq.Clone()
	par.Workers = 3

	a := generate(t, seq, 42, bm)
	b := generate(t, par, 42, bm)
	if !reflect.DeepEqual(a.Trains, b.Trains) {
		t.Error("spike trains depend on worker count")
	}
	if !reflect.DeepEqual(a.Rates, b.Rates) {
		t.Error("rates depend on worker count")
	}

	c := generate(t, seq, 43, bm)
	if reflect.DeepEqual(a.Trains, c.Trains) {
		t.Error("different seeds gave identical spike trains")
	}
}

func TestNeuropathy(t *testing.T) {
	tests := []struct {
		name     string
		setting  string
		wantHigh int
		wantLow  int
	}{
		{"none", "none", 6, 4},
		{"uniform severe", "severe", 3, 2},
		{"uniform moderate", "moderate", 4, 3},
		{"low SR severe", "ls-severe", 6, 2},
		{"low SR mild", "ls-mild", 6, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := params.ParseNeuropathy(tt.setting)
			if err != nil {
				t.Fatal(err)
			}
			p := params.WithSections(3, testRate)
			p.Neuropathy = n
			out := generate(t, p, 5, syntheticBM(3, 500, 1e-4))

			for s := 0; s < 3; s++ {
				counts := map[SRClass]int{}
				for _, tr := range out.Trains {
					if tr.Section == s {
						counts[tr.Class]++
					}
				}
				if counts[HighSR] != tt.wantHigh || counts[LowSR] != tt.wantLow {
					t.Errorf("section %d: %d high, %d low; want %d, %d",
						s, counts[HighSR], counts[LowSR], tt.wantHigh, tt.wantLow)
				}
			}
		})
	}
}

func TestNeuropathyIsSeeded(t *testing.T) {
	p := params.WithSections(1, testRate)
	p.Neuropathy = params.Neuropathy{Kind: params.UniformNeuropathy, Severity: 0.5}
	fibers := population(p.Fibers)

	a := survivors(fibers, p.Neuropathy, 9, 0)
	b := survivors(fibers, p.Neuropathy, 9, 0)
	if !reflect.DeepEqual(a, b) {
		t.Error("fiber removal is not reproducible")
	}
}

func TestGenerateRejectsUpstreamData(t *testing.T) {
	p := params.WithSections(3, testRate)
	g, err := New(p, 1)
	if err != nil {
		t.Fatal(err)
	}

	ragged := syntheticBM(3, 100, 1e-4)
	ragged.Velocity[2] = ragged.Velocity[2][:50]

	nonFinite := syntheticBM(3, 100, 1e-4)
	nonFinite.Velocity[1][10] = math.NaN()

	wrongRate := syntheticBM(3, 100, 1e-4)
	wrongRate.SampleRate = 20000

	tests := []struct {
		name string
		bm   *cochlea.Output
	}{
		{"nil", nil},
		{"too few sections", syntheticBM(2, 100, 1e-4)},
		{"empty", syntheticBM(3, 0, 0)},
		{"ragged", ragged},
		{"non-finite", nonFinite},
		{"sample rate", wrongRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Generate(context.Background(), tt.bm); !errors.Is(err, faults.ErrUpstreamData) {
				t.Errorf("Generate() error = %v, want ErrUpstreamData", err)
			}
		})
	}
}

func TestNewRejectsBadFractions(t *testing.T) {
	p := params.WithSections(3, testRate)
	p.Fibers.HighSRFraction = 0.7
	if _, err := New(p, 1); !errors.Is(err, faults.ErrInvalidParameters) {
		t.Errorf("New() error = %v, want ErrInvalidParameters", err)
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	p := params.WithSections(3, testRate)
	g, err := New(p, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Generate(ctx, syntheticBM(3, 100, 1e-4)); !errors.Is(err, faults.ErrAborted) {
		t.Errorf("Generate() error = %v, want ErrAborted", err)
	}
}
