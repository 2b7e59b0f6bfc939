package anf

import (
	"math"

	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/philox"
)

// Threshold spreads either side of the class boundary, in dB.
const (
	highSpread = 20.0
	lowSpread  = 40.0
)

// Philox stream indices owned by this package.
const (
	spikeStream      = 2
	neuropathyStream = 3
)

// fiber is one auditory nerve fiber of a section.
type fiber struct {
	index     int // position within the section
	class     SRClass
	threshold float64
}

// population lays out the fibers of one section. The first
// round(N·HighSRFraction) fibers are spread below the boundary and the
// rest from the boundary upwards.
func population(f params.FiberPopulation) []fiber {
	n := f.FibersPerSection
	nHigh, nLow := Nominal(f, HighSR), Nominal(f, LowSR)

	fibers := make([]fiber, 0, n)
	for k := 0; k < nHigh; k++ {
		thr := f.ThresholdDB - highSpread + highSpread*float64(k)/float64(nHigh)
		fibers = append(fibers, fiber{index: k, threshold: thr})
	}
	for k := 0; k < nLow; k++ {
		thr := f.ThresholdDB + lowSpread*float64(k)/float64(nLow)
		fibers = append(fibers, fiber{index: nHigh + k, threshold: thr})
	}
	for i := range fibers {
		fibers[i].class = ClassifyFiber(fibers[i].threshold, f.ThresholdDB)
	}
	return fibers
}

// Nominal returns the number of fibers of class c in a section without
// neuropathy.
func Nominal(f params.FiberPopulation, c SRClass) int {
	n := f.FibersPerSection
	nHigh := min(int(math.Round(float64(n)*f.HighSRFraction)), n)
	if c == HighSR {
		return nHigh
	}
	return n - nHigh
}

// survivors removes the fibers lost to neuropathy in one section. The
// choice depends only on the seed and the section index.
func survivors(fibers []fiber, n params.Neuropathy, seed uint64, section int) []fiber {
	if n.Kind == params.NoNeuropathy || n.Severity == 0 {
		return fibers
	}
	rng := philox.New(seed, neuropathyStream).Sub(uint64(section))

	removed := make(map[int]bool)
	for _, class := range Classes {
		if n.Kind == params.LowSRNeuropathy && class != LowSR {
			continue
		}
		var members []int
		for _, f := range fibers {
			if f.class == class {
				members = append(members, f.index)
			}
		}
		drop := int(math.Round(n.Severity * float64(len(members))))
		for _, j := range rng.Perm(len(members))[:drop] {
			removed[members[j]] = true
		}
	}

	kept := make([]fiber, 0, len(fibers)-len(removed))
	for _, f := range fibers {
		if !removed[f.index] {
			kept = append(kept, f)
		}
	}
	return kept
}
