package anf

import (
	"fmt"
	"math"
)

// SRClass is the spontaneous rate class of a fiber.
type SRClass int

const (
	HighSR SRClass = iota
	LowSR
)

// Classes lists every class in output order.
var Classes = []SRClass{HighSR, LowSR}

func (c SRClass) String() string {
	switch c {
	case HighSR:
		return "high"
	case LowSR:
		return "low"
	}
	return fmt.Sprintf("SRClass(%d)", int(c))
}

// ClassifyFiber assigns a fiber to a class by comparing its threshold with
// the class boundary. A fiber exactly at the boundary is low spontaneous
// rate.
func ClassifyFiber(thresholdDB, boundaryDB float64) SRClass {
	if thresholdDB < boundaryDB {
		return HighSR
	}
	return LowSR
}

// The rate stage is a placeholder for the three-store diffusion synapse of
// Westerman and Smith (1988) used by Verhulst et al. (2018). It is a
// sigmoidal rate-level function per class with two first order adaptation
// terms subtracted from the driven rate. Spontaneous and saturated rates
// are typical physiological values; the widths, adaptation time constants
// and strengths are hand-set, so onset to steady-state ratios and recovery
// after offset only roughly follow the published model.

// classShape is the rate-level function of one class.
type classShape struct {
	spont float64 // spikes/s
	sat   float64 // spikes/s
	width float64 // dB
}

var shapes = map[SRClass]classShape{
	HighSR: {spont: 60, sat: 250, width: 3},
	LowSR:  {spont: 0.5, sat: 200, width: 6},
}

// Adaptation time constants and strengths.
const (
	tauFast   = 2e-3
	tauSlow   = 60e-3
	gainFast  = 0.35
	gainSlow  = 0.15
	onsetBias = 2.1972245773362196 // ln 9: drive at threshold gives 10% of the range
)

// rateFunc turns a drive level series into an instantaneous firing rate
// for a fiber with the given threshold.
type rateFunc struct {
	shape     classShape
	threshold float64
	af, as    float64
}

func newRateFunc(class SRClass, thresholdDB, fs float64) *rateFunc {
	dt := 1 / fs
	return &rateFunc{
		shape:     shapes[class],
		threshold: thresholdDB,
		af:        1 - math.Exp(-dt/tauFast),
		as:        1 - math.Exp(-dt/tauSlow),
	}
}

// driven is the unadapted rate for drive level l.
func (f *rateFunc) driven(l float64) float64 {
	s := f.shape
	if math.IsInf(l, -1) {
		return s.spont
	}
	x := (l-f.threshold)/s.width - onsetBias
	return s.spont + (s.sat-s.spont)/(1+math.Exp(-x))
}

// apply writes the adapted rate for every sample of levels into out.
func (f *rateFunc) apply(levels, out []float64) {
	spont := f.shape.spont
	var fast, slow float64
	for i, l := range levels {
		excess := f.driven(l) - spont
		fast += f.af * (excess - fast)
		slow += f.as * (excess - slow)
		r := spont + excess - gainFast*fast - gainSlow*slow
		if r < 0 {
			r = 0
		}
		out[i] = r
	}
}
