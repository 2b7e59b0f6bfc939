package anf

import (
	"math"

	"github.com/linuxmatters/corti/internal/dsp"
)

// Inner hair cell transduction constants. The receptor is a phenomenological
// approximation: a two-state Boltzmann transducer followed by a first order
// membrane low-pass. It is not the biophysical hair cell of Verhulst et al.
// (2018), which models basolateral K+ currents; the operating point and
// gains below are hand-set so 0 dB SPL sits near threshold, not fitted.
const (
	// CiliaGain converts basilar membrane velocity (m/s) to stereocilia
	// deflection (m).
	CiliaGain = 1e-4

	// ReferenceVelocity is the basilar membrane velocity at the
	// characteristic place for a 0 dB SPL tone. Drive levels are in dB
	// relative to the hair cell response it produces.
	ReferenceVelocity = 1e-7

	membraneCutoff = 1000.0 // Hz
)

// Two-state Boltzmann operating point, in metres.
var (
	boltzmannU0 = 10e-9
	boltzmannS0 = 12e-9
	boltzmannU1 = 30e-9
	boltzmannS1 = 24e-9
)

// openProbability is the transducer channel open probability for a
// stereocilia deflection u.
func openProbability(u float64) float64 {
	e0 := math.Exp(-(u - boltzmannU0) / boltzmannS0)
	e1 := math.Exp(-(u - boltzmannU1) / boltzmannS1)
	return 1 / (1 + e0*(1+e1))
}

// openSlope is dP/du at u.
func openSlope(u float64) float64 {
	e0 := math.Exp(-(u - boltzmannU0) / boltzmannS0)
	e1 := math.Exp(-(u - boltzmannU1) / boltzmannS1)
	p := 1 / (1 + e0*(1+e1))
	return p * p * (e0*(1+e1)/boltzmannS0 + e0*e1/boltzmannS1)
}

var (
	restingProbability = openProbability(0)

	// referenceDrive is the small signal hair cell response to
	// ReferenceVelocity.
	referenceDrive = openSlope(0) * CiliaGain * ReferenceVelocity
)

// receptor converts the velocity series of one section into the inner
// hair cell depolarisation: the change in open probability from rest,
// low-passed by the cell membrane.
func receptor(velocity []float64, fs float64) []float64 {
	fc := membraneCutoff
	if fc > 0.45*fs {
		fc = 0.45 * fs
	}
	out := make([]float64, len(velocity))
	for i, v := range velocity {
		out[i] = openProbability(v*CiliaGain) - restingProbability
	}
	dsp.NewChain(dsp.Lowpass(fs, fc, math.Sqrt2/2)).ProcessBlock(out)
	return out
}

// driveLevel returns the hair cell response in dB re referenceDrive.
// Hyperpolarising and zero responses map to -Inf.
func driveLevel(r float64) float64 {
	if r <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(r/referenceDrive)
}
