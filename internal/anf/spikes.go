package anf

import (
	"math"

	"github.com/linuxmatters/corti/internal/philox"
)

// Refractoriness, in seconds.
const (
	AbsoluteRefractory = 0.75e-3
	RelativeRefractory = 0.6e-3
)

// spikeTimes draws spikes from an inhomogeneous Poisson process with
// refractoriness by time rescaling: the recovery-weighted rate is
// integrated until it reaches a unit exponential target.
func spikeTimes(rate []float64, fs float64, rng *philox.Stream) []float64 {
	dt := 1 / fs
	var spikes []float64
	last := math.Inf(-1)
	acc := 0.0
	target := rng.ExpFloat64()
	for i, r := range rate {
		t := float64(i) * dt
		since := t - last
		if since <= AbsoluteRefractory {
			continue
		}
		recovery := 1 - math.Exp(-(since-AbsoluteRefractory)/RelativeRefractory)
		acc += r * recovery * dt
		if acc >= target {
			spikes = append(spikes, t)
			last = t
			acc = 0
			target = rng.ExpFloat64()
		}
	}
	return spikes
}
