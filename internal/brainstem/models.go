package brainstem

import (
	"fmt"
	"math"
	"strings"

	"github.com/linuxmatters/corti/internal/dsp"
	"github.com/linuxmatters/corti/internal/faults"
)

// Model selects the cochlear nucleus and inferior colliculus circuit.
type Model int

const (
	// NelsonCarney2004 is the same-frequency inhibition-excitation model:
	// a CN stage feeding one IC stage.
	NelsonCarney2004 Model = iota
	// Carney2015 feeds the CN stage into band-enhanced and band-suppressed
	// IC cells.
	Carney2015
)

func (m Model) String() string {
	switch m {
	case NelsonCarney2004:
		return "NELSON_CARNEY_2004"
	case Carney2015:
		return "CARNEY_2015"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel accepts the canonical names in any case, with dashes or
// underscores.
func ParseModel(s string) (Model, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch norm {
	case "", "NELSON_CARNEY_2004", "NC2004":
		return NelsonCarney2004, nil
	case "CARNEY_2015", "C2015":
		return Carney2015, nil
	}
	return 0, faults.InvalidParameters("unknown brainstem model %q", s)
}

// Wave scaling, volts per spike/s of pooled activity. These are round
// placeholder values giving ABR amplitudes of the right order for the
// default population; they are not the calibrated M1, M3 and M5 of
// Verhulst et al. (2018), so absolute wave amplitudes are not comparable
// with that model's output. Latencies and relative level dependence are
// set by the cell kernels, not by these scalars.
const (
	M1 = 1.0e-13
	M3 = 3.0e-13
	M5 = 6.0e-13
)

// The CN and IC cells use the Nelson and Carney (2004) parameters. The
// band-enhanced and band-suppressed cells of the Carney (2015) circuit are
// approximations of that paper's cells with hand-set time constants.

// sfie is one same-frequency inhibition-excitation cell: fast excitation
// minus delayed, slower inhibition, half-wave rectified.
type sfie struct {
	tauEx, tauInh float64 // s
	delay         float64 // s, inhibitory lag
	gain          float64
	inhibition    float64
}

var (
	cnCell  = sfie{tauEx: 0.5e-3, tauInh: 2e-3, delay: 1e-3, gain: 1.5, inhibition: 0.6}
	icCell  = sfie{tauEx: 0.5e-3, tauInh: 2e-3, delay: 2e-3, gain: 1.0, inhibition: 1.5}
	beCell  = sfie{tauEx: 0.7e-3, tauInh: 2.1e-3, delay: 1.4e-3, gain: 1.0, inhibition: 0.9}
	bsCell  = sfie{tauEx: 1.0e-3, tauInh: 2.0e-3, delay: 1.0e-3, gain: 1.2, inhibition: 1.0}
	bsShare = 0.5
)

// apply runs the cell with excitatory input ex and inhibitory input inh.
func (c sfie) apply(fs float64, ex, inh []float64) []float64 {
	e := dsp.NewAlpha(fs, c.tauEx).Filter(ex)
	i := dsp.NewAlpha(fs, c.tauInh).Filter(dsp.Delay(inh, int(math.Round(c.delay*fs))))
	out := make([]float64, len(e))
	for k := range out {
		if v := c.gain * (e[k] - c.inhibition*i[k]); v > 0 {
			out[k] = v
		}
	}
	return out
}

// circuit computes the CN and IC rate of one section from its pooled
// auditory nerve rate.
func (m Model) circuit(fs float64, an []float64) (cn, ic []float64) {
	cn = cnCell.apply(fs, an, an)
	switch m {
	case Carney2015:
		be := beCell.apply(fs, cn, cn)
		// Band-suppressed cells are excited by the CN and inhibited by
		// the band-enhanced population.
		bs := bsCell.apply(fs, cn, be)
		ic = make([]float64, len(cn))
		for k := range ic {
			ic[k] = (1-bsShare)*be[k] + bsShare*bs[k]
		}
	default:
		ic = icCell.apply(fs, cn, cn)
	}
	return cn, ic
}
