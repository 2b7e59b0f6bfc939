package stimulus

import (
	"math"

	"github.com/linuxmatters/corti/internal/faults"
)

// Template describes a synthesised stimulus. Times are in seconds.
type Template struct {
	Kind                Kind      `yaml:"type"`
	Levels              []float64 `yaml:"levels"`
	PreStim             float64   `yaml:"prestim_time"`
	Stim                float64   `yaml:"stim_time"`
	PostStim            float64   `yaml:"poststim_time"`
	Frequency           float64   `yaml:"frequency,omitempty"`
	EndFrequency        float64   `yaml:"end_frequency,omitempty"`
	ModulationFrequency float64   `yaml:"modulation_frequency,omitempty"`
	ModulationDepth     float64   `yaml:"modulation_depth,omitempty"`
	Ramp                float64   `yaml:"ramp_time,omitempty"`
}

// DefaultTemplate is an 80 dB SPL click.
func DefaultTemplate() Template {
	return Template{
		Kind:     Click,
		Levels:   []float64{80},
		PreStim:  0.01,
		Stim:     100e-6,
		PostStim: 0.04,
	}
}

// ToneTemplate is a pure tone with 5 ms raised-cosine ramps.
func ToneTemplate(freq, duration float64, levels ...float64) Template {
	return Template{
		Kind:      Tone,
		Levels:    levels,
		Stim:      duration,
		Frequency: freq,
		Ramp:      5e-3,
	}
}

func secondsToSamples(fs, t float64) int {
	return int(math.Round(fs * t))
}

// Validate reports template values no waveform can be built from.
func (t Template) Validate() error {
	if t.PreStim < 0 || t.Stim <= 0 || t.PostStim < 0 {
		return faults.InvalidParameters("stimulus timing pre=%g stim=%g post=%g", t.PreStim, t.Stim, t.PostStim)
	}
	switch t.Kind {
	case Click:
	case Tone:
		if t.Frequency <= 0 {
			return faults.InvalidParameters("tone frequency %g", t.Frequency)
		}
	case AM:
		if t.Frequency <= 0 || t.ModulationFrequency <= 0 {
			return faults.InvalidParameters("am carrier %g modulator %g", t.Frequency, t.ModulationFrequency)
		}
		if t.ModulationDepth < 0 || t.ModulationDepth > 1 {
			return faults.InvalidParameters("am modulation depth %g outside [0, 1]", t.ModulationDepth)
		}
	case Chirp:
		if t.Frequency <= 0 || t.EndFrequency <= 0 {
			return faults.InvalidParameters("chirp range %g to %g Hz", t.Frequency, t.EndFrequency)
		}
	default:
		return faults.InvalidParameters("unknown stimulus type %q", t.Kind)
	}
	if len(t.Levels) == 0 {
		return faults.InvalidParameters("stimulus template has no levels")
	}
	return nil
}

// Synthesize builds one calibrated stimulus per template level.
func Synthesize(t Template, fs float64) (Set, error) {
	if !(fs > 0) {
		return nil, faults.InvalidParameters("sample rate %g", fs)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, f := range []float64{t.Frequency, t.EndFrequency} {
		if f >= fs/2 {
			return nil, faults.InvalidParameters("frequency %g Hz at or above Nyquist for %g Hz", f, fs)
		}
	}

	pre := secondsToSamples(fs, t.PreStim)
	n := secondsToSamples(fs, t.Stim)
	post := secondsToSamples(fs, t.PostStim)
	if n < 1 {
		n = 1
	}

	body := make([]float64, n)
	switch t.Kind {
	case Click:
		for i := range body {
			body[i] = 1
		}
	case Tone:
		for i := range body {
			body[i] = math.Sin(2 * math.Pi * t.Frequency * float64(i) / fs)
		}
	case AM:
		for i := range body {
			tm := float64(i) / fs
			env := 1 + t.ModulationDepth*math.Sin(2*math.Pi*t.ModulationFrequency*tm)
			body[i] = env * math.Sin(2*math.Pi*t.Frequency*tm)
		}
	case Chirp:
		// Logarithmic sweep, instantaneous frequency f0·(f1/f0)^(t/T).
		f0, f1 := t.Frequency, t.EndFrequency
		T := float64(n) / fs
		k := math.Log(f1 / f0)
		for i := range body {
			tm := float64(i) / fs
			var phase float64
			if k == 0 {
				phase = 2 * math.Pi * f0 * tm
			} else {
				phase = 2 * math.Pi * f0 * T / k * (math.Exp(k*tm/T) - 1)
			}
			body[i] = math.Sin(phase)
		}
	}
	if t.Kind != Click {
		applyRamps(body, secondsToSamples(fs, t.Ramp))
	}

	// Calibrate on the stimulus body so silence does not dilute the RMS.
	set, err := calibrate(string(t.Kind), t.Kind, Synthesized, fs, body, t.Levels)
	if err != nil {
		return nil, err
	}
	for i := range set {
		full := make([]float64, pre+n+post)
		copy(full[pre:], set[i].Samples)
		set[i].Samples = full
	}
	return set, nil
}

// applyRamps fades the first and last n samples with raised-cosine ramps.
func applyRamps(x []float64, n int) {
	if n > len(x)/2 {
		n = len(x) / 2
	}
	for i := 0; i < n; i++ {
		g := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(n)))
		x[i] *= g
		x[len(x)-1-i] *= g
	}
}
