// Package stimulus builds calibrated acoustic stimuli, in pascals, either
// synthesised from a template or loaded from a WAV recording.
package stimulus

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linuxmatters/corti/internal/dsp"
	"github.com/linuxmatters/corti/internal/faults"
)

// P0 is the reference pressure for dB SPL, in pascals.
const P0 = 2e-5

// SourceKind records where a waveform came from.
type SourceKind int

const (
	Synthesized SourceKind = iota
	FromRecording
)

func (s SourceKind) String() string {
	if s == FromRecording {
		return "recording"
	}
	return "synthesized"
}

// Kind names a stimulus waveform family.
type Kind string

const (
	Click  Kind = "click"
	Tone   Kind = "tone"
	AM     Kind = "am"
	Chirp  Kind = "chirp"
	Custom Kind = "custom"
)

// Stimulus is one calibrated waveform. Samples are in pascals at
// SampleRate and are never modified once the Stimulus is built.
type Stimulus struct {
	Name       string
	Kind       Kind
	Source     SourceKind
	SampleRate float64
	LevelsDB   []float64 // LevelsDB[0] is the level Samples is calibrated to
	Samples    []float64
}

// Level returns the calibration level in dB SPL.
func (s Stimulus) Level() float64 {
	if len(s.LevelsDB) == 0 {
		return math.NaN()
	}
	return s.LevelsDB[0]
}

// Duration returns the waveform length in seconds.
func (s Stimulus) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / s.SampleRate
}

// Validate checks that the stimulus can drive a simulation.
func (s Stimulus) Validate() error {
	if len(s.Samples) == 0 {
		return faults.InvalidParameters("stimulus %q has no samples", s.Name)
	}
	if !(s.SampleRate > 0) {
		return faults.InvalidParameters("stimulus %q sample rate %g", s.Name, s.SampleRate)
	}
	for i, v := range s.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return faults.InvalidParameters("stimulus %q sample %d is not finite", s.Name, i)
		}
	}
	return nil
}

// Set holds one stimulus per requested level, in request order.
type Set []Stimulus

// Levels returns the calibration level of each member.
func (s Set) Levels() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Level()
	}
	return out
}

// ParseLevels parses a comma separated list of levels in dB SPL. Empty
// tokens are skipped, so "60,,80" yields [60 80].
func ParseLevels(s string) ([]float64, error) {
	var levels []float64
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, faults.InvalidLevel(tok)
		}
		levels = append(levels, v)
	}
	return levels, nil
}

// SPLToPascal converts a level in dB SPL to a pressure amplitude.
func SPLToPascal(db float64) float64 {
	return P0 * math.Pow(10, db/20)
}

// ToPascals rescales waveform to the given level. Clicks are normalised by
// their peak, everything else by RMS.
func ToPascals(waveform []float64, level float64, kind Kind) ([]float64, error) {
	var norm float64
	if kind == Click {
		norm = dsp.Peak(waveform)
	} else {
		norm = dsp.RMS(waveform)
	}
	if norm == 0 || math.IsNaN(norm) {
		return nil, faults.InvalidParameters("%s waveform is silent and cannot be calibrated", kind)
	}
	scale := SPLToPascal(level) / norm
	out := make([]float64, len(waveform))
	for i, v := range waveform {
		out[i] = v * scale
	}
	return out, nil
}

// calibrate expands a normalised waveform into a Set, one member per level.
func calibrate(name string, kind Kind, src SourceKind, fs float64, waveform []float64, levels []float64) (Set, error) {
	if len(levels) == 0 {
		return nil, faults.InvalidParameters("no stimulus levels given")
	}
	set := make(Set, 0, len(levels))
	for _, level := range levels {
		samples, err := ToPascals(waveform, level, kind)
		if err != nil {
			return nil, err
		}
		set = append(set, Stimulus{
			Name:       fmt.Sprintf("%s-%gdB", name, level),
			Kind:       kind,
			Source:     src,
			SampleRate: fs,
			LevelsDB:   []float64{level},
			Samples:    samples,
		})
	}
	return set, nil
}
