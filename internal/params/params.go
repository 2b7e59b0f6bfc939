// Package params holds the immutable model parameters shared by every
// simulation stage, together with their defaults and validation.
package params

import (
	"fmt"
	"math"
	"strings"

	"github.com/linuxmatters/corti/internal/faults"
)

// Default model constants.
const (
	DefaultSectionCount     = 1000
	DefaultSampleRate       = 100e3 // Hz
	DefaultThresholdDB      = 20.0  // dB re 20 µPa
	DefaultHighSRFraction   = 0.6
	DefaultLowSRFraction    = 0.4
	DefaultFibersPerSection = 10
	DefaultCompressionSlope = 0.4
	DefaultIrregularityPct  = 0.05

	// Default pole range, base to apex.
	DefaultBasalPole  = 0.061
	DefaultApicalPole = 0.120

	// FractionTolerance bounds how far the fiber fractions may drift from 1.
	FractionTolerance = 1e-9
)

// Nonlinearity selects the quantity driving the instantaneous pole update.
type Nonlinearity int

const (
	// VelocityNonlinearity compresses on basilar membrane velocity.
	VelocityNonlinearity Nonlinearity = iota
	// DisplacementNonlinearity compresses on basilar membrane displacement.
	DisplacementNonlinearity
	// Linear keeps every pole at its starting position.
	Linear
)

func (n Nonlinearity) String() string {
	switch n {
	case VelocityNonlinearity:
		return "vel"
	case DisplacementNonlinearity:
		return "disp"
	case Linear:
		return "none"
	default:
		return fmt.Sprintf("Nonlinearity(%d)", int(n))
	}
}

// ParseNonlinearity accepts "vel", "disp" or "none".
func ParseNonlinearity(s string) (Nonlinearity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vel", "velocity", "":
		return VelocityNonlinearity, nil
	case "disp", "displacement":
		return DisplacementNonlinearity, nil
	case "none", "linear":
		return Linear, nil
	}
	return 0, faults.InvalidParameters("unknown nonlinearity %q", s)
}

// FiberPopulation describes the auditory nerve fibers innervating each
// cochlear section.
type FiberPopulation struct {
	HighSRFraction   float64 // share of fibers more sensitive than ThresholdDB
	LowSRFraction    float64 // share of fibers at or above ThresholdDB
	ThresholdDB      float64 // class boundary, dB re 20 µPa
	FibersPerSection int
}

// NeuropathyKind selects which fibers a synaptopathy removes.
type NeuropathyKind int

const (
	NoNeuropathy NeuropathyKind = iota
	// UniformNeuropathy removes fibers of every class.
	UniformNeuropathy
	// LowSRNeuropathy removes low spontaneous rate fibers only.
	LowSRNeuropathy
)

// Neuropathy is a simulated loss of auditory nerve fibers.
type Neuropathy struct {
	Kind     NeuropathyKind
	Severity float64 // fraction of the affected fibers removed, 0..1
}

// Severity presets.
var neuropathyPresets = map[string]float64{
	"mild":     0.10,
	"moderate": 0.25,
	"severe":   0.50,
}

// ParseNeuropathy accepts "none", "mild", "moderate", "severe" and the
// low spontaneous rate variants prefixed with "ls-".
func ParseNeuropathy(s string) (Neuropathy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return Neuropathy{}, nil
	}
	kind := UniformNeuropathy
	if rest, ok := strings.CutPrefix(s, "ls-"); ok {
		kind = LowSRNeuropathy
		s = rest
	}
	sev, ok := neuropathyPresets[s]
	if !ok {
		return Neuropathy{}, faults.InvalidParameters("unknown neuropathy %q", s)
	}
	return Neuropathy{Kind: kind, Severity: sev}, nil
}

func (n Neuropathy) String() string {
	if n.Kind == NoNeuropathy {
		return "none"
	}
	name := fmt.Sprintf("%.0f%%", n.Severity*100)
	for k, v := range neuropathyPresets {
		if v == n.Severity {
			name = k
		}
	}
	if n.Kind == LowSRNeuropathy {
		return "ls-" + name
	}
	return name
}

// ModelParameters configures a complete simulation run. Values are treated
// as immutable once a run starts; stages copy any slice they retain.
type ModelParameters struct {
	PolePositions   []float64 // starting pole per section, base to apex
	SectionCount    int
	SampleRate      float64 // Hz
	IntegrationStep float64 // seconds

	Fibers FiberPopulation

	Nonlinearity        Nonlinearity
	CompressionSlope    float64 // dB/dB, one of 0.2, 0.3, 0.4, 0.5
	Irregularities      bool    // random pole roughness along the partition
	IrregularityPercent float64
	Subject             uint64 // seeds the roughness pattern

	Neuropathy  Neuropathy
	CFWeighting bool // weight brainstem input by characteristic frequency

	// Workers bounds stage parallelism. Values below 2 run sequentially.
	Workers int
}

// Default returns the standard parameter set: 1000 sections at 100 kHz.
func Default() ModelParameters {
	return WithSections(DefaultSectionCount, DefaultSampleRate)
}

// WithSections returns defaults resized to the given section count and
// sample rate, with one integration step per sample.
func WithSections(sections int, sampleRate float64) ModelParameters {
	p := ModelParameters{
		PolePositions:   DefaultPoles(sections),
		SectionCount:    sections,
		SampleRate:      sampleRate,
		IntegrationStep: 0,
		Fibers: FiberPopulation{
			HighSRFraction:   DefaultHighSRFraction,
			LowSRFraction:    DefaultLowSRFraction,
			ThresholdDB:      DefaultThresholdDB,
			FibersPerSection: DefaultFibersPerSection,
		},
		Nonlinearity:        VelocityNonlinearity,
		CompressionSlope:    DefaultCompressionSlope,
		Irregularities:      true,
		IrregularityPercent: DefaultIrregularityPct,
		Subject:             1,
		CFWeighting:         true,
		Workers:             1,
	}
	if sampleRate > 0 {
		p.IntegrationStep = 1 / sampleRate
	}
	return p
}

// DefaultPoles returns a strictly increasing pole ramp from the base to the
// apex of the partition.
func DefaultPoles(sections int) []float64 {
	if sections <= 0 {
		return nil
	}
	poles := make([]float64, sections)
	if sections == 1 {
		poles[0] = DefaultBasalPole
		return poles
	}
	step := (DefaultApicalPole - DefaultBasalPole) / float64(sections-1)
	for i := range poles {
		poles[i] = DefaultBasalPole + float64(i)*step
	}
	return poles
}

// Clone returns a deep copy.
func (p ModelParameters) Clone() ModelParameters {
	c := p
	if p.PolePositions != nil {
		c.PolePositions = append([]float64(nil), p.PolePositions...)
	}
	return c
}

// SubSteps is the number of integration steps per stimulus sample.
func (p ModelParameters) SubSteps() int {
	if p.IntegrationStep <= 0 || p.SampleRate <= 0 {
		return 1
	}
	n := int(math.Ceil((1/p.SampleRate)/p.IntegrationStep - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// Validate reports the first violated invariant as ErrInvalidParameters.
func (p ModelParameters) Validate() error {
	if p.SectionCount <= 0 {
		return faults.InvalidParameters("section count must be positive, got %d", p.SectionCount)
	}
	if !(p.SampleRate > 0) || math.IsInf(p.SampleRate, 0) {
		return faults.InvalidParameters("sample rate must be positive, got %g", p.SampleRate)
	}
	if !(p.IntegrationStep > 0) || math.IsInf(p.IntegrationStep, 0) {
		return faults.InvalidParameters("integration step must be positive, got %g", p.IntegrationStep)
	}
	if p.IntegrationStep > 1/p.SampleRate {
		return faults.InvalidParameters("integration step %g exceeds the sample period %g", p.IntegrationStep, 1/p.SampleRate)
	}
	if len(p.PolePositions) != p.SectionCount {
		return faults.InvalidParameters("%d pole positions for %d sections", len(p.PolePositions), p.SectionCount)
	}
	if err := checkMonotonic(p.PolePositions); err != nil {
		return err
	}
	if err := p.Fibers.Validate(); err != nil {
		return err
	}
	switch p.Nonlinearity {
	case VelocityNonlinearity, DisplacementNonlinearity, Linear:
	default:
		return faults.InvalidParameters("unknown nonlinearity %d", int(p.Nonlinearity))
	}
	if _, ok := compressionKnees[p.CompressionSlope]; !ok {
		return faults.InvalidParameters("unsupported compression slope %g", p.CompressionSlope)
	}
	if p.IrregularityPercent < 0 || p.IrregularityPercent >= 1 {
		return faults.InvalidParameters("irregularity percent %g outside [0, 1)", p.IrregularityPercent)
	}
	if p.Neuropathy.Severity < 0 || p.Neuropathy.Severity > 1 {
		return faults.InvalidParameters("neuropathy severity %g outside [0, 1]", p.Neuropathy.Severity)
	}
	if p.Workers < 0 {
		return faults.InvalidParameters("worker count %d is negative", p.Workers)
	}
	return nil
}

// Validate checks the fiber fractions and counts.
func (f FiberPopulation) Validate() error {
	if f.HighSRFraction < 0 || f.LowSRFraction < 0 {
		return faults.InvalidParameters("negative fiber fraction (high %g, low %g)", f.HighSRFraction, f.LowSRFraction)
	}
	if sum := f.HighSRFraction + f.LowSRFraction; math.Abs(sum-1) > FractionTolerance {
		return faults.InvalidParameters("fiber fractions sum to %g, want 1", sum)
	}
	if f.FibersPerSection < 1 {
		return faults.InvalidParameters("fibers per section must be at least 1, got %d", f.FibersPerSection)
	}
	if math.IsNaN(f.ThresholdDB) || math.IsInf(f.ThresholdDB, 0) {
		return faults.InvalidParameters("threshold %g is not finite", f.ThresholdDB)
	}
	return nil
}

func checkMonotonic(poles []float64) error {
	for _, v := range poles {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v >= 1 {
			return faults.InvalidParameters("pole %g outside (0, 1)", v)
		}
	}
	if len(poles) < 2 {
		return nil
	}
	rising := poles[1] > poles[0]
	for i := 1; i < len(poles); i++ {
		d := poles[i] - poles[i-1]
		if d == 0 || (d > 0) != rising {
			return faults.InvalidParameters("pole positions not strictly monotonic at section %d", i)
		}
	}
	return nil
}
