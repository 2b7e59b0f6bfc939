// Package config reads the YAML template describing a simulation: model
// parameters, the stimulus, what to save and how much to log.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linuxmatters/corti/internal/archive"
	"github.com/linuxmatters/corti/internal/brainstem"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/mains"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/stimulus"
)

// Template is the root of a configuration file.
type Template struct {
	Model    ModelSection    `yaml:"model" desc:"cochlear, nerve and brainstem model"`
	Stimulus StimulusSection `yaml:"stimulus" desc:"stimulus to present"`
	Output   OutputSection   `yaml:"output" desc:"where and what to save"`
	Logging  LoggingSection  `yaml:"logging" desc:"diagnostic output"`
}

// ModelSection mirrors params.ModelParameters with file friendly types.
type ModelSection struct {
	Sections            int          `yaml:"sections" desc:"cochlear sections, base to apex"`
	SampleRate          float64      `yaml:"sample_rate" desc:"sample rate in Hz"`
	IntegrationStep     float64      `yaml:"integration_step,omitempty" desc:"solver step in seconds, default one sample"`
	Poles               []float64    `yaml:"poles,omitempty" desc:"starting pole per section, default ramp when empty"`
	Nonlinearity        string       `yaml:"nonlinearity" desc:"vel, disp or none"`
	CompressionSlope    float64      `yaml:"compression_slope" desc:"dB/dB compression, 0.2 to 0.5"`
	Irregularities      bool         `yaml:"irregularities" desc:"random pole roughness"`
	IrregularityPercent float64      `yaml:"irregularity_percent" desc:"roughness amplitude as a fraction"`
	Subject             uint64       `yaml:"subject" desc:"seed of the roughness pattern"`
	Fibers              FiberSection `yaml:"fibers" desc:"auditory nerve fiber population"`
	Neuropathy          string       `yaml:"neuropathy" desc:"none, mild, moderate, severe or ls- variants"`
	CFWeighting         bool         `yaml:"cf_weighting" desc:"weight fiber counts by characteristic frequency"`
	Brainstem           string       `yaml:"brainstem" desc:"NELSON_CARNEY_2004, CARNEY_2015 or none"`
	Seed                *uint64      `yaml:"seed,omitempty" desc:"spike generator seed, random when unset"`
	Workers             int          `yaml:"workers" desc:"parallel workers, 0 for one per CPU"`
}

// FiberSection describes the fibers innervating each section.
type FiberSection struct {
	HighSRFraction float64 `yaml:"high_sr_fraction" desc:"share of high spontaneous rate fibers"`
	LowSRFraction  float64 `yaml:"low_sr_fraction" desc:"share of low spontaneous rate fibers"`
	ThresholdDB    float64 `yaml:"threshold_db" desc:"class boundary in dB SPL"`
	PerSection     int     `yaml:"per_section" desc:"fibers per section"`
}

// StimulusSection is either a synthesised template or a WAV recording.
type StimulusSection struct {
	stimulus.Template `yaml:",inline"`

	WAV          string `yaml:"wav,omitempty" desc:"recording to use instead of a synthesised stimulus"`
	Hum          string `yaml:"hum,omitempty" desc:"mains hum notch: off, auto, 50 or 60"`
	HumHarmonics int    `yaml:"hum_harmonics,omitempty" desc:"harmonics notched above the fundamental"`
}

// OutputSection controls the result archive.
type OutputSection struct {
	Directory string `yaml:"directory" desc:"root directory for run output"`
	Save      string `yaml:"save" desc:"components to save, see --help"`
	Clean     bool   `yaml:"clean" desc:"remove previous runs after this one"`
}

// LoggingSection controls the debug log.
type LoggingSection struct {
	Level string `yaml:"level" desc:"debug, info, warn or error"`
	File  string `yaml:"file,omitempty" desc:"debug log path, none when empty"`
}

// Default returns the template used when no file is given: the standard
// model driven by an 80 dB click.
func Default() *Template {
	p := params.Default()
	return &Template{
		Model: ModelSection{
			Sections:            p.SectionCount,
			SampleRate:          p.SampleRate,
			Nonlinearity:        p.Nonlinearity.String(),
			CompressionSlope:    p.CompressionSlope,
			Irregularities:      p.Irregularities,
			IrregularityPercent: p.IrregularityPercent,
			Subject:             p.Subject,
			Fibers: FiberSection{
				HighSRFraction: p.Fibers.HighSRFraction,
				LowSRFraction:  p.Fibers.LowSRFraction,
				ThresholdDB:    p.Fibers.ThresholdDB,
				PerSection:     p.Fibers.FibersPerSection,
			},
			Neuropathy:  "none",
			CFWeighting: p.CFWeighting,
			Brainstem:   brainstem.NelsonCarney2004.String(),
		},
		Stimulus: StimulusSection{
			Template: stimulus.DefaultTemplate(),
			Hum:      "off",
		},
		Output: OutputSection{
			Directory: "~/corti-output",
			Save:      archive.DefaultFlags,
		},
		Logging: LoggingSection{Level: "info"},
	}
}

// Load reads and validates a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.ConfigParse(path, err)
	}
	t, err := parse(data)
	if err != nil {
		return nil, faults.ConfigParse(path, err)
	}
	// Recordings are resolved relative to the template.
	if t.Stimulus.WAV != "" && !filepath.IsAbs(t.Stimulus.WAV) {
		t.Stimulus.WAV = filepath.Join(filepath.Dir(path), t.Stimulus.WAV)
	}
	return t, nil
}

// Parse decodes and validates a template. Keys absent from data keep their
// defaults; unknown keys are errors.
func Parse(data []byte) (*Template, error) {
	t, err := parse(data)
	if err != nil {
		return nil, faults.ConfigParse("template", err)
	}
	return t, nil
}

func parse(data []byte) (*Template, error) {
	t := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every section without touching the filesystem.
func (t *Template) Validate() error {
	p, err := t.ModelParameters()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, _, err := t.BrainstemModel(); err != nil {
		return err
	}
	if t.Stimulus.WAV == "" {
		if err := t.Stimulus.Template.Validate(); err != nil {
			return err
		}
	} else if len(t.Stimulus.Levels) == 0 {
		return faults.InvalidParameters("recording %s has no levels", t.Stimulus.WAV)
	}
	if _, err := mains.Resolve(t.Stimulus.Hum); err != nil {
		return err
	}
	if _, err := archive.ParseFlags(t.Output.Save); err != nil {
		return err
	}
	switch strings.ToLower(t.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return faults.InvalidParameters("unknown log level %q", t.Logging.Level)
	}
	return nil
}

// ModelParameters converts the model section. The result is not validated.
func (t *Template) ModelParameters() (params.ModelParameters, error) {
	m := t.Model
	nl, err := params.ParseNonlinearity(m.Nonlinearity)
	if err != nil {
		return params.ModelParameters{}, err
	}
	np, err := params.ParseNeuropathy(m.Neuropathy)
	if err != nil {
		return params.ModelParameters{}, err
	}

	p := params.WithSections(m.Sections, m.SampleRate)
	if len(m.Poles) > 0 {
		p.PolePositions = append([]float64(nil), m.Poles...)
	}
	if m.IntegrationStep > 0 {
		p.IntegrationStep = m.IntegrationStep
	}
	p.Fibers = params.FiberPopulation{
		HighSRFraction:   m.Fibers.HighSRFraction,
		LowSRFraction:    m.Fibers.LowSRFraction,
		ThresholdDB:      m.Fibers.ThresholdDB,
		FibersPerSection: m.Fibers.PerSection,
	}
	p.Nonlinearity = nl
	p.CompressionSlope = m.CompressionSlope
	p.Irregularities = m.Irregularities
	p.IrregularityPercent = m.IrregularityPercent
	p.Subject = m.Subject
	p.Neuropathy = np
	p.CFWeighting = m.CFWeighting
	p.Workers = m.Workers
	if p.Workers == 0 {
		p.Workers = runtime.NumCPU()
	}
	return p, nil
}

// BrainstemModel returns the configured brainstem model, or false when the
// brainstem is disabled.
func (t *Template) BrainstemModel() (brainstem.Model, bool, error) {
	switch strings.ToLower(strings.TrimSpace(t.Model.Brainstem)) {
	case "none", "off":
		return 0, false, nil
	}
	m, err := brainstem.ParseModel(t.Model.Brainstem)
	return m, err == nil, err
}

// Stimuli builds the stimulus set at the model sample rate.
func (t *Template) Stimuli() (stimulus.Set, error) {
	fs := t.Model.SampleRate
	if t.Stimulus.WAV == "" {
		return stimulus.Synthesize(t.Stimulus.Template, fs)
	}
	hz, err := mains.Resolve(t.Stimulus.Hum)
	if err != nil {
		return nil, err
	}
	var opts []stimulus.LoadOption
	if hz > 0 {
		opts = append(opts, stimulus.WithHumNotch(hz, t.Stimulus.HumHarmonics))
	}
	return stimulus.Load(t.Stimulus.WAV, t.Stimulus.Levels, fs, opts...)
}

// Marshal encodes the template as YAML.
func (t *Template) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
