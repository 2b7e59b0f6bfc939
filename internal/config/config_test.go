package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/linuxmatters/corti/internal/brainstem"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/stimulus"
)

func TestParseEmptyGivesDefaults(t *testing.T) {
	tmpl, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) = %v", err)
	}
	if !reflect.DeepEqual(tmpl, Default()) {
		t.Errorf("empty template differs from Default()")
	}

	p, err := tmpl.ModelParameters()
	if err != nil {
		t.Fatal(err)
	}
	want := params.Default()
	want.Workers = runtime.NumCPU()
	if !reflect.DeepEqual(p, want) {
		t.Errorf("ModelParameters() = %+v, want %+v", p, want)
	}
}

func TestParseOverrides(t *testing.T) {
	doc := `
model:
  sections: 50
  sample_rate: 20000
  integration_step: 1.0e-5
  nonlinearity: disp
  neuropathy: ls-moderate
  brainstem: CARNEY_2015
  seed: 42
  workers: 2
  fibers:
    high_sr_fraction: 0.5
    low_sr_fraction: 0.5
    per_section: 4
stimulus:
  type: tone
  frequency: 1000
  stim_time: 0.05
  ramp_time: 0.005
  levels: [40, 60]
output:
  save: cvb
logging:
  level: debug
`
	tmpl, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	p, err := tmpl.ModelParameters()
	if err != nil {
		t.Fatal(err)
	}
	if p.SectionCount != 50 || p.SampleRate != 20000 || p.IntegrationStep != 1e-5 {
		t.Errorf("dimensions = %d, %g, %g", p.SectionCount, p.SampleRate, p.IntegrationStep)
	}
	if len(p.PolePositions) != 50 {
		t.Errorf("%d default poles for 50 sections", len(p.PolePositions))
	}
	if p.Nonlinearity != params.DisplacementNonlinearity {
		t.Errorf("Nonlinearity = %v", p.Nonlinearity)
	}
	if p.Neuropathy != (params.Neuropathy{Kind: params.LowSRNeuropathy, Severity: 0.25}) {
		t.Errorf("Neuropathy = %+v", p.Neuropathy)
	}
	if p.Fibers.FibersPerSection != 4 || p.Fibers.ThresholdDB != params.DefaultThresholdDB {
		t.Errorf("Fibers = %+v", p.Fibers)
	}
	if p.Workers != 2 {
		t.Errorf("Workers = %d", p.Workers)
	}
	if tmpl.Model.Seed == nil || *tmpl.Model.Seed != 42 {
		t.Errorf("Seed = %v", tmpl.Model.Seed)
	}
	if m, on, err := tmpl.BrainstemModel(); err != nil || !on || m != brainstem.Carney2015 {
		t.Errorf("BrainstemModel() = %v, %v, %v", m, on, err)
	}

	set, err := tmpl.Stimuli()
	if err != nil {
		t.Fatal(err)
	}
	if got := set.Levels(); !reflect.DeepEqual(got, []float64{40, 60}) {
		t.Errorf("levels = %v", got)
	}
	if set[0].Kind != stimulus.Tone || set[0].SampleRate != 20000 {
		t.Errorf("stimulus = %s at %g Hz", set[0].Kind, set[0].SampleRate)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", "model: [sections"},
		{"unknown key", "model:\n  sectoins: 5\n"},
		{"unknown section", "plots:\n  pdf: true\n"},
		{"fractions", "model:\n  fibers:\n    high_sr_fraction: 0.7\n"},
		{"zero sections", "model:\n  sections: 0\n"},
		{"nonlinearity", "model:\n  nonlinearity: cubic\n"},
		{"neuropathy", "model:\n  neuropathy: catastrophic\n"},
		{"brainstem", "model:\n  brainstem: zilany\n"},
		{"poles", "model:\n  sections: 3\n  poles: [0.1, 0.1, 0.2]\n"},
		{"stimulus type", "stimulus:\n  type: noise\n"},
		{"save flags", "output:\n  save: cvz\n"},
		{"log level", "logging:\n  level: loud\n"},
		{"hum", "stimulus:\n  hum: \"55\"\n"},
		{"wav without levels", "stimulus:\n  wav: speech.wav\n  levels: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, faults.ErrConfigParse) {
				t.Errorf("Parse() error = %v, want ErrConfigParse", err)
			}
		})
	}
}

func TestBrainstemDisabled(t *testing.T) {
	tmpl, err := Parse([]byte("model:\n  brainstem: none\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, on, err := tmpl.BrainstemModel(); on || err != nil {
		t.Errorf("BrainstemModel() = %v, %v", on, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	doc := "stimulus:\n  wav: speech.wav\n  levels: [70]\n  hum: \"50\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if want := filepath.Join(dir, "speech.wav"); tmpl.Stimulus.WAV != want {
		t.Errorf("WAV = %q, want %q", tmpl.Stimulus.WAV, want)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, faults.ErrConfigParse) {
		t.Errorf("Load(missing) error = %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	want := Default()
	seed := uint64(7)
	want.Model.Seed = &seed
	want.Model.Poles = params.DefaultPoles(want.Model.Sections)

	data, err := want.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) = %v\n%s", err, data)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip changed the template:\n%s", data)
	}
}

func TestDescribe(t *testing.T) {
	doc := Describe()
	for _, want := range []string{"model:", "stimulus:", "output:", "logging:", "sections", "high_sr_fraction", "save"} {
		if !strings.Contains(doc, want) {
			t.Errorf("Describe() missing %q", want)
		}
	}

	_, stim, ok := strings.Cut(doc, "stimulus:\n")
	if !ok {
		t.Fatalf("no stimulus section in:\n%s", doc)
	}
	stim, _, _ = strings.Cut(stim, "output:\n")
	for _, key := range []string{
		"type", "levels", "prestim_time", "stim_time", "poststim_time",
		"frequency", "modulation_depth", "ramp_time", "wav", "hum",
	} {
		if !strings.Contains(stim, "  "+key+" (") {
			t.Errorf("stimulus section missing %q:\n%s", key, stim)
		}
	}
	if strings.Contains(stim, "  model (") {
		t.Errorf("stimulus section lists template sections:\n%s", stim)
	}
}
