package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/pipeline"
)

// Provenance records what produced a run directory.
type Provenance struct {
	Version string      `yaml:"version"`
	Created time.Time   `yaml:"created"`
	Flags   string      `yaml:"save_flags"`
	Config  any         `yaml:"config,omitempty"`
	Runs    []RunRecord `yaml:"runs"`
}

// RunRecord describes one stimulus level.
type RunRecord struct {
	RunID      string            `yaml:"run_id"`
	Seed       uint64            `yaml:"seed"`
	Stimulus   string            `yaml:"stimulus"`
	LevelDB    float64           `yaml:"level_db"`
	Brainstem  string            `yaml:"brainstem,omitempty"`
	Model      ModelRecord       `yaml:"model"`
	Timings    map[string]string `yaml:"timings"`
	Files      []string          `yaml:"files"`
}

// ModelRecord is the part of the model parameters worth reading back.
type ModelRecord struct {
	Sections         int     `yaml:"sections"`
	SampleRate       float64 `yaml:"sample_rate"`
	IntegrationStep  float64 `yaml:"integration_step"`
	Nonlinearity     string  `yaml:"nonlinearity"`
	CompressionSlope float64 `yaml:"compression_slope"`
	Irregularities   bool    `yaml:"irregularities"`
	Subject          uint64  `yaml:"subject"`
	Neuropathy       string  `yaml:"neuropathy"`
	CFWeighting      bool    `yaml:"cf_weighting"`
	FibersPerSection int     `yaml:"fibers_per_section"`
}

func modelRecord(p params.ModelParameters) ModelRecord {
	return ModelRecord{
		Sections:         p.SectionCount,
		SampleRate:       p.SampleRate,
		IntegrationStep:  p.IntegrationStep,
		Nonlinearity:     p.Nonlinearity.String(),
		CompressionSlope: p.CompressionSlope,
		Irregularities:   p.Irregularities,
		Subject:          p.Subject,
		Neuropathy:       p.Neuropathy.String(),
		CFWeighting:      p.CFWeighting,
		FibersPerSection: p.Fibers.FibersPerSection,
	}
}

// Record summarizes b and the files written for it.
func Record(b *pipeline.ResponseBundle, files []string) RunRecord {
	r := RunRecord{
		RunID:      b.RunID,
		Seed:       b.Seed,
		Stimulus:   b.Stimulus.Name,
		LevelDB:    b.Stimulus.Level(),
		Model:      modelRecord(b.ParametersUsed),
		Timings:    make(map[string]string, len(b.Timings)),
	}
	if b.Brainstem != nil {
		r.Brainstem = b.Brainstem.Model.String()
	}
	for stage, d := range b.Timings {
		r.Timings[stage] = d.Round(time.Millisecond).String()
	}
	for _, f := range files {
		r.Files = append(r.Files, filepath.Base(f))
	}
	sort.Strings(r.Files)
	return r
}

// WriteProvenance writes p to conf.yaml in dir.
func WriteProvenance(dir string, p Provenance) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding provenance: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ProvenanceFile), data, 0o644)
}

// ReadProvenance loads conf.yaml from dir.
func ReadProvenance(dir string) (Provenance, error) {
	var p Provenance
	data, err := os.ReadFile(filepath.Join(dir, ProvenanceFile))
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decoding provenance: %w", err)
	}
	return p, nil
}
