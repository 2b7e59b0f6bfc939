// Package brainstem models the auditory brainstem and midbrain: pooled
// auditory nerve activity drives cochlear nucleus and inferior colliculus
// cells, and population sums give the auditory brainstem response waves.
package brainstem

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/corti/internal/anf"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/progress"
)

// StageName identifies this stage in progress reports and errors.
const StageName = "brainstem"

// chunkSize is the number of sections summed together before partial sums
// are combined. It is fixed so the summation order never depends on the
// worker count.
const chunkSize = 32

// Output is the brainstem response to one stimulus.
type Output struct {
	Model      Model
	SampleRate float64

	// Population rates, summed across sections.
	AN, CN, IC []float64

	Wave1, Wave3, Wave5 []float64 // volts
	Response            []float64 // Wave1 + Wave3 + Wave5
}

// Option configures a Stage.
type Option func(*Stage)

// WithObserver reports the fraction of sections processed.
func WithObserver(o progress.Observer) Option {
	return func(s *Stage) { s.observer = progress.OrNop(o) }
}

// Stage runs one brainstem model for a fixed parameter set.
type Stage struct {
	p        params.ModelParameters
	model    Model
	observer progress.Observer
}

// New validates p and the model choice.
func New(p params.ModelParameters, model Model, opts ...Option) (*Stage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch model {
	case NelsonCarney2004, Carney2015:
	default:
		return nil, faults.InvalidParameters("unknown brainstem model %d", int(model))
	}
	s := &Stage{p: p.Clone(), model: model, observer: progress.Nop}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Model returns the configured circuit.
func (s *Stage) Model() Model { return s.model }

func (s *Stage) check(an *anf.Output) error {
	if an == nil {
		return faults.UpstreamData("no auditory nerve output")
	}
	if an.SectionCount != s.p.SectionCount {
		return faults.UpstreamData("auditory nerve output has %d sections, model has %d",
			an.SectionCount, s.p.SectionCount)
	}
	if an.SampleRate != s.p.SampleRate {
		return faults.UpstreamData("auditory nerve output sampled at %g Hz, model runs at %g Hz",
			an.SampleRate, s.p.SampleRate)
	}
	if an.Samples <= 0 {
		return faults.UpstreamData("auditory nerve output is empty")
	}
	if s.p.CFWeighting && len(an.CF) != an.SectionCount {
		return faults.UpstreamData("%d characteristic frequencies for %d sections", len(an.CF), an.SectionCount)
	}
	duration := float64(an.Samples) / an.SampleRate
	for _, tr := range an.Trains {
		if tr.Section < 0 || tr.Section >= an.SectionCount {
			return faults.UpstreamData("fiber %d refers to section %d of %d", tr.FiberID, tr.Section, an.SectionCount)
		}
		for _, t := range tr.SpikeTimes {
			if math.IsNaN(t) || t < 0 || t >= duration {
				return faults.UpstreamData("fiber %d spike at %g s outside the %g s response", tr.FiberID, t, duration)
			}
		}
	}
	return nil
}

// classWeight scales each class's mean rate before the classes are
// combined by their share of the nominal population.
var classWeight = map[anf.SRClass]float64{
	anf.HighSR: 1.0,
	anf.LowSR:  1.0,
}

// spikeGains returns, per class, the pooled rate one spike adds:
// weight · share / nominal count, in spikes/s. Dividing by the nominal
// rather than the surviving count lets neuropathy lower the response.
func spikeGains(f params.FiberPopulation, fs float64) map[anf.SRClass]float64 {
	gains := make(map[anf.SRClass]float64, len(anf.Classes))
	for _, c := range anf.Classes {
		nominal := anf.Nominal(f, c)
		if nominal == 0 {
			continue
		}
		share := float64(nominal) / float64(f.FibersPerSection)
		gains[c] = fs * classWeight[c] * share / float64(nominal)
	}
	return gains
}

// psth bins the spikes of every section into a pooled rate: the
// share-weighted sum of the per-class mean rates.
func (s *Stage) psth(an *anf.Output) [][]float64 {
	rates := make([][]float64, an.SectionCount)
	for i := range rates {
		rates[i] = make([]float64, an.Samples)
	}
	gains := spikeGains(s.p.Fibers, an.SampleRate)
	for _, tr := range an.Trains {
		bins := rates[tr.Section]
		g := gains[tr.Class]
		for _, t := range tr.SpikeTimes {
			k := int(math.Round(t * an.SampleRate))
			if k >= len(bins) {
				k = len(bins) - 1
			}
			bins[k] += g
		}
	}
	if s.p.CFWeighting {
		for i, bins := range rates {
			w := cfWeight(an.CF[i])
			for k := range bins {
				bins[k] *= w
			}
		}
	}
	return rates
}

// partial is the population sum of one chunk of sections.
type partial struct {
	an, cn, ic []float64
}

// Simulate computes the brainstem response to an.
func (s *Stage) Simulate(ctx context.Context, an *anf.Output) (*Output, error) {
	if err := s.check(an); err != nil {
		return nil, err
	}
	rates := s.psth(an)
	fs := an.SampleRate
	n := an.Samples

	chunks := (an.SectionCount + chunkSize - 1) / chunkSize
	parts := make([]partial, chunks)

	workers := s.p.Workers
	if workers < 1 {
		workers = 1
	}
	obs := progress.Monotonic(s.observer)
	var done atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for c := 0; c < chunks; c++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %v", faults.ErrAborted, err)
			}
			lo := c * chunkSize
			hi := min(lo+chunkSize, an.SectionCount)
			part := partial{an: make([]float64, n), cn: make([]float64, n), ic: make([]float64, n)}
			for sec := lo; sec < hi; sec++ {
				cn, ic := s.model.circuit(fs, rates[sec])
				for k := 0; k < n; k++ {
					part.an[k] += rates[sec][k]
					part.cn[k] += cn[k]
					part.ic[k] += ic[k]
				}
			}
			parts[c] = part
			obs.Report(StageName, float64(done.Add(int64(hi-lo)))/float64(an.SectionCount))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &Output{
		Model:      s.model,
		SampleRate: fs,
		AN:         make([]float64, n),
		CN:         make([]float64, n),
		IC:         make([]float64, n),
		Wave1:      make([]float64, n),
		Wave3:      make([]float64, n),
		Wave5:      make([]float64, n),
		Response:   make([]float64, n),
	}
	for _, part := range parts {
		for k := 0; k < n; k++ {
			out.AN[k] += part.an[k]
			out.CN[k] += part.cn[k]
			out.IC[k] += part.ic[k]
		}
	}
	for k := 0; k < n; k++ {
		out.Wave1[k] = out.AN[k] * M1
		out.Wave3[k] = out.CN[k] * M3
		out.Wave5[k] = out.IC[k] * M5
		out.Response[k] = out.Wave1[k] + out.Wave3[k] + out.Wave5[k]
	}
	return out, nil
}
