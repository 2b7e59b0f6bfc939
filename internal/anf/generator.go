// Package anf turns basilar membrane motion into auditory nerve activity:
// inner hair cell transduction, a rate-level function with adaptation per
// spontaneous rate class, and refractory Poisson spike trains.
package anf

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/corti/internal/cochlea"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/philox"
	"github.com/linuxmatters/corti/internal/progress"
)

// StageName identifies this stage in progress reports and errors.
const StageName = "anf"

// SpikeTrain is the activity of one fiber.
type SpikeTrain struct {
	FiberID     int // unique across sections
	Section     int
	Class       SRClass
	ThresholdDB float64
	SpikeTimes  []float64 // seconds, increasing
}

// Output is the auditory nerve response to one stimulus.
type Output struct {
	SampleRate   float64
	Samples      int
	SectionCount int
	CF           []float64

	Trains []SpikeTrain // ordered by section, then fiber

	// Rates holds, per class, the mean instantaneous rate of the
	// surviving fibers of each section in spikes/s.
	Rates map[SRClass][][]float64

	// Receptor is the inner hair cell depolarisation per section.
	Receptor [][]float64
}

// SpikeCount returns the number of spikes across every train.
func (o *Output) SpikeCount() int {
	n := 0
	for i := range o.Trains {
		n += len(o.Trains[i].SpikeTimes)
	}
	return n
}

// Option configures a Generator.
type Option func(*Generator)

// WithObserver reports the fraction of sections completed.
func WithObserver(o progress.Observer) Option {
	return func(g *Generator) { g.observer = progress.OrNop(o) }
}

// Generator produces spike trains for a fixed parameter set and seed.
type Generator struct {
	p        params.ModelParameters
	seed     uint64
	fibers   []fiber
	observer progress.Observer
}

// New validates p and lays out the fiber population.
func New(p params.ModelParameters, seed uint64, opts ...Option) (*Generator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		p:        p.Clone(),
		seed:     seed,
		fibers:   population(p.Fibers),
		observer: progress.Nop,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Generator) check(bm *cochlea.Output) error {
	if bm == nil {
		return faults.UpstreamData("no basilar membrane output")
	}
	if bm.Sections() != g.p.SectionCount {
		return faults.UpstreamData("basilar membrane output has %d sections, model has %d",
			bm.Sections(), g.p.SectionCount)
	}
	if bm.SampleRate != g.p.SampleRate {
		return faults.UpstreamData("basilar membrane output sampled at %g Hz, model runs at %g Hz",
			bm.SampleRate, g.p.SampleRate)
	}
	samples := bm.Samples()
	if samples == 0 {
		return faults.UpstreamData("basilar membrane output is empty")
	}
	for i, series := range bm.Velocity {
		if len(series) != samples {
			return faults.UpstreamData("section %d has %d samples, want %d", i, len(series), samples)
		}
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return faults.UpstreamData("section %d velocity is not finite", i)
			}
		}
	}
	return nil
}

// Generate computes the auditory nerve response to bm. Sections run in
// parallel up to the configured worker count; every fiber draws from its
// own random stream, so the result does not depend on scheduling.
func (g *Generator) Generate(ctx context.Context, bm *cochlea.Output) (*Output, error) {
	if err := g.check(bm); err != nil {
		return nil, err
	}

	sections := g.p.SectionCount
	samples := bm.Samples()
	out := &Output{
		SampleRate:   bm.SampleRate,
		Samples:      samples,
		SectionCount: sections,
		CF:           append([]float64(nil), bm.CF...),
		Rates:        make(map[SRClass][][]float64, len(Classes)),
		Receptor:     make([][]float64, sections),
	}
	for _, c := range Classes {
		out.Rates[c] = make([][]float64, sections)
	}
	trains := make([][]SpikeTrain, sections)

	workers := g.p.Workers
	if workers < 1 {
		workers = 1
	}
	obs := progress.Monotonic(g.observer)
	var done atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for s := 0; s < sections; s++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %v", faults.ErrAborted, err)
			}
			trains[s] = g.section(s, bm.Velocity[s], out)
			obs.Report(StageName, float64(done.Add(1))/float64(sections))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, t := range trains {
		out.Trains = append(out.Trains, t...)
	}
	return out, nil
}

// section runs every surviving fiber of section s and fills the section's
// slots in out.
func (g *Generator) section(s int, velocity []float64, out *Output) []SpikeTrain {
	fs := out.SampleRate
	r := receptor(velocity, fs)
	out.Receptor[s] = r

	levels := make([]float64, len(r))
	for i, v := range r {
		levels[i] = driveLevel(v)
	}

	fibers := survivors(g.fibers, g.p.Neuropathy, g.seed, s)
	counts := make(map[SRClass]int, len(Classes))
	for _, c := range Classes {
		out.Rates[c][s] = make([]float64, len(r))
	}

	base := philox.New(g.seed, spikeStream)
	rate := make([]float64, len(r))
	trains := make([]SpikeTrain, 0, len(fibers))
	for _, f := range fibers {
		newRateFunc(f.class, f.threshold, fs).apply(levels, rate)

		mean := out.Rates[f.class][s]
		for i, v := range rate {
			mean[i] += v
		}
		counts[f.class]++

		id := s*g.p.Fibers.FibersPerSection + f.index
		trains = append(trains, SpikeTrain{
			FiberID:     id,
			Section:     s,
			Class:       f.class,
			ThresholdDB: f.threshold,
			SpikeTimes:  spikeTimes(rate, fs, base.Sub(uint64(id))),
		})
	}
	for c, n := range counts {
		mean := out.Rates[c][s]
		for i := range mean {
			mean[i] /= float64(n)
		}
	}
	return trains
}
