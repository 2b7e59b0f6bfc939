// Package cochlea integrates a nonlinear time-domain transmission-line model
// of the cochlea. The partition is discretised into sections from base to
// apex, each a damped oscillator with a level dependent pole and delayed
// stiffness feedback, coupled through the cochlear fluid and driven through
// the middle ear.
package cochlea

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/linuxmatters/corti/internal/dsp"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/progress"
	"github.com/linuxmatters/corti/internal/stimulus"
)

// StageName identifies the solver in progress reports and errors.
const StageName = "cochlea"

// Output is the basilar membrane response, one series per section.
type Output struct {
	SampleRate   float64
	CF           []float64   // characteristic frequency per section, Hz
	Velocity     [][]float64 // [section][sample], m/s
	Displacement [][]float64 // [section][sample], m
	Emission     []float64   // otoacoustic emission at the stapes, Pa
}

// Sections returns the number of sections in the output.
func (o *Output) Sections() int { return len(o.Velocity) }

// Samples returns the length of every series.
func (o *Output) Samples() int {
	if len(o.Velocity) == 0 {
		return 0
	}
	return len(o.Velocity[0])
}

// Option configures a Solver.
type Option func(*Solver)

// WithObserver reports the fraction of samples integrated.
func WithObserver(o progress.Observer) Option {
	return func(s *Solver) { s.observer = progress.OrNop(o) }
}

// Solver integrates the transmission line for one parameter set. A Solver
// may be reused for several stimuli but not concurrently.
type Solver struct {
	p        params.ModelParameters
	geo      *geometry
	observer progress.Observer
}

// New validates p and precomputes the transmission line geometry.
func New(p params.ModelParameters, opts ...Option) (*Solver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Solver{p: p.Clone(), observer: progress.Nop}
	for _, opt := range opts {
		opt(s)
	}
	s.geo = newGeometry(p.SectionCount)

	h := s.Step()
	if limit := h * 2 * math.Pi * s.geo.maxCF(); limit > StabilityLimit {
		return nil, faults.NumericalInstability(
			"integration step %.3g s gives h·ω = %.2f at %.0f Hz, limit %.1f",
			h, limit, s.geo.maxCF(), StabilityLimit)
	}
	return s, nil
}

// Step returns the integration step actually used, in seconds.
func (s *Solver) Step() float64 {
	return 1 / s.p.SampleRate / float64(s.p.SubSteps())
}

// CF returns the characteristic frequency of every section.
func (s *Solver) CF() []float64 {
	return append([]float64(nil), s.geo.cf[1:]...)
}

// Solve integrates the model over the whole stimulus.
func (s *Solver) Solve(ctx context.Context, stim stimulus.Stimulus) (*Output, error) {
	if err := stim.Validate(); err != nil {
		return nil, err
	}
	if stim.SampleRate != s.p.SampleRate {
		return nil, faults.InvalidParameters("stimulus sampled at %g Hz, model runs at %g Hz",
			stim.SampleRate, s.p.SampleRate)
	}

	run := newIntegration(s, stim.Samples)
	return run.integrate(ctx)
}

// integration is the mutable state of one Solve call.
type integration struct {
	geo     *geometry
	poles   *poleState
	delay   *delayLine
	workers int

	stim     []float64 // middle ear filtered, padded for interpolation
	samples  int
	substeps int
	h        float64
	fs       float64

	// State and Runge-Kutta scratch, per node.
	v, y      []float64
	tv, ty    []float64
	kv, ky    [4][]float64
	g, rhs, q []float64
	window    [4]float64 // stimulus samples j-1..j+2

	observer progress.Observer
}

func newIntegration(s *Solver, samples []float64) *integration {
	n := s.geo.n
	dt := 1 / s.p.SampleRate

	// Middle ear band-pass on the stimulus, two zero samples of look-ahead.
	me := dsp.NewChain(dsp.ButterworthBandpass(s.p.SampleRate, puriaLow, puriaHigh)).
		WithGain(math.Pow(10, puriaGainDB/20) * 2)
	filtered := me.Filter(samples)
	padded := make([]float64, len(filtered)+2)
	copy(padded, filtered)

	in := &integration{
		geo:      s.geo,
		poles:    newPoleState(s.p, s.geo),
		delay:    newDelayLine(s.geo, dt),
		workers:  s.p.Workers,
		stim:     padded,
		samples:  len(samples),
		substeps: s.p.SubSteps(),
		h:        s.Step(),
		fs:       s.p.SampleRate,
		v:        make([]float64, n),
		y:        make([]float64, n),
		tv:       make([]float64, n),
		ty:       make([]float64, n),
		g:        make([]float64, n),
		rhs:      make([]float64, n),
		q:        make([]float64, n),
		observer: s.observer,
	}
	for k := range in.kv {
		in.kv[k] = make([]float64, n)
		in.ky[k] = make([]float64, n)
	}
	if in.workers > n-1 {
		in.workers = n - 1
	}
	return in
}

func (in *integration) integrate(ctx context.Context) (*Output, error) {
	sections := in.geo.n - 1
	out := &Output{
		SampleRate:   in.fs,
		CF:           append([]float64(nil), in.geo.cf[1:]...),
		Velocity:     make([][]float64, sections),
		Displacement: make([][]float64, sections),
	}
	for i := 0; i < sections; i++ {
		out.Velocity[i] = make([]float64, in.samples)
		out.Displacement[i] = make([]float64, in.samples)
	}
	emission := make([]float64, in.samples)

	reportEvery := in.samples / 200
	if reportEvery < 1 {
		reportEvery = 1
	}

	for j := 0; j < in.samples; j++ {
		if j%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", faults.ErrAborted, err)
			}
		}

		in.window = [4]float64{0, in.stim[j], in.stim[j+1], in.stim[j+2]}
		if j > 0 {
			in.window[0] = in.stim[j-1]
		}

		for sub := 0; sub < in.substeps; sub++ {
			in.step(float64(sub) / float64(in.substeps))
		}
		in.delay.push(in.y)

		for i := 1; i < in.geo.n; i++ {
			v := in.v[i]
			if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > MaxVelocity {
				return nil, faults.NumericalInstability(
					"velocity %g m/s at section %d (%.0f Hz) after %.4f s",
					v, i-1, in.geo.cf[i], float64(j+1)*in.h*float64(in.substeps))
			}
			out.Velocity[i-1][j] = v
			out.Displacement[i-1][j] = in.y[i]
		}
		emission[j] = in.q[0]

		if (j+1)%reportEvery == 0 || j+1 == in.samples {
			in.observer.Report(StageName, float64(j+1)/float64(in.samples))
		}
	}

	oae := dsp.NewChain(dsp.ButterworthBandpass(out.SampleRate, puriaLow, puriaHigh)).WithGain(in.geo.q0Factor)
	out.Emission = oae.Filter(emission)
	return out, nil
}

// step advances the state by one classical Runge-Kutta step starting at
// fraction frac of the current sample interval.
func (in *integration) step(frac float64) {
	h := in.h
	df := 1 / float64(in.substeps)
	n := in.geo.n

	in.derivative(frac, in.v, in.y, in.kv[0], in.ky[0])
	for i := 0; i < n; i++ {
		in.tv[i] = in.v[i] + h/2*in.kv[0][i]
		in.ty[i] = in.y[i] + h/2*in.ky[0][i]
	}
	in.derivative(frac+df/2, in.tv, in.ty, in.kv[1], in.ky[1])
	for i := 0; i < n; i++ {
		in.tv[i] = in.v[i] + h/2*in.kv[1][i]
		in.ty[i] = in.y[i] + h/2*in.ky[1][i]
	}
	in.derivative(frac+df/2, in.tv, in.ty, in.kv[2], in.ky[2])
	for i := 0; i < n; i++ {
		in.tv[i] = in.v[i] + h*in.kv[2][i]
		in.ty[i] = in.y[i] + h*in.ky[2][i]
	}
	in.derivative(frac+df, in.tv, in.ty, in.kv[3], in.ky[3])
	for i := 0; i < n; i++ {
		in.v[i] += h / 6 * (in.kv[0][i] + 2*in.kv[1][i] + 2*in.kv[2][i] + in.kv[3][i])
		in.y[i] += h / 6 * (in.ky[0][i] + 2*in.ky[1][i] + 2*in.ky[2][i] + in.ky[3][i])
	}
}

// derivative evaluates dV/dt and dY/dt at fraction frac of the current
// sample interval.
func (in *integration) derivative(frac float64, v, y, dv, dy []float64) {
	geo := in.geo
	w := in.window
	f0 := dsp.Cubic(w[0], w[1], w[2], w[3], frac)

	in.g[0] = geo.dmFactor * v[0]
	in.forEachSection(func(lo, hi int) {
		in.sectionForces(lo, hi, frac, v, y)
	})

	in.rhs[0] = in.g[0] + geo.p0x*f0
	for i := 1; i < geo.n; i++ {
		in.rhs[i] = geo.zasq[i] * in.g[i]
	}
	geo.tri.solve(in.rhs, in.q)

	dv[0] = geo.rk4*in.q[0] + geo.rk4g*(in.g[0]+geo.p0x*f0)
	for i := 1; i < geo.n; i++ {
		dv[i] = in.q[i] - in.g[i]
	}
	copy(dy, v)
}

// sectionForces updates the poles of sections [lo, hi) and computes their
// damping and stiffness forces.
func (in *integration) sectionForces(lo, hi int, frac float64, v, y []float64) {
	geo := in.geo
	ps := in.poles
	for i := lo; i < hi; i++ {
		drive := v[i]
		if ps.kind == params.DisplacementNonlinearity {
			drive = y[i]
		}
		ps.update(i, drive)

		delay := ps.mu[i] / (geo.omega[i] * in.h * float64(in.substeps))
		yz := in.delay.read(i, delay, frac, y[i])
		in.g[i] = geo.omega[i]*ps.damp[i]*v[i] + geo.omega2[i]*(y[i]+ps.rho[i]*yz)
	}
}

// forEachSection runs fn over the sections, split across the configured
// workers. Sections are independent, so the split never changes results.
func (in *integration) forEachSection(fn func(lo, hi int)) {
	n := in.geo.n
	if in.workers < 2 {
		fn(1, n)
		return
	}
	chunk := (n - 1 + in.workers - 1) / in.workers
	var wg sync.WaitGroup
	for lo := 1; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
