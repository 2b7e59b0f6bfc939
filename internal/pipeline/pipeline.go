// Package pipeline sequences the cochlear, auditory nerve and brainstem
// stages into a single run and assembles their outputs.
package pipeline

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/corti/internal/anf"
	"github.com/linuxmatters/corti/internal/brainstem"
	"github.com/linuxmatters/corti/internal/cochlea"
	"github.com/linuxmatters/corti/internal/events"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/progress"
	"github.com/linuxmatters/corti/internal/stimulus"
)

// ValidateStage names failures found before any stage starts.
const ValidateStage = "validate"

// ResponseBundle is the complete result of one run. It is owned by the
// caller.
type ResponseBundle struct {
	RunID    string
	Seed     uint64
	Stimulus stimulus.Stimulus

	BasilarMembrane *cochlea.Output
	AuditoryNerve   *anf.Output
	Brainstem       *brainstem.Output // nil when the brainstem is disabled

	ParametersUsed params.ModelParameters
	Started        time.Time
	Timings        map[string]time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSeed fixes the spike generator seed, making runs reproducible.
func WithSeed(seed uint64) Option {
	return func(o *Orchestrator) { o.seed, o.seeded = seed, true }
}

// WithObserver receives stage progress from every run.
func WithObserver(obs progress.Observer) Option {
	return func(o *Orchestrator) { o.observer = progress.OrNop(obs) }
}

// WithBrainstemModel selects the brainstem circuit.
func WithBrainstemModel(m brainstem.Model) Option {
	return func(o *Orchestrator) { o.model, o.brainstem = m, true }
}

// WithoutBrainstem stops after the auditory nerve.
func WithoutBrainstem() Option {
	return func(o *Orchestrator) { o.brainstem = false }
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConcurrency bounds how many levels RunSet simulates at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// Orchestrator runs stimuli through the model. It holds no per-run state
// and may be shared.
type Orchestrator struct {
	seed        uint64
	seeded      bool
	observer    progress.Observer
	model       brainstem.Model
	brainstem   bool
	logger      *slog.Logger
	concurrency int
}

// New returns an orchestrator running all three stages with the
// Nelson-Carney 2004 brainstem and a fresh random seed per run.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		observer:    progress.Nop,
		model:       brainstem.NelsonCarney2004,
		brainstem:   true,
		logger:      slog.New(slog.DiscardHandler),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stages lists the stage names a run passes through, in order.
func (o *Orchestrator) Stages() []string {
	stages := []string{cochlea.StageName, anf.StageName}
	if o.brainstem {
		stages = append(stages, brainstem.StageName)
	}
	return stages
}

// Run is one stimulus presentation. Its status can be read at any time
// from another goroutine.
type Run struct {
	id       string
	o        *Orchestrator
	stim     stimulus.Stimulus
	p        params.ModelParameters
	machine  *machine
	observer progress.Observer
}

// NewRun prepares a run without starting it.
func (o *Orchestrator) NewRun(stim stimulus.Stimulus, p params.ModelParameters) *Run {
	return &Run{
		id:      uuid.NewString(),
		o:       o,
		stim:    stim,
		p:       p.Clone(),
		machine: newMachine(o.Stages()),
	}
}

// ID returns the run identifier carried by every event of the run.
func (r *Run) ID() string { return r.id }

// Status returns the current lifecycle status.
func (r *Run) Status() Status { return r.machine.current() }

// Run executes a single stimulus through every stage.
func (o *Orchestrator) Run(ctx context.Context, stim stimulus.Stimulus, p params.ModelParameters) (*ResponseBundle, error) {
	return o.NewRun(stim, p).Execute(ctx)
}

// RunSet runs every member of set with the same parameters and returns the
// bundles in set order. The first failure cancels the remaining runs and
// is returned alone.
func (o *Orchestrator) RunSet(ctx context.Context, set stimulus.Set, p params.ModelParameters) ([]*ResponseBundle, error) {
	if len(set) == 0 {
		return nil, faults.InStage(ValidateStage, faults.InvalidParameters("empty stimulus set"))
	}
	bundles := make([]*ResponseBundle, len(set))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)
	for i := range set {
		eg.Go(func() error {
			b, err := o.Run(ctx, set[i], p)
			if err != nil {
				return err
			}
			bundles[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

// runState travels through the stage sequence.
type runState struct {
	run     *Run
	seed    uint64
	bm      *cochlea.Output
	an      *anf.Output
	bs      *brainstem.Output
	timings map[string]time.Duration
	failure error // the stage error, before any wrapping by the sequence
}

func (r *Run) validate() error {
	if err := r.p.Validate(); err != nil {
		return err
	}
	if err := r.stim.Validate(); err != nil {
		return err
	}
	if r.stim.SampleRate != r.p.SampleRate {
		return faults.InvalidParameters("stimulus sampled at %g Hz, model runs at %g Hz",
			r.stim.SampleRate, r.p.SampleRate)
	}
	if r.o.brainstem {
		if _, err := brainstem.New(r.p, r.o.model); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) drawSeed() (uint64, error) {
	if o.seeded {
		return o.seed, nil
	}
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("drawing seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Execute runs every stage. A run executes at most once; no partial bundle
// is ever returned.
func (r *Run) Execute(ctx context.Context) (*ResponseBundle, error) {
	log := r.o.logger.With("run", r.id, "stimulus", r.stim.Name)
	started := time.Now()

	if cur := r.Status(); cur.State != Idle {
		return nil, fmt.Errorf("run %s is %s", r.id, cur)
	}
	if err := r.validate(); err != nil {
		return nil, r.fail(ctx, log, faults.InStage(ValidateStage, err))
	}
	seed, err := r.o.drawSeed()
	if err != nil {
		return nil, r.fail(ctx, log, faults.InStage(ValidateStage, err))
	}

	r.observer = progress.Monotonic(progress.Multi(
		r.o.observer,
		progress.Throttle(progress.Signals(ctx, r.id), 0.01),
	))

	capitan.Info(ctx, events.RunStarted,
		events.RunIDKey.Field(r.id),
		events.StimulusKey.Field(r.stim.Name),
		events.LevelKey.Field(r.stim.Level()),
		events.SeedKey.Field(strconv.FormatUint(seed, 10)),
		events.SectionsKey.Field(r.p.SectionCount),
		events.SamplesKey.Field(len(r.stim.Samples)),
	)
	log.Debug("run started", "seed", seed, "sections", r.p.SectionCount,
		"samples", len(r.stim.Samples), "level_db", r.stim.Level())

	state := &runState{run: r, seed: seed, timings: make(map[string]time.Duration)}
	if _, err := r.sequence().Process(ctx, state); err != nil {
		if state.failure == nil {
			// The sequence stopped between stages.
			state.failure = faults.InStage(r.nextStage(state), aborted(ctx, err))
		}
		return nil, r.fail(ctx, log, state.failure)
	}

	if err := r.machine.advance(Status{State: Completed}); err != nil {
		return nil, r.fail(ctx, log, err)
	}
	elapsed := time.Since(started)
	capitan.Info(ctx, events.RunCompleted,
		events.RunIDKey.Field(r.id),
		events.DurationKey.Field(int(elapsed.Milliseconds())),
	)
	log.Debug("run completed", "elapsed", elapsed)

	return &ResponseBundle{
		RunID:           r.id,
		Seed:            seed,
		Stimulus:        r.stim,
		BasilarMembrane: state.bm,
		AuditoryNerve:   state.an,
		Brainstem:       state.bs,
		ParametersUsed:  r.p.Clone(),
		Started:         started,
		Timings:         state.timings,
	}, nil
}

func aborted(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, faults.ErrAborted) {
		return fmt.Errorf("%w: %v", faults.ErrAborted, ctx.Err())
	}
	return err
}

// nextStage is the first stage that has not completed.
func (r *Run) nextStage(s *runState) string {
	for _, name := range r.machine.order {
		if _, done := s.timings[name]; !done {
			return name
		}
	}
	return r.machine.order[len(r.machine.order)-1]
}

func (r *Run) fail(ctx context.Context, log *slog.Logger, err error) error {
	stage, _ := faults.Stage(err)
	_ = r.machine.advance(Status{State: Failed, Stage: stage})
	capitan.Error(ctx, events.RunFailed,
		events.RunIDKey.Field(r.id),
		events.StageKey.Field(stage),
		events.ErrorKey.Field(err.Error()),
	)
	log.Debug("run failed", "stage", stage, "error", err)
	return err
}

// sequence builds the stage chain for this run.
func (r *Run) sequence() pipz.Chainable[*runState] {
	stages := []pipz.Chainable[*runState]{
		r.stage(cochlea.StageName, func(ctx context.Context, s *runState) error {
			solver, err := cochlea.New(r.p, cochlea.WithObserver(r.observer))
			if err != nil {
				return err
			}
			s.bm, err = solver.Solve(ctx, r.stim)
			return err
		}),
		r.stage(anf.StageName, func(ctx context.Context, s *runState) error {
			gen, err := anf.New(r.p, s.seed, anf.WithObserver(r.observer))
			if err != nil {
				return err
			}
			s.an, err = gen.Generate(ctx, s.bm)
			return err
		}),
	}
	if r.o.brainstem {
		stages = append(stages, r.stage(brainstem.StageName, func(ctx context.Context, s *runState) error {
			bs, err := brainstem.New(r.p, r.o.model, brainstem.WithObserver(r.observer))
			if err != nil {
				return err
			}
			s.bs, err = bs.Simulate(ctx, s.an)
			return err
		}))
	}
	return pipz.NewSequence("corti", stages...)
}

// stage wraps fn with lifecycle bookkeeping: state transition, events,
// timing and stage attribution of errors.
func (r *Run) stage(name string, fn func(context.Context, *runState) error) pipz.Chainable[*runState] {
	return pipz.Apply(name, func(ctx context.Context, s *runState) (*runState, error) {
		if err := r.machine.advance(Status{State: Running, Stage: name}); err != nil {
			s.failure = faults.InStage(name, err)
			return s, s.failure
		}
		if err := ctx.Err(); err != nil {
			s.failure = faults.InStage(name, fmt.Errorf("%w: %v", faults.ErrAborted, err))
			return s, s.failure
		}

		capitan.Info(ctx, events.StageStarted,
			events.RunIDKey.Field(r.id),
			events.StageKey.Field(name),
		)
		start := time.Now()
		err := fn(ctx, s)
		elapsed := time.Since(start)
		if err != nil {
			s.failure = faults.InStage(name, aborted(ctx, err))
			capitan.Error(ctx, events.StageFailed,
				events.RunIDKey.Field(r.id),
				events.StageKey.Field(name),
				events.ErrorKey.Field(err.Error()),
			)
			return s, s.failure
		}

		s.timings[name] = elapsed
		fields := []capitan.Field{
			events.RunIDKey.Field(r.id),
			events.StageKey.Field(name),
			events.DurationKey.Field(int(elapsed.Milliseconds())),
		}
		if name == anf.StageName {
			fields = append(fields, events.SpikesKey.Field(s.an.SpikeCount()))
		}
		capitan.Info(ctx, events.StageCompleted, fields...)
		r.o.logger.Debug("stage completed", "run", r.id, "stage", name, "elapsed", elapsed)
		return s, nil
	})
}
