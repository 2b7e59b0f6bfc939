package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/zoobzio/capitan"

	"github.com/linuxmatters/corti/internal/anf"
	"github.com/linuxmatters/corti/internal/brainstem"
	"github.com/linuxmatters/corti/internal/cochlea"
	"github.com/linuxmatters/corti/internal/events"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/progress"
	"github.com/linuxmatters/corti/internal/stimulus"
)

const testRate = 100e3

func smallParams() params.ModelParameters {
	return params.WithSections(20, testRate)
}

func toneSet(t *testing.T, fs float64, levels ...float64) stimulus.Set {
	t.Helper()
	set, err := stimulus.Synthesize(stimulus.ToneTemplate(1000, 0.01, levels...), fs)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestRunEndToEnd(t *testing.T) {
	p := smallParams()
	stim := toneSet(t, testRate, 60)[0]
	run := New(WithSeed(42)).NewRun(stim, p)

	b, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if got := run.Status(); got.State != Completed {
		t.Errorf("Status() = %v, want completed", got)
	}
	if b.RunID != run.ID() || b.Seed != 42 {
		t.Errorf("bundle ID %q seed %d", b.RunID, b.Seed)
	}
	if !reflect.DeepEqual(b.ParametersUsed, p) {
		t.Error("ParametersUsed differs from the input parameters")
	}
	if b.BasilarMembrane.Sections() != 20 || b.BasilarMembrane.Samples() != len(stim.Samples) {
		t.Errorf("basilar membrane output %d x %d", b.BasilarMembrane.Sections(), b.BasilarMembrane.Samples())
	}
	if b.AuditoryNerve.SectionCount != 20 || len(b.AuditoryNerve.Trains) == 0 {
		t.Errorf("auditory nerve output has %d trains", len(b.AuditoryNerve.Trains))
	}
	if b.Brainstem == nil || len(b.Brainstem.Response) != len(stim.Samples) {
		t.Fatal("missing brainstem response")
	}
	for _, stage := range []string{cochlea.StageName, anf.StageName, brainstem.StageName} {
		if _, ok := b.Timings[stage]; !ok {
			t.Errorf("no timing for %s", stage)
		}
	}
}

func TestRunDefaultModel(t *testing.T) {
	if testing.Short() {
		t.Skip("full 1000 section model")
	}
	p := params.Default()
	set, err := stimulus.Synthesize(stimulus.ToneTemplate(1000, 0.02, 60), p.SampleRate)
	if err != nil {
		t.Fatal(err)
	}
	stim := set[0]
	o := New(WithSeed(42))

	b, err := o.Run(context.Background(), stim, p)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !reflect.DeepEqual(b.ParametersUsed, p) {
		t.Error("ParametersUsed differs from the input parameters")
	}
	if b.BasilarMembrane.Sections() != p.SectionCount || b.BasilarMembrane.Samples() != len(stim.Samples) {
		t.Errorf("basilar membrane output %d x %d", b.BasilarMembrane.Sections(), b.BasilarMembrane.Samples())
	}
	if b.BasilarMembrane.SampleRate != p.SampleRate || b.AuditoryNerve.SampleRate != p.SampleRate {
		t.Errorf("stage rates %v / %v, want %v", b.BasilarMembrane.SampleRate, b.AuditoryNerve.SampleRate, p.SampleRate)
	}

	perClass := map[anf.SRClass]int{}
	spikes := 0
	for _, tr := range b.AuditoryNerve.Trains {
		perClass[tr.Class]++
		spikes += len(tr.SpikeTimes)
	}
	if perClass[anf.HighSR] != 6000 || perClass[anf.LowSR] != 4000 {
		t.Errorf("trains per class = %v, want 6000 high and 4000 low", perClass)
	}
	if spikes == 0 {
		t.Error("no spikes")
	}
	if b.Brainstem == nil || b.Brainstem.SampleRate != stim.SampleRate {
		t.Fatal("brainstem missing or at the wrong rate")
	}
	if len(b.Brainstem.Response) != len(stim.Samples) {
		t.Errorf("brainstem response has %d samples", len(b.Brainstem.Response))
	}

	again, err := o.Run(context.Background(), stim, p)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(b.BasilarMembrane.Velocity, again.BasilarMembrane.Velocity) {
		t.Error("basilar membrane velocity differs between seeded runs")
	}
	if !reflect.DeepEqual(b.AuditoryNerve.Trains, again.AuditoryNerve.Trains) {
		t.Error("spike trains differ between seeded runs")
	}
	if !reflect.DeepEqual(b.Brainstem.Response, again.Brainstem.Response) {
		t.Error("brainstem response differs between seeded runs")
	}
}

func TestRunIsReproducibleWithSeed(t *testing.T) {
	p := smallParams()
	stim := toneSet(t, testRate, 60)[0]
	o := New(WithSeed(42))

	a, err := o.Run(context.Background(), stim, p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := o.Run(context.Background(), stim, p)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.AuditoryNerve.Trains, b.AuditoryNerve.Trains) {
		t.Error("spike trains differ between seeded runs")
	}
	if !reflect.DeepEqual(a.Brainstem, b.Brainstem) {
		t.Error("brainstem response differs between seeded runs")
	}
	if a.RunID == b.RunID {
		t.Error("runs share an ID")
	}
}

func TestUnseededRunRecordsSeed(t *testing.T) {
	o := New(WithoutBrainstem())
	stim := toneSet(t, testRate, 60)[0]
	a, err := o.Run(context.Background(), stim, smallParams())
	if err != nil {
		t.Fatal(err)
	}
	b, err := o.Run(context.Background(), stim, smallParams())
	if err != nil {
		t.Fatal(err)
	}
	if a.Seed == b.Seed {
		t.Errorf("two unseeded runs drew seed %d", a.Seed)
	}
	if a.Brainstem != nil {
		t.Error("brainstem ran while disabled")
	}
}

func TestValidationFailsBeforeAnyStage(t *testing.T) {
	stim := toneSet(t, testRate, 60)[0]
	bad := smallParams()
	bad.SectionCount = 0

	tests := []struct {
		name string
		stim stimulus.Stimulus
		p    params.ModelParameters
	}{
		{"parameters", stim, bad},
		{"sample rate", toneSet(t, 48000, 60)[0], smallParams()},
		{"empty stimulus", stimulus.Stimulus{Name: "empty", SampleRate: testRate}, smallParams()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			o := New(WithSeed(1), WithObserver(progress.Func(func(string, float64) { called = true })))
			run := o.NewRun(tt.stim, tt.p)
			b, err := run.Execute(context.Background())
			if b != nil {
				t.Error("partial bundle returned")
			}
			if !errors.Is(err, faults.ErrInvalidParameters) {
				t.Fatalf("Execute() error = %v, want ErrInvalidParameters", err)
			}
			if stage, _ := faults.Stage(err); stage != ValidateStage {
				t.Errorf("stage = %q, want %q", stage, ValidateStage)
			}
			if called {
				t.Error("progress reported for invalid input")
			}
			if got := run.Status(); got.State != Failed {
				t.Errorf("Status() = %v", got)
			}
		})
	}
}

func TestStageErrorsCarryStage(t *testing.T) {
	p := params.WithSections(200, 30e3)
	stim := toneSet(t, 30e3, 60)[0]

	run := New(WithSeed(1)).NewRun(stim, p)
	b, err := run.Execute(context.Background())
	if b != nil {
		t.Error("partial bundle returned")
	}
	if !errors.Is(err, faults.ErrNumericalInstability) {
		t.Fatalf("Execute() error = %v, want ErrNumericalInstability", err)
	}
	var se *faults.StageError
	if !errors.As(err, &se) || se.Stage != cochlea.StageName {
		t.Errorf("error %v not attributed to the cochlea", err)
	}
	if got := run.Status(); got != (Status{State: Failed, Stage: cochlea.StageName}) {
		t.Errorf("Status() = %v", got)
	}
}

func TestCancelledRunAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithSeed(1)).Run(ctx, toneSet(t, testRate, 60)[0], smallParams())
	if !errors.Is(err, faults.ErrAborted) {
		t.Errorf("Run() error = %v, want ErrAborted", err)
	}
}

func TestExecuteOnce(t *testing.T) {
	run := New(WithSeed(1), WithoutBrainstem()).NewRun(toneSet(t, testRate, 60)[0], smallParams())
	if _, err := run.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := run.Execute(context.Background()); err == nil {
		t.Error("second Execute() succeeded")
	}
}

func TestRunSet(t *testing.T) {
	set := toneSet(t, testRate, 40, 60, 80)
	bundles, err := New(WithSeed(3), WithConcurrency(2)).RunSet(context.Background(), set, smallParams())
	if err != nil {
		t.Fatalf("RunSet() = %v", err)
	}
	if len(bundles) != 3 {
		t.Fatalf("got %d bundles", len(bundles))
	}
	for i, b := range bundles {
		if b.Stimulus.Level() != set[i].Level() {
			t.Errorf("bundle %d level %g, want %g", i, b.Stimulus.Level(), set[i].Level())
		}
	}

	mixed := append(stimulus.Set{}, set[0], toneSet(t, 48000, 60)[0])
	bundles, err = New(WithSeed(3)).RunSet(context.Background(), mixed, smallParams())
	if err == nil || bundles != nil {
		t.Errorf("RunSet() with a bad member = %v, %v", bundles, err)
	}
	if _, err := New().RunSet(context.Background(), nil, smallParams()); !errors.Is(err, faults.ErrInvalidParameters) {
		t.Errorf("RunSet(nil) error = %v", err)
	}
}

func TestStartedEventCarriesFullSeed(t *testing.T) {
	const seed = uint64(1)<<63 + 12345
	seeds := make(chan string, 16)
	listener := capitan.Hook(events.RunStarted, func(_ context.Context, e *capitan.Event) {
		s, _ := events.SeedKey.From(e)
		select {
		case seeds <- s:
		default:
		}
	})
	defer listener.Close()

	if _, err := New(WithSeed(seed), WithoutBrainstem()).Run(context.Background(), toneSet(t, testRate, 60)[0], smallParams()); err != nil {
		t.Fatal(err)
	}

	want := strconv.FormatUint(seed, 10)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-seeds:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("no run started event with seed %s", want)
		}
	}
}

func TestLifecycleEvents(t *testing.T) {
	completed := make(chan string, 16)
	listener := capitan.Hook(events.RunCompleted, func(_ context.Context, e *capitan.Event) {
		id, _ := events.RunIDKey.From(e)
		completed <- id
	})
	defer listener.Close()

	b, err := New(WithSeed(5), WithoutBrainstem()).Run(context.Background(), toneSet(t, testRate, 60)[0], smallParams())
	if err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case id := <-completed:
			if id == b.RunID {
				return
			}
		case <-timeout:
			t.Fatal("timeout waiting for run completed event")
		}
	}
}

func TestMachine(t *testing.T) {
	stages := []string{"a", "b"}
	tests := []struct {
		name  string
		steps []Status
		ok    bool
	}{
		{"full run", []Status{{Running, "a"}, {Running, "b"}, {Completed, ""}}, true},
		{"fail mid run", []Status{{Running, "a"}, {Failed, "a"}}, true},
		{"fail before start", []Status{{Failed, "validate"}}, true},
		{"skip stage", []Status{{Running, "b"}}, false},
		{"complete early", []Status{{Running, "a"}, {Completed, ""}}, false},
		{"complete from idle", []Status{{Completed, ""}}, false},
		{"leave terminal", []Status{{Failed, ""}, {Running, "a"}}, false},
		{"repeat stage", []Status{{Running, "a"}, {Running, "a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(stages)
			var err error
			for _, s := range tt.steps {
				if err = m.advance(s); err != nil {
					break
				}
			}
			if (err == nil) != tt.ok {
				t.Errorf("advance error = %v, want ok %v", err, tt.ok)
			}
		})
	}
}
