package pipeline

import (
	"fmt"
	"sync"
)

// State is the lifecycle phase of a run.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a State plus, while running or after failing, the stage
// concerned.
type Status struct {
	State State
	Stage string
}

func (s Status) String() string {
	if s.Stage == "" {
		return s.State.String()
	}
	return fmt.Sprintf("%s(%s)", s.State, s.Stage)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s.State == Completed || s.State == Failed
}

// machine guards the run lifecycle:
// Idle → Running(stage) → Running(next stage) → Completed, with Failed
// reachable from Idle and every running stage.
type machine struct {
	mu     sync.Mutex
	status Status
	order  []string
}

func newMachine(stages []string) *machine {
	return &machine{order: stages}
}

func (m *machine) current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *machine) stageIndex(stage string) int {
	for i, s := range m.order {
		if s == stage {
			return i
		}
	}
	return -1
}

// advance moves to next, rejecting transitions the lifecycle forbids.
func (m *machine) advance(next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.status
	if cur.Terminal() {
		return fmt.Errorf("run already %s", cur)
	}

	ok := false
	switch next.State {
	case Running:
		want := -1
		switch cur.State {
		case Idle:
			want = 0
		case Running:
			want = m.stageIndex(cur.Stage) + 1
		}
		ok = want >= 0 && want < len(m.order) && m.order[want] == next.Stage
	case Completed:
		ok = cur.State == Running && cur.Stage == m.order[len(m.order)-1]
	case Failed:
		ok = true
	}
	if !ok {
		return fmt.Errorf("invalid transition %s → %s", cur, next)
	}
	m.status = next
	return nil
}
