// Package ui provides the Bubbletea terminal user interface for corti
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/corti/internal/logging"
)

// Spinner frames for indeterminate progress
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// RunStatus represents the state of a single stimulus level
type RunStatus int

const (
	StatusQueued RunStatus = iota
	StatusRunning
	StatusComplete
	StatusError
)

// LevelProgress tracks progress for one stimulus level
type LevelProgress struct {
	LevelDB float64
	RunID   string
	Status  RunStatus

	// Stage tracking
	Stage      string
	StageIndex int // 0-based position of Stage in the pipeline

	Progress    float64 // within the current stage, 0.0 to 1.0
	StartTime   time.Time
	ElapsedTime time.Duration

	FailedStage string
	Error       error
}

// Overall returns the run's progress across every stage.
func (lp LevelProgress) Overall(stages int) float64 {
	switch {
	case lp.Status == StatusComplete:
		return 1
	case stages == 0 || lp.Status == StatusQueued:
		return 0
	}
	return (float64(lp.StageIndex) + lp.Progress) / float64(stages)
}

// Model is the Bubbletea model for the simulation UI
type Model struct {
	Stimulus string
	Stages   []string
	Levels   []LevelProgress

	CompletedRuns int
	FailedRuns    int

	// Global state
	StartTime time.Time
	Done      bool
	Summaries []logging.Summary
	OutputDir string
	Error     error

	// Channel for receiving run events
	ProgressChan chan tea.Msg

	spinnerIndex int

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a UI model for a stimulus simulated at each level
// through the named stages.
func NewModel(stimulus string, levels []float64, stages []string) Model {
	lp := make([]LevelProgress, len(levels))
	for i, level := range levels {
		lp[i] = LevelProgress{LevelDB: level, Status: StatusQueued}
	}
	return Model{
		Stimulus:     stimulus,
		Stages:       stages,
		Levels:       lp,
		StartTime:    time.Now(),
		ProgressChan: make(chan tea.Msg, 256),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForProgress(m.ProgressChan), tickCmd())
}

// tickCmd returns a command that sends a tick message every 100ms
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		if m.Done {
			return m, nil
		}
		m.spinnerIndex = (m.spinnerIndex + 1) % len(spinnerFrames)
		for i := range m.Levels {
			if m.Levels[i].Status == StatusRunning {
				m.Levels[i].ElapsedTime = time.Since(m.Levels[i].StartTime)
			}
		}
		return m, tickCmd()

	case RunStartMsg:
		if i := m.queued(msg.LevelDB); i >= 0 {
			m.Levels[i].RunID = msg.RunID
			m.Levels[i].Status = StatusRunning
			m.Levels[i].StartTime = time.Now()
		}
		return m, waitForProgress(m.ProgressChan)

	case ProgressMsg:
		if i := m.find(msg.RunID); i >= 0 {
			m.Levels[i] = m.updateLevelProgress(m.Levels[i], msg)
		}
		return m, waitForProgress(m.ProgressChan)

	case RunCompleteMsg:
		if i := m.find(msg.RunID); i >= 0 {
			lp := &m.Levels[i]
			if msg.Error != nil {
				lp.Status = StatusError
				lp.FailedStage = msg.Stage
				lp.Error = msg.Error
				m.FailedRuns++
			} else {
				lp.Status = StatusComplete
				lp.Progress = 1
				if msg.Elapsed > 0 {
					lp.ElapsedTime = msg.Elapsed
				}
				m.CompletedRuns++
			}
		}
		return m, waitForProgress(m.ProgressChan)

	case AllCompleteMsg:
		m.Done = true
		m.Summaries = msg.Summaries
		m.OutputDir = msg.Dir
		m.Error = msg.Error
		return m, tea.Quit
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return fmt.Sprintf("Initializing...\nLevels: %d\n", len(m.Levels))
	}
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}

// queued returns the first queued level equal to level, or -1.
func (m Model) queued(level float64) int {
	for i, lp := range m.Levels {
		if lp.Status == StatusQueued && lp.RunID == "" && lp.LevelDB == level {
			return i
		}
	}
	return -1
}

func (m Model) find(runID string) int {
	for i, lp := range m.Levels {
		if lp.RunID == runID && runID != "" {
			return i
		}
	}
	return -1
}

// updateLevelProgress applies a ProgressMsg to a level
func (m Model) updateLevelProgress(lp LevelProgress, msg ProgressMsg) LevelProgress {
	if msg.Stage != lp.Stage {
		lp.Stage = msg.Stage
		for i, s := range m.Stages {
			if s == msg.Stage {
				lp.StageIndex = i
			}
		}
	}
	lp.Progress = msg.Progress
	lp.ElapsedTime = time.Since(lp.StartTime)
	return lp
}

// waitForProgress creates a command that waits for progress messages
func waitForProgress(progressChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-progressChan
	}
}
