package ui

import (
	"time"

	"github.com/linuxmatters/corti/internal/logging"
)

// RunStartMsg indicates a stimulus level has started simulating
type RunStartMsg struct {
	RunID   string
	LevelDB float64
}

// ProgressMsg represents progress within one stage of a run
type ProgressMsg struct {
	RunID    string
	Stage    string
	Progress float64 // 0.0 to 1.0
}

// RunCompleteMsg indicates a run has finished, successfully or not
type RunCompleteMsg struct {
	RunID   string
	Elapsed time.Duration
	Stage   string // failing stage, empty on success
	Error   error
}

// AllCompleteMsg indicates every level has been simulated and saved
type AllCompleteMsg struct {
	Summaries []logging.Summary
	Dir       string
	Error     error
}

// tickMsg is sent for spinner/timer animation
type tickMsg time.Time
