package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zoobzio/capitan"

	"github.com/linuxmatters/corti/internal/events"
)

// Forward translates run events into UI messages on ch until the returned
// stop function is called. Progress messages are dropped when ch is full;
// lifecycle messages wait up to a second for room.
func Forward(ch chan<- tea.Msg) (stop func()) {
	observer := capitan.Observe(func(_ context.Context, e *capitan.Event) {
		runID, _ := events.RunIDKey.From(e)

		switch e.Signal() {
		case events.RunStarted:
			level, _ := events.LevelKey.From(e)
			send(ch, RunStartMsg{RunID: runID, LevelDB: level})

		case events.Progress:
			stage, _ := events.StageKey.From(e)
			fraction, _ := events.FractionKey.From(e)
			select {
			case ch <- ProgressMsg{RunID: runID, Stage: stage, Progress: fraction}:
			default:
			}

		case events.RunCompleted:
			ms, _ := events.DurationKey.From(e)
			send(ch, RunCompleteMsg{RunID: runID, Elapsed: time.Duration(ms) * time.Millisecond})

		case events.RunFailed:
			stage, _ := events.StageKey.From(e)
			msg, _ := events.ErrorKey.From(e)
			send(ch, RunCompleteMsg{RunID: runID, Stage: stage, Error: errors.New(msg)})
		}
	})
	return func() { observer.Close() }
}

func send(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-time.After(time.Second):
	}
}
