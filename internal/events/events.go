// Package events declares the capitan signals and field keys emitted over
// the lifetime of a simulation run.
package events

import "github.com/zoobzio/capitan"

// Signals for run lifecycle events.
const (
	RunStarted     = capitan.Signal("corti.run.started")
	RunCompleted   = capitan.Signal("corti.run.completed")
	RunFailed      = capitan.Signal("corti.run.failed")
	StageStarted   = capitan.Signal("corti.stage.started")
	StageCompleted = capitan.Signal("corti.stage.completed")
	StageFailed    = capitan.Signal("corti.stage.failed")
	Progress       = capitan.Signal("corti.stage.progress")
	ArchiveWritten = capitan.Signal("corti.archive.written")
)

// Keys for event fields.
var (
	// Run identification.
	RunIDKey    = capitan.NewStringKey("corti.run.id")
	StimulusKey = capitan.NewStringKey("corti.stimulus")
	LevelKey    = capitan.NewFloat64Key("corti.stimulus.level")
	SeedKey     = capitan.NewStringKey("corti.seed") // decimal uint64

	// Stage progress.
	StageKey    = capitan.NewStringKey("corti.stage")
	FractionKey = capitan.NewFloat64Key("corti.progress.fraction")
	DurationKey = capitan.NewIntKey("corti.duration.ms")

	// Model dimensions.
	SectionsKey = capitan.NewIntKey("corti.sections")
	SamplesKey  = capitan.NewIntKey("corti.samples")
	SpikesKey   = capitan.NewIntKey("corti.spikes")

	// Errors and output.
	ErrorKey = capitan.NewStringKey("corti.error")
	PathKey  = capitan.NewStringKey("corti.path")
)
