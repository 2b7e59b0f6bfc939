// Package faults defines the error kinds shared by every simulation stage.
//
// Each kind is a sentinel so callers can use errors.Is regardless of how
// much context has been wrapped around it. None of them are retryable: the
// same inputs always reproduce the same failure.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters reports parameters that violate a model invariant.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrNumericalInstability reports a step size outside the stability
	// bound or a divergent solution during integration.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrUpstreamData reports stage input that is structurally incompatible
	// with the stage consuming it.
	ErrUpstreamData = errors.New("incompatible upstream data")

	// ErrConfigParse reports a malformed or invalid configuration template.
	ErrConfigParse = errors.New("configuration parse error")

	// ErrInvalidLevel reports a non-numeric or non-finite level token.
	ErrInvalidLevel = errors.New("invalid level")

	// ErrAborted reports a run cancelled through its context.
	ErrAborted = errors.New("run aborted")
)

// InvalidParameters wraps ErrInvalidParameters with a formatted reason.
func InvalidParameters(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, fmt.Sprintf(format, args...))
}

// NumericalInstability wraps ErrNumericalInstability with a formatted reason.
func NumericalInstability(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNumericalInstability, fmt.Sprintf(format, args...))
}

// UpstreamData wraps ErrUpstreamData with a formatted reason.
func UpstreamData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstreamData, fmt.Sprintf(format, args...))
}

// ConfigParse wraps ErrConfigParse around the underlying cause.
func ConfigParse(source string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrConfigParse, source, cause)
}

// InvalidLevel wraps ErrInvalidLevel for the offending token.
func InvalidLevel(token string) error {
	return fmt.Errorf("%w: %q is not a finite number", ErrInvalidLevel, token)
}

// StageError attaches the name of the failing pipeline stage to an error.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// InStage wraps err with the stage name. A nil err stays nil and an error
// that already carries a stage is returned unchanged.
func InStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// Stage reports the stage name carried by err, if any.
func Stage(err error) (string, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
