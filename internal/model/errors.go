package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrInvariant         = errors.New("invariant violation")
	ErrMissingDependency = errors.New("missing dependency data")
)

// ConfigurationError reports an invalid simulation parameter. Fatal at start.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InvariantViolation reports an internal bug that would corrupt aggregate
// statistics if tolerated.
type InvariantViolation struct {
	AgentID string
	Day     int
	Rule    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: agent %s day %d: %s", e.AgentID, e.Day, e.Rule)
}

func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }

// MissingDependencyData reports an event whose agent is absent from the roster.
type MissingDependencyData struct {
	AgentID string
	Seq     int
	Kind    EventKind
}

func (e *MissingDependencyData) Error() string {
	return fmt.Sprintf("missing dependency data: event %d (%s) references unknown agent %q", e.Seq, e.Kind, e.AgentID)
}

func (e *MissingDependencyData) Is(target error) bool { return target == ErrMissingDependency }
