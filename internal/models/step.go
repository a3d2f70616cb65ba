// Package models defines the macro records edited by the console and synced to the device.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// StepType names the action a step performs. Unrecognized spellings are kept
// verbatim so they survive a round trip through the document.
type StepType string

const (
	// StepTap presses and releases a key.
	StepTap StepType = "Tap"
	// StepDelay waits for a fixed or randomized duration.
	StepDelay StepType = "Delay"
	// StepKeyDown presses a key without releasing it.
	StepKeyDown StepType = "KeyDown"
	// StepKeyUp releases a previously pressed key.
	StepKeyUp StepType = "KeyUp"
	// StepOther is the kind reported for pass-through types.
	StepOther StepType = ""
)

// ErrInvalidRange indicates a randomized delay whose lower bound exceeds the upper bound.
var ErrInvalidRange = errors.New("MinMs must be <= MaxMs")

// Kind maps the type case-insensitively onto one of the known constants,
// or StepOther when the spelling is not recognized.
func (t StepType) Kind() StepType {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "tap":
		return StepTap
	case "delay":
		return StepDelay
	case "keydown":
		return StepKeyDown
	case "keyup":
		return StepKeyUp
	default:
		return StepOther
	}
}

// Step is one action in a macro's ordered sequence.
type Step struct {
	Type       StepType `json:"type"`
	Key        string   `json:"key"`
	DurationMs int      `json:"duration_ms"`
	MinMs      int      `json:"min_ms"`
	MaxMs      int      `json:"max_ms"`
}

func NewTap(key string) *Step     { return &Step{Type: StepTap, Key: key} }
func NewKeyDown(key string) *Step { return &Step{Type: StepKeyDown, Key: key} }
func NewKeyUp(key string) *Step   { return &Step{Type: StepKeyUp, Key: key} }

// NewDelay returns a fixed delay step.
func NewDelay(ms int) *Step {
	return &Step{Type: StepDelay, DurationMs: ms}
}

// NewRandomDelay returns a delay step with a randomized range.
func NewRandomDelay(minMs, maxMs int) *Step {
	return &Step{Type: StepDelay, MinMs: minMs, MaxMs: maxMs}
}

// IsDelay reports whether the step is a delay, regardless of spelling.
func (s *Step) IsDelay() bool {
	return s.Type.Kind() == StepDelay
}

// HasRange reports whether the step carries a randomized range.
func (s *Step) HasRange() bool {
	return s.MinMs > 0 || s.MaxMs > 0
}

// RangeValid is advisory: a range is only checked when both bounds are positive.
func (s *Step) RangeValid() bool {
	if s.MinMs <= 0 || s.MaxMs <= 0 {
		return true
	}
	return s.MinMs <= s.MaxMs
}

// RangeError returns ErrInvalidRange for a delay whose range is invalid.
func (s *Step) RangeError() error {
	if s.IsDelay() && !s.RangeValid() {
		return ErrInvalidRange
	}
	return nil
}

// Clone returns a copy of the step.
func (s *Step) Clone() *Step {
	c := *s
	return &c
}

// String renders the step the way the step list displays it.
func (s *Step) String() string {
	if s == nil {
		return ""
	}
	switch s.Type.Kind() {
	case StepDelay:
		if s.HasRange() {
			return fmt.Sprintf("Delay %d~%dms", s.MinMs, s.MaxMs)
		}
		return fmt.Sprintf("Delay %dms", s.DurationMs)
	case StepTap:
		return "Tap " + s.Key
	case StepKeyDown:
		return "KeyDown " + s.Key
	case StepKeyUp:
		return "KeyUp " + s.Key
	default:
		return strings.TrimSpace(string(s.Type) + " " + s.Key)
	}
}
