package models

import (
	"fmt"
	"strings"
)

// Macro is a named step sequence bound to a hotkey combination.
type Macro struct {
	Name        string   `json:"name"`
	Memo        string   `json:"memo"`
	TriggerKeys []string `json:"trigger_keys"`
	Steps       []*Step  `json:"steps"`
}

// NewDefaultMacro returns the macro the console adds when the operator asks for a new one.
func NewDefaultMacro(n int) *Macro {
	return &Macro{
		Name:        fmt.Sprintf("NewMacro%d", n),
		TriggerKeys: []string{},
		Steps:       []*Step{NewDelay(200)},
	}
}

// Clone returns a deep copy of the macro that shares nothing with m.
func (m *Macro) Clone() *Macro {
	c := &Macro{
		Name:        m.Name,
		Memo:        m.Memo,
		TriggerKeys: append([]string{}, m.TriggerKeys...),
		Steps:       make([]*Step, 0, len(m.Steps)),
	}
	for _, s := range m.Steps {
		if s != nil {
			c.Steps = append(c.Steps, s.Clone())
		}
	}
	return c
}

// TriggerText joins the trigger keys for display, or "-" when there are none.
func (m *Macro) TriggerText() string {
	keys := cleanKeys(m.TriggerKeys)
	if len(keys) == 0 {
		return "-"
	}
	return strings.Join(keys, " + ")
}

// InvalidStep returns the index of the first delay step with an invalid range, or -1.
func (m *Macro) InvalidStep() int {
	for i, s := range m.Steps {
		if s != nil && s.RangeError() != nil {
			return i
		}
	}
	return -1
}

// Valid reports whether every delay range in the macro is valid.
func (m *Macro) Valid() bool {
	return m.InvalidStep() < 0
}

// Signature returns the normalized hotkey signature of the macro's trigger.
func (m *Macro) Signature() string {
	return HotkeySignature(m.TriggerKeys)
}

// InsertStepAfter inserts s after index i; a negative or out of range i appends.
// It returns the index of the inserted step.
func (m *Macro) InsertStepAfter(i int, s *Step) int {
	if i < 0 || i >= len(m.Steps) {
		m.Steps = append(m.Steps, s)
		return len(m.Steps) - 1
	}
	m.Steps = append(m.Steps, nil)
	copy(m.Steps[i+2:], m.Steps[i+1:])
	m.Steps[i+1] = s
	return i + 1
}

// RemoveStep deletes the step at i and returns the index that should be
// selected afterwards (-1 when the list is empty).
func (m *Macro) RemoveStep(i int) (int, bool) {
	if i < 0 || i >= len(m.Steps) {
		return -1, false
	}
	m.Steps = append(m.Steps[:i], m.Steps[i+1:]...)
	if len(m.Steps) == 0 {
		return -1, true
	}
	if i >= len(m.Steps) {
		i = len(m.Steps) - 1
	}
	return i, true
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
