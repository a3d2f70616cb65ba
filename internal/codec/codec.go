// Package codec converts macro records to and from the device's JSON document.
//
// The document is versioned and deliberately sparse: steps only carry the
// fields their type needs, and absent fields decode to zero.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pandeptwidyaop/macrosync/internal/models"
)

// Version is the document format version written by Encode.
const Version = 1

var (
	// ErrNilCollection is returned by Encode when given a nil macro list.
	ErrNilCollection = errors.New("macro collection is nil")
	// ErrMalformedDocument wraps any failure to parse a document.
	ErrMalformedDocument = errors.New("malformed macro document")
)

type document struct {
	Version int         `json:"version"`
	Macros  []wireMacro `json:"macros"`
}

type wireMacro struct {
	Name    string      `json:"name"`
	Memo    string      `json:"memo"`
	Trigger wireTrigger `json:"trigger"`
	Steps   []wireStep  `json:"steps"`
}

type wireTrigger struct {
	Keys []string `json:"keys"`
}

type wireStep struct {
	Type       string `json:"type"`
	Key        string `json:"key,omitempty"`
	DurationMs *int   `json:"durationMs,omitempty"`
	MinMs      *int   `json:"minMs,omitempty"`
	MaxMs      *int   `json:"maxMs,omitempty"`
}

// Encode renders macros as an indented version 1 document.
// Characters outside ASCII and HTML-sensitive characters are written as-is.
func Encode(macros []*models.Macro) (string, error) {
	if macros == nil {
		return "", ErrNilCollection
	}

	doc := document{Version: Version, Macros: make([]wireMacro, 0, len(macros))}
	for _, m := range macros {
		if m == nil {
			continue
		}
		doc.Macros = append(doc.Macros, encodeMacro(m))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode macro document: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func encodeMacro(m *models.Macro) wireMacro {
	w := wireMacro{
		Name:    m.Name,
		Memo:    m.Memo,
		Trigger: wireTrigger{Keys: make([]string, 0, len(m.TriggerKeys))},
		Steps:   make([]wireStep, 0, len(m.Steps)),
	}
	for _, k := range m.TriggerKeys {
		if k = strings.TrimSpace(k); k != "" {
			w.Trigger.Keys = append(w.Trigger.Keys, k)
		}
	}
	for _, s := range m.Steps {
		if s == nil {
			continue
		}
		w.Steps = append(w.Steps, encodeStep(s))
	}
	return w
}

func encodeStep(s *models.Step) wireStep {
	w := wireStep{Type: string(s.Type)}
	switch s.Type.Kind() {
	case models.StepDelay:
		if s.HasRange() {
			w.MinMs = intPtr(s.MinMs)
			w.MaxMs = intPtr(s.MaxMs)
		} else {
			w.DurationMs = intPtr(s.DurationMs)
		}
	case models.StepTap, models.StepKeyDown, models.StepKeyUp:
		w.Key = s.Key
	default:
		w.Key = s.Key
		w.DurationMs = positive(s.DurationMs)
		w.MinMs = positive(s.MinMs)
		w.MaxMs = positive(s.MaxMs)
	}
	return w
}

// Decode parses a document. Blank input yields an empty list; property
// names are matched case-insensitively and unknown step types are kept.
func Decode(text string) ([]*models.Macro, error) {
	if strings.TrimSpace(text) == "" {
		return []*models.Macro{}, nil
	}

	var doc document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	out := make([]*models.Macro, 0, len(doc.Macros))
	for _, w := range doc.Macros {
		out = append(out, decodeMacro(w))
	}
	return out, nil
}

func decodeMacro(w wireMacro) *models.Macro {
	m := &models.Macro{
		Name:        w.Name,
		Memo:        w.Memo,
		TriggerKeys: make([]string, 0, len(w.Trigger.Keys)),
		Steps:       make([]*models.Step, 0, len(w.Steps)),
	}
	m.TriggerKeys = append(m.TriggerKeys, w.Trigger.Keys...)
	for _, ws := range w.Steps {
		m.Steps = append(m.Steps, decodeStep(ws))
	}
	return m
}

func decodeStep(w wireStep) *models.Step {
	s := &models.Step{
		Type:       models.StepType(w.Type),
		Key:        w.Key,
		DurationMs: deref(w.DurationMs),
		MinMs:      deref(w.MinMs),
		MaxMs:      deref(w.MaxMs),
	}
	if s.Type.Kind() == models.StepDelay {
		s.Key = ""
	}
	return s
}

// DecodeFile reads and decodes a document from the local filesystem.
func DecodeFile(path string) ([]*models.Macro, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(string(data))
}

// EncodeFile writes macros to a local file.
func EncodeFile(path string, macros []*models.Macro) error {
	text, err := Encode(macros)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text+"\n"), 0644)
}

func intPtr(v int) *int { return &v }

func positive(v int) *int {
	if v > 0 {
		return &v
	}
	return nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
