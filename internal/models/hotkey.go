package models

import (
	"sort"
	"strings"
)

var modifierOrder = map[string]int{
	"CTRL":  0,
	"ALT":   1,
	"SHIFT": 2,
}

// HotkeySignature normalizes trigger keys into a comparable form: keys are
// trimmed and upper-cased, modifiers come first in CTRL, ALT, SHIFT order,
// and the rest keep their relative order.
func HotkeySignature(keys []string) string {
	norm := cleanKeys(keys)
	for i := range norm {
		norm[i] = strings.ToUpper(norm[i])
	}
	sort.SliceStable(norm, func(i, j int) bool {
		return rank(norm[i]) < rank(norm[j])
	})
	return strings.Join(norm, "+")
}

func rank(k string) int {
	if r, ok := modifierOrder[k]; ok {
		return r
	}
	return len(modifierOrder)
}

// HotkeyConflict returns the first macro other than self whose trigger has the
// same signature as keys. An empty signature never conflicts.
func HotkeyConflict(macros []*Macro, self *Macro, keys []string) *Macro {
	sig := HotkeySignature(keys)
	if sig == "" {
		return nil
	}
	for _, m := range macros {
		if m == nil || m == self {
			continue
		}
		if m.Signature() == sig {
			return m
		}
	}
	return nil
}
