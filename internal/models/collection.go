package models

// FindLastByName returns the index of the last macro with the given name, or -1.
// The console uses it to keep its selection after the list is reloaded.
func FindLastByName(macros []*Macro, name string) int {
	if name == "" {
		return -1
	}
	for i := len(macros) - 1; i >= 0; i-- {
		if macros[i] != nil && macros[i].Name == name {
			return i
		}
	}
	return -1
}

// MoveMacro swaps the macro at i with its neighbour at i+delta.
// It returns the new index, or i unchanged when the move is out of range.
func MoveMacro(macros []*Macro, i, delta int) int {
	j := i + delta
	if i < 0 || i >= len(macros) || j < 0 || j >= len(macros) {
		return i
	}
	macros[i], macros[j] = macros[j], macros[i]
	return j
}

// FirstInvalid returns the first macro holding an invalid delay range and the
// offending step index.
func FirstInvalid(macros []*Macro) (*Macro, int) {
	for _, m := range macros {
		if m == nil {
			continue
		}
		if i := m.InvalidStep(); i >= 0 {
			return m, i
		}
	}
	return nil, -1
}
