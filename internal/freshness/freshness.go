// Package freshness implements the mtime-based predicate deciding whether
// a task may be skipped.
package freshness

import (
	"os"
	"time"
)

// Oracle answers IsUpToDate queries against the real filesystem.
type Oracle struct{}

// New creates a filesystem-backed Oracle.
func New() *Oracle {
	return &Oracle{}
}

// IsUpToDate reports whether a task with the given inputs and outputs may
// be skipped:
//
//   - no outputs: always false (a task with no declared product is
//     assumed to have effects).
//   - any output missing: false.
//   - otherwise true iff max(mtime(inputs)) <= min(mtime(outputs)),
//     where a missing input contributes -inf (never forces a rebuild) and
//     empty inputs trivially satisfy the comparison.
//
// stat errors are never propagated; they are treated as "missing".
func (o *Oracle) IsUpToDate(inputs, outputs []string) bool {
	if len(outputs) == 0 {
		return false
	}

	var tOut time.Time
	for i, p := range outputs {
		info, err := os.Stat(p)
		if err != nil {
			return false
		}
		if i == 0 || info.ModTime().Before(tOut) {
			tOut = info.ModTime()
		}
	}

	var tIn time.Time
	haveInput := false
	for _, p := range inputs {
		info, err := os.Stat(p)
		if err != nil {
			// Missing input: mtime -inf, doesn't force a rebuild.
			continue
		}
		if !haveInput || info.ModTime().After(tIn) {
			tIn = info.ModTime()
		}
		haveInput = true
	}

	if !haveInput {
		return true
	}

	return !tIn.After(tOut)
}
