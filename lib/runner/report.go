// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/romforge/patchbay/lib/manifest"
)

// Class is the final classification of one patch descriptor. Every
// descriptor in the manifest lands in exactly one class.
type Class string

const (
	// ClassMissing: no catalogued ROM matches the descriptor's hash.
	ClassMissing Class = "missing"

	// ClassPatched: the patched output was written.
	ClassPatched Class = "patched"

	// ClassFailed: download, read, patch, or write failed. The batch
	// continues; the reason is recorded.
	ClassFailed Class = "failed"

	// ClassSkipped: the output file already exists. Not an error.
	ClassSkipped Class = "skipped"
)

// Outcome records what happened to one descriptor.
type Outcome struct {
	Descriptor manifest.Descriptor
	Class      Class

	// Reason is the failure detail for ClassFailed, empty otherwise.
	Reason string
}

// Report is the complete result of one run: one outcome per manifest
// descriptor, in manifest order.
type Report struct {
	// Updated is the manifest's publish timestamp.
	Updated string

	Outcomes []Outcome
}

// Counts returns the number of outcomes per class. The values always
// sum to len(r.Outcomes).
func (r *Report) Counts() map[Class]int {
	counts := make(map[Class]int, 4)
	for _, outcome := range r.Outcomes {
		counts[outcome.Class]++
	}
	return counts
}

// classOrder fixes the display order of categories.
var classOrder = []Class{ClassPatched, ClassSkipped, ClassMissing, ClassFailed}

// classColor maps each class to its console color.
var classColor = map[Class]*color.Color{
	ClassPatched: color.New(color.FgGreen),
	ClassSkipped: color.New(color.FgCyan),
	ClassMissing: color.New(color.FgYellow),
	ClassFailed:  color.New(color.FgRed),
}

// WriteSummary writes the colored console summary: per-class counts,
// then the itemized failures. Colors degrade to plain text when the
// destination is not a terminal.
func (r *Report) WriteSummary(w io.Writer) {
	counts := r.Counts()
	fmt.Fprintf(w, "%d patches", len(r.Outcomes))
	for _, class := range classOrder {
		fmt.Fprintf(w, "  %s %d", classColor[class].Sprint(class), counts[class])
	}
	fmt.Fprintln(w)

	for _, outcome := range r.Outcomes {
		if outcome.Class != ClassFailed {
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s\n",
			classColor[ClassFailed].Sprint("failed"), outcome.Descriptor.Name, outcome.Reason)
	}
}

// WriteLog writes the plain-text run log: per-class counts followed by
// every outcome itemized under its category heading. This is the
// format written to the --log file.
func (r *Report) WriteLog(w io.Writer) {
	if r.Updated != "" {
		fmt.Fprintf(w, "manifest updated: %s\n", r.Updated)
	}

	counts := r.Counts()
	for _, class := range classOrder {
		fmt.Fprintf(w, "%s: %d\n", class, counts[class])
	}

	for _, class := range classOrder {
		if counts[class] == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", class)
		for _, outcome := range r.Outcomes {
			if outcome.Class != class {
				continue
			}
			if outcome.Reason != "" {
				fmt.Fprintf(w, "  %s (%s)\n", outcome.Descriptor.Name, outcome.Reason)
			} else {
				fmt.Fprintf(w, "  %s\n", outcome.Descriptor.Name)
			}
		}
	}
}
