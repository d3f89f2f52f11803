// This file is part of rgbds.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package asm

import (
	"fmt"
	"strings"

	"github.com/kkpan11/rgbds/symbol"
)

// Severity classifies a Diagnostic per spec.md §7.
type Severity int

const (
	SevWarning Severity = iota
	SevError
	SevFatal
)

// Diagnostic is one assembler message with its source position.
type Diagnostic struct {
	Pos      symbol.Pos
	Severity Severity
	Category string // warning category ("obsolete", "user", ...); empty for errors
	Message  string
}

func (d Diagnostic) String() string {
	kind := "error"
	switch d.Severity {
	case SevWarning:
		kind = "warning"
	case SevFatal:
		kind = "fatal error"
	}
	if d.Category != "" {
		return fmt.Sprintf("%s: %s [-W%s]: %s", d.Pos, kind, d.Category, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Pos, kind, d.Message)
}

// ErrAsm is a collection of diagnostics accumulated across an
// assembly run. At most 10 are kept (matching the teacher's ErrAsm); the
// rest are still counted towards the exit status but not retained.
type ErrAsm struct {
	Diags   []Diagnostic
	Dropped int
}

func (e ErrAsm) Error() string {
	var b strings.Builder
	for i, d := range e.Diags {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.String())
	}
	if e.Dropped > 0 {
		fmt.Fprintf(&b, "\n... and %d more", e.Dropped)
	}
	return b.String()
}

// HasErrors reports whether any accumulated diagnostic is an error
// (counted) rather than a mere warning.
func (e ErrAsm) HasErrors() bool {
	for _, d := range e.Diags {
		if d.Severity != SevWarning {
			return true
		}
	}
	return false
}

// add appends a diagnostic, capping retained entries at 10 like the
// teacher's ErrAsm.
func (e *ErrAsm) add(d Diagnostic) {
	if len(e.Diags) >= 10 {
		e.Dropped++
		return
	}
	e.Diags = append(e.Diags, d)
}
