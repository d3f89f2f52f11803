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
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// frameKind discriminates a contextFrame's variant (spec.md §3, "Lexer
// context frame").
type frameKind int

const (
	frameInclude frameKind = iota
	frameMacro
	frameRept
)

// contextFrame is one level of the file-inclusion stack: an INCLUDE file,
// a MACRO invocation replaying its captured body, or a REPT/FOR block
// replaying its captured body once per iteration. Grounded on fstack.c's
// struct sContext, generalized into a tagged Go variant instead of a C
// union selected by nCurrentStatus.
type contextFrame struct {
	kind frameKind
	name string // file name, or macro/rept "unique id" label for __FILE__-equivalent diagnostics

	body string // full source text this frame reads from (file contents or captured body)
	pos  int    // byte offset into body of the next unread rune
	line int    // current line number within this frame, 1-based

	// macro-only
	macroArgs   []string
	macroUID    string
	macroShift  int
	macroExpand string // fully-qualified name, for BeginMacroExpansion/EndMacroExpansion

	// rept-only: iteration bookkeeping (SUPPLEMENTED: "Context-stack line
	// accounting across REPT iterations", fstack.c popcontext)
	reptBodyFirstLine int
	reptRemaining     int
	reptIteration     int
	reptForVar        string // non-empty for FOR, names the loop VAR symbol
	reptForCur         int32
	reptForStop        int32
	reptForStep        int32
}

// contextStack is the assembler's file-inclusion stack (C1). The top
// frame supplies the lexer's next characters.
type contextStack struct {
	frames   []*contextFrame
	maxDepth int

	includePaths []string
	depFile      []string // files opened via INCLUDE, for -M (fstack.c printdep)

	macroUIDCounter int
}

func newContextStack(maxDepth int, includePaths []string) *contextStack {
	return &contextStack{maxDepth: maxDepth, includePaths: includePaths}
}

func (c *contextStack) top() *contextFrame {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func (c *contextStack) push(f *contextFrame) error {
	if len(c.frames) >= c.maxDepth {
		return errors.Errorf("recursion limit (%d) exceeded", c.maxDepth)
	}
	c.frames = append(c.frames, f)
	return nil
}

// pop removes the top frame. It reports whether any frame remains.
func (c *contextStack) pop() bool {
	if len(c.frames) == 0 {
		return false
	}
	c.frames = c.frames[:len(c.frames)-1]
	return len(c.frames) > 0
}

// findInclude resolves name to a readable file path, per fstack.c's
// fstk_FindFile: "./"-relative (or otherwise rooted) paths are tried
// verbatim, otherwise every configured include path is tried in
// registration order and the first hit wins. Directories are rejected.
func (c *contextStack) findInclude(name string) (string, error) {
	try := func(p string) (string, bool) {
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			return "", false
		}
		return p, true
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		if p, ok := try(name); ok {
			return p, nil
		}
		return "", errors.Errorf("unable to find include file %q", name)
	}
	if p, ok := try(name); ok {
		return p, nil
	}
	for _, dir := range c.includePaths {
		if p, ok := try(filepath.Join(dir, name)); ok {
			return p, nil
		}
	}
	return "", errors.Errorf("unable to find include file %q", name)
}

// pushInclude opens and pushes an INCLUDE frame for name.
func (c *contextStack) pushInclude(name string) error {
	path, err := c.findInclude(name)
	if err != nil {
		return err
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	c.depFile = append(c.depFile, path)
	return c.push(&contextFrame{kind: frameInclude, name: path, body: string(data), line: 1})
}

// pushMacro pushes a MACRO invocation frame replaying body, with args
// available as \1-\9 and \@ expanding to a per-invocation unique id.
func (c *contextStack) pushMacro(name, body string, firstLine int, args []string) error {
	c.macroUIDCounter++
	f := &contextFrame{
		kind: frameMacro, name: name, body: body, line: firstLine,
		macroArgs: args, macroUID: strconv.FormatInt(int64(c.macroUIDCounter), 16),
	}
	return c.push(f)
}

// pushRept pushes a REPT frame replaying body count times.
func (c *contextStack) pushRept(body string, firstLine, count int) error {
	if count <= 0 {
		return nil
	}
	c.macroUIDCounter++
	f := &contextFrame{
		kind: frameRept, name: "REPT", body: body, line: firstLine,
		reptBodyFirstLine: firstLine, reptRemaining: count, reptIteration: 0,
		macroUID: strconv.FormatInt(int64(c.macroUIDCounter), 16),
	}
	return c.push(f)
}

// pushFor pushes a FOR frame: a REPT-like loop that also owns a VAR
// symbol stepping from start by step while the "< stop" (or "> stop" if
// step < 0) condition holds.
func (c *contextStack) pushFor(varName, body string, firstLine int, start, stop, step int32) error {
	count := forIterationCount(start, stop, step)
	if count <= 0 {
		return nil
	}
	c.macroUIDCounter++
	f := &contextFrame{
		kind: frameRept, name: "FOR", body: body, line: firstLine,
		reptBodyFirstLine: firstLine, reptRemaining: count, reptIteration: 0,
		reptForVar: varName, reptForCur: start, reptForStop: stop, reptForStep: step,
		macroUID: strconv.FormatInt(int64(c.macroUIDCounter), 16),
	}
	return c.push(f)
}

func forIterationCount(start, stop, step int32) int {
	if step == 0 {
		return 0
	}
	n := 0
	v := start
	for (step > 0 && v < stop) || (step < 0 && v > stop) {
		n++
		v += step
		if n > 1<<20 {
			break // runaway guard: the count is capped here, without a diagnostic
		}
	}
	return n
}

// restartIteration rewinds frame f to the start of its captured body for
// its next REPT/FOR iteration, per the SUPPLEMENTED behavior: each
// iteration is a distinct frame reusing the same body, so __LINE__
// reports "body line" relative to the iteration's own restart line.
func (f *contextFrame) restartIteration() {
	f.pos = 0
	f.line = f.reptBodyFirstLine
	f.reptIteration++
	f.reptRemaining--
	if f.reptForVar != "" {
		f.reptForCur += f.reptForStep
	}
}
