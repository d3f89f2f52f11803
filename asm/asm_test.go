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
	"testing"
)

// assembleOK assembles src and fails the test on any error, returning the
// single section's emitted bytes.
func assembleOK(t *testing.T, src string) []byte {
	t.Helper()
	return assembleOKOpts(t, src, Options{})
}

func assembleOKOpts(t *testing.T, src string, opts Options) []byte {
	t.Helper()
	tbl, sb, _, err := assembleSource("test.asm", src, opts)
	if err != nil {
		t.Fatalf("assembleSource: %+v", err)
	}
	secs := sb.Sections()
	if len(secs) == 0 {
		t.Fatalf("no sections emitted")
	}
	_ = tbl
	return secs[0].Data
}

func assertBytes(t *testing.T, got []byte, want ...byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("byte count: got %d (% 02X), want %d (% 02X)", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %02X, want %02X (full: % 02X)", i, got[i], want[i], got)
		}
	}
}

// TestAssemble_constantFolding covers spec.md §8 scenario 1: arithmetic
// and HIGH/LOW on a constant fold entirely at assemble time.
func TestAssemble_constantFolding(t *testing.T) {
	src := `
SECTION "main", ROM0[$0000]
DEF N EQU 3
DB N+1, N*N, HIGH($1234), LOW($1234)
`
	assertBytes(t, assembleOK(t, src), 0x04, 0x09, 0x12, 0x34)
}

// TestAssemble_fixedPointIntrinsics covers spec.md §4.4: FMUL/FDIV and
// the trig intrinsics fold entirely at assemble time over Q16 operands.
func TestAssemble_fixedPointIntrinsics(t *testing.T) {
	src := `
SECTION "main", ROM0[$0000]
DL FMUL($20000, $30000)
DL FDIV($60000, $20000)
DL SIN(0)
`
	assertBytes(t, assembleOK(t, src),
		0x00, 0x00, 0x06, 0x00,
		0x00, 0x00, 0x03, 0x00,
		0x00, 0x00, 0x00, 0x00)
}

// TestAssemble_reptUniqueID covers spec.md §8 scenario 3: \@ expands to
// a distinct small integer on each REPT iteration.
func TestAssemble_reptUniqueID(t *testing.T) {
	src := `
SECTION "main", ROM0[$0000]
REPT 3
	DB \@
ENDR
`
	got := assembleOK(t, src)
	if len(got) != 3 {
		t.Fatalf("got %d bytes, want 3: % 02X", len(got), got)
	}
	seen := map[byte]bool{}
	for _, b := range got {
		if seen[b] {
			t.Errorf("\\@ repeated value %d across iterations: % 02X", b, got)
		}
		seen[b] = true
	}
}

// TestAssemble_ldhPeephole covers spec.md §8 scenario 4: with the
// optimization flag on, "LD A,[$FF80]" folds to the LDH form; off, it
// keeps the absolute form. "LDH" always forces the short form.
func TestAssemble_ldhPeephole(t *testing.T) {
	src := "SECTION \"main\", ROM0[$0000]\nLD A, [$FF80]\n"

	assertBytes(t, assembleOKOpts(t, src, Options{OptimizeLDH: true}), 0xF0, 0x80)
	assertBytes(t, assembleOKOpts(t, src, Options{OptimizeLDH: false}), 0xFA, 0x80, 0xFF)

	srcLDH := "SECTION \"main\", ROM0[$0000]\nLDH A, [$FF80]\n"
	assertBytes(t, assembleOK(t, srcLDH), 0xF0, 0x80)
}

// TestAssemble_operatorVsLiteralPrefix guards the lexer's '%'/'&'
// disambiguation: both characters are binary/octal literal prefixes at
// the start of a value and modulo/bitwise-and operators right after one.
func TestAssemble_operatorVsLiteralPrefix(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want byte
	}{
		{"binary literal", "%1010", 0x0A},
		{"octal literal", "&17", 0x0F},
		{"modulo operator", "10 % 3", 0x01},
		{"bitwise and operator", "12 & 10", 0x08},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := fmt.Sprintf("SECTION \"main\", ROM0[$0000]\nDB %s\n", c.expr)
			assertBytes(t, assembleOK(t, src), c.want)
		})
	}
}

// TestAssemble_conditional exercises the IF/ELIF/ELSE/ENDC state machine.
func TestAssemble_conditional(t *testing.T) {
	src := `
SECTION "main", ROM0[$0000]
DEF N EQU 2
IF N == 1
	DB 1
ELIF N == 2
	DB 2
ELSE
	DB 3
ENDC
`
	assertBytes(t, assembleOK(t, src), 0x02)
}

// TestAssemble_macroArgs exercises macro invocation and \1 argument
// substitution.
func TestAssemble_macroArgs(t *testing.T) {
	src := `
SECTION "main", ROM0[$0000]
putByte: MACRO
	DB \1
ENDM
	putByte 7
	putByte 9
`
	assertBytes(t, assembleOK(t, src), 0x07, 0x09)
}

// TestAssemble_instructionEncodings spot-checks a representative sample
// of opcode encodings across the addressing-mode families.
func TestAssemble_instructionEncodings(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []byte
	}{
		{"nop", "NOP", []byte{0x00}},
		{"ld r,r", "LD B, C", []byte{0x41}},
		{"ld r,n", "LD B, 5", []byte{0x06, 0x05}},
		{"ld rr,nn", "LD HL, $1234", []byte{0x21, 0x34, 0x12}},
		{"ld mem hl a", "LD [HL], A", []byte{0x77}},
		{"inc rr", "INC BC", []byte{0x03}},
		{"add a,r", "ADD A, B", []byte{0x80}},
		{"add hl,rr", "ADD HL, DE", []byte{0x19}},
		{"push/pop", "PUSH AF\nPOP AF", []byte{0xF5, 0xF1}},
		{"call", "CALL $0150", []byte{0xCD, 0x50, 0x01}},
		{"rst", "RST $08", []byte{0xCF}},
		{"cb bit", "BIT 3, H", []byte{0xCB, 0x5C}},
		{"cb rotate", "RLC C", []byte{0xCB, 0x01}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := "SECTION \"main\", ROM0[$0000]\n" + c.src + "\n"
			assertBytes(t, assembleOK(t, src), c.want...)
		})
	}
}
