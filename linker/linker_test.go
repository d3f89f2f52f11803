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

package linker_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kkpan11/rgbds/linker"
	"github.com/kkpan11/rgbds/objfile"
	"github.com/kkpan11/rgbds/rpn"
	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// buildObject assembles a tiny one-section object by hand, without going
// through the asm front-end, to exercise the linker in isolation.
func buildObject(t *testing.T, secName string, mod section.Modifier, org *uint16, data []byte, labels map[string]uint32) *objfile.Object {
	t.Helper()
	b := section.NewBuilder()
	if err := b.Declare(secName, section.ROM0, mod, org, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	for _, by := range data {
		if err := b.AbsByte(by); err != nil {
			t.Fatal(err)
		}
	}
	tbl := symbol.New()
	for name, off := range labels {
		if _, err := tbl.DefineLabel(name, true, secName, off, symbol.Pos{File: "t.asm", Line: 1}); err != nil {
			t.Fatal(err)
		}
	}
	obj, err := objfile.FromBuilder("t.asm", b, tbl)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

func TestFragmentAcrossObjectsScenario2(t *testing.T) {
	// spec.md §8 scenario 2: "A" in file 1 with Label:: DB 1, and "A" in
	// file 2 with DB 2 -- both pieces declared FRAGMENT here; Merge also
	// joins a NORMAL piece with FRAGMENT pieces of the same name. Linked,
	// Label is at $0000, bytes are 01 02, SIZEOF("A") == 2.
	org := uint16(0)
	obj1 := buildObject(t, "A", section.Fragment, &org, []byte{1}, map[string]uint32{"Label": 0})
	obj2 := buildObject(t, "A", section.Fragment, nil, []byte{2}, nil)

	link, err := linker.Merge([]*objfile.Object{obj1, obj2})
	if err != nil {
		t.Fatal(err)
	}
	p := linker.NewPlacer()
	if err := p.Place(link.Sections); err != nil {
		t.Fatal(err)
	}
	if err := linker.ResolvePatches(link); err != nil {
		t.Fatal(err)
	}

	if len(link.Sections) != 1 {
		t.Fatalf("expected one merged section, got %d", len(link.Sections))
	}
	s := link.Sections[0]
	if !bytes.Equal(s.Data, []byte{1, 2}) {
		t.Fatalf("merged bytes = %v, want [1 2]", s.Data)
	}
	if s.Size != 2 {
		t.Fatalf("SIZEOF = %d, want 2", s.Size)
	}
	if *s.Org != 0 {
		t.Fatalf("org = %d, want 0", *s.Org)
	}

	sym, ok := link.Symbols.Lookup("Label")
	if !ok {
		t.Fatal("Label not found after merge")
	}
	if sym.Offset != 0 {
		t.Fatalf("Label offset = %d, want 0", sym.Offset)
	}
}

func TestJRRangeScenario5(t *testing.T) {
	org := uint16(0)
	b := section.NewBuilder()
	if err := b.Declare("Code", section.ROM0, section.Normal, &org, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	// JR opcode at offset 0, operand byte at offset 1: target at +0x10
	// from the byte after the operand (origin = 2).
	if err := b.AbsByte(0x18); err != nil { // JR opcode
		t.Fatal(err)
	}
	pos := symbol.Pos{File: "t.asm", Line: 1}
	target := rpn.Const(0x12) // origin(2) + 0x10
	if err := b.PCRelByte(target, pos); err != nil {
		t.Fatal(err)
	}
	tbl := symbol.New()
	obj, err := objfile.FromBuilder("t.asm", b, tbl)
	if err != nil {
		t.Fatal(err)
	}

	link, err := linker.Merge([]*objfile.Object{obj})
	if err != nil {
		t.Fatal(err)
	}
	p := linker.NewPlacer()
	if err := p.Place(link.Sections); err != nil {
		t.Fatal(err)
	}
	if err := linker.ResolvePatches(link); err != nil {
		t.Fatal(err)
	}
	if got := link.Sections[0].Data[1]; got != 0x10 {
		t.Fatalf("JR displacement = $%02X, want $10", got)
	}
}

func TestJROutOfRangeScenario5(t *testing.T) {
	org := uint16(0)
	b := section.NewBuilder()
	b.Declare("Code", section.ROM0, section.Normal, &org, nil, section.Align{})
	b.AbsByte(0x18)
	pos := symbol.Pos{File: "t.asm", Line: 1}
	target := rpn.Const(0x82) // origin(2) + 0x80, out of int8 range
	if err := b.PCRelByte(target, pos); err != nil {
		t.Fatal(err)
	}
	obj, err := objfile.FromBuilder("t.asm", b, symbol.New())
	if err != nil {
		t.Fatal(err)
	}
	link, err := linker.Merge([]*objfile.Object{obj})
	if err != nil {
		t.Fatal(err)
	}
	p := linker.NewPlacer()
	if err := p.Place(link.Sections); err != nil {
		t.Fatal(err)
	}
	if err := linker.ResolvePatches(link); err == nil {
		t.Fatal("expected an out-of-range JR error")
	}
}

func TestOverlayScenario6(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "overlay.bin")
	overlay := make([]byte, 0x8000)
	for i := range overlay {
		overlay[i] = 0xAA
	}
	if err := os.WriteFile(overlayPath, overlay, 0o644); err != nil {
		t.Fatal(err)
	}

	org := uint16(0x0100)
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	obj := buildObject(t, "Patch", section.Normal, &org, data, nil)

	link, err := linker.Merge([]*objfile.Object{obj})
	if err != nil {
		t.Fatal(err)
	}
	p := linker.NewPlacer()
	if err := p.Place(link.Sections); err != nil {
		t.Fatal(err)
	}
	if err := linker.ResolvePatches(link); err != nil {
		t.Fatal(err)
	}

	romPath := filepath.Join(dir, "out.gb")
	cfg := linker.ROMConfig{PadByte: 0xFF, Is32kMode: true, OverlayPath: overlayPath}
	if err := linker.WriteROM(romPath, link, p, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(romPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0x8000 {
		t.Fatalf("ROM size = $%X, want $8000", len(got))
	}
	for i := 0; i < 16; i++ {
		if got[0x100+i] != byte(i) {
			t.Fatalf("byte at $%04X = $%02X, want $%02X", 0x100+i, got[0x100+i], i)
		}
	}
	if got[0x0FF] != 0xAA {
		t.Fatalf("byte before section should come from overlay, got $%02X", got[0x0FF])
	}
	if got[0x110] != 0xAA {
		t.Fatalf("byte after section should come from overlay, got $%02X", got[0x110])
	}
}
