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

package section_test

import (
	"testing"

	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

func TestDeclareAndEmit(t *testing.T) {
	b := section.NewBuilder()
	if err := b.Declare("Code", section.ROM0, section.Normal, nil, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	if err := b.AbsByte(0x3E); err != nil {
		t.Fatal(err)
	}
	if err := b.AbsByte(0x01); err != nil {
		t.Fatal(err)
	}
	secs := b.Sections()
	if len(secs) != 1 || len(secs[0].Data) != 2 {
		t.Fatalf("unexpected sections: %+v", secs)
	}
}

func TestPlainSectionSizeTracksData(t *testing.T) {
	b := section.NewBuilder()
	if err := b.Declare("Code", section.ROM0, section.Normal, nil, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	b.AbsByte(0x3E)
	b.AbsByte(0x01)
	if err := b.DS(3, nil); err != nil {
		t.Fatal(err)
	}
	secs := b.Sections()
	if secs[0].Size != uint32(len(secs[0].Data)) || secs[0].Size != 5 {
		t.Fatalf("Size should track Data length (5), got Size=%d len(Data)=%d", secs[0].Size, len(secs[0].Data))
	}
}

func TestDSReservesSpaceInRAMSection(t *testing.T) {
	b := section.NewBuilder()
	if err := b.Declare("Vars", section.WRAM0, section.Normal, nil, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	if err := b.DS(4, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.DS(2, nil); err != nil {
		t.Fatal(err)
	}
	secs := b.Sections()
	if secs[0].Size != 6 {
		t.Fatalf("RAM section should reserve 6 bytes, got Size=%d", secs[0].Size)
	}
	if secs[0].Data != nil {
		t.Fatalf("RAM section should carry no Data, got %v", secs[0].Data)
	}
	if err := b.DS(1, []byte{0xAA}); err == nil {
		t.Fatal("expected error specifying a fill byte in a RAM section")
	}
}

func TestFragmentConcatenates(t *testing.T) {
	b := section.NewBuilder()
	if err := b.Declare("A", section.ROM0, section.Fragment, nil, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	b.AbsByte(1)
	if err := b.Declare("A", section.ROM0, section.Fragment, nil, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	b.AbsByte(2)

	secs := b.Sections()
	if len(secs) != 1 {
		t.Fatalf("expected one merged section, got %d", len(secs))
	}
	if got := len(secs[0].Data); got != 2 {
		t.Fatalf("fragment pieces should concatenate to length %d, got %d", 2, got)
	}
}

func TestUnionMaxArmSize(t *testing.T) {
	b := section.NewBuilder()
	if err := b.Declare("U", section.ROM0, section.Normal, nil, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginUnion(); err != nil {
		t.Fatal(err)
	}
	b.AbsByte(1)
	b.AbsByte(2)
	b.AbsByte(3)
	if err := b.NextUnionArm(); err != nil {
		t.Fatal(err)
	}
	b.AbsByte(9)
	if err := b.EndUnion(); err != nil {
		t.Fatal(err)
	}
	secs := b.Sections()
	if len(secs) != 1 {
		t.Fatalf("expected one union section, got %d", len(secs))
	}
	if secs[0].Size != 3 {
		t.Fatalf("union size should be the largest arm (3), got %d", secs[0].Size)
	}
}

func TestPushPop(t *testing.T) {
	b := section.NewBuilder()
	b.Declare("A", section.WRAM0, section.Normal, nil, nil, section.Align{})
	b.Push()
	b.Declare("B", section.WRAM0, section.Normal, nil, nil, section.Align{})
	if b.Active().Name != "B" {
		t.Fatalf("active should be B, got %s", b.Active().Name)
	}
	if err := b.Pop(); err != nil {
		t.Fatal(err)
	}
	if b.Active().Name != "A" {
		t.Fatalf("active should be restored to A, got %s", b.Active().Name)
	}
	if err := b.Pop(); err == nil {
		t.Fatal("expected error popping an empty stack")
	}
}

func TestAlignPadFixed(t *testing.T) {
	b := section.NewBuilder()
	org := uint16(0x0010)
	if err := b.Declare("A", section.ROM0, section.Normal, &org, nil, section.Align{}); err != nil {
		t.Fatal(err)
	}
	b.AbsByte(1)
	if err := b.AlignPad(section.Align{N: 4}); err != nil { // align to 16
		t.Fatal(err)
	}
	if got := len(b.Active().Data); got != 16 {
		t.Fatalf("expected 16 bytes (1 data byte, then padding $0011-$001F), got %d", got)
	}
}

func TestValidateOutOfWindow(t *testing.T) {
	org := uint16(0x8000) // ROM0 window is 0x0000-0x3FFF
	s := &section.Section{Name: "Bad", Type: section.ROM0, Org: &org, Size: 1}
	if err := s.Validate(); err == nil {
		t.Fatal("expected out-of-window error")
	}
}

func TestOverlapsIgnoresZeroSize(t *testing.T) {
	o1, o2 := uint16(0x0000), uint16(0x0000)
	a := &section.Section{Org: &o1, Size: 0}
	b := &section.Section{Org: &o2, Size: 10}
	if a.Overlaps(b) {
		t.Fatal("zero-size sections must never overlap")
	}
}

func TestPatchRecordsPos(t *testing.T) {
	b := section.NewBuilder()
	b.Declare("A", section.ROM0, section.Normal, nil, nil, section.Align{})
	pos := symbol.Pos{File: "main.asm", Line: 7}
	expr, _ := b.PC()
	if err := b.RelByte(expr, pos); err != nil {
		t.Fatal(err)
	}
	p := b.Active().Patches[0]
	if p.Pos != pos {
		t.Fatalf("patch position not recorded: %+v", p.Pos)
	}
}
