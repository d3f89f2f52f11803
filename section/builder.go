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

package section

import (
	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/rpn"
	"github.com/kkpan11/rgbds/symbol"
)

// stackFrame is one entry of the PUSHS/POPS active-section stack.
type stackFrame struct {
	active *Section
}

// unionState tracks an in-progress UNION/NEXTU/ENDU block. Each arm is
// its own *Section (the head section doubles as the first arm); armBase
// is the offset within the *current* arm's own Data at which this arm's
// content starts (non-zero only for the head arm, which may carry bytes
// emitted into the section before the UNION block opened).
type unionState struct {
	headBase uint32 // head section's Data length when the union opened
	armBase  uint32
	maxSize  uint32 // largest arm's own content length seen so far
	head     *Section
	arm      *Section
}

// loadBlock tracks an in-progress LOAD/ENDL: while it is open, PC()
// counts from org instead of the receiving section's own address. base
// is the receiving section's write offset when the block opened.
type loadBlock struct {
	name string
	org  uint16
	bank int32
	base uint32
}

// Builder is the assembler's section-emission state: the active-section
// stack (PUSHS/POPS), the optional LOAD overlay, UNION/NEXTU/ENDU
// alternation, and the byte-emission primitives that create Patches.
type Builder struct {
	sections map[string]*Section
	order    []string

	active *Section
	stack  []stackFrame

	load  *loadBlock
	union *unionState
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{sections: make(map[string]*Section)}
}

// Sections returns every distinct top-level section (FRAGMENT/UNION
// families already merged to their head piece), in declaration order.
func (b *Builder) Sections() []*Section {
	out := make([]*Section, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.sections[n])
	}
	return out
}

// Active returns the section currently receiving emitted bytes, or nil.
func (b *Builder) Active() *Section { return b.active }

// Declare opens (or reopens) a section by name, creating it if this is
// the first time it's seen, or merging into the existing head piece
// per its modifier if not. It becomes the active section.
func (b *Builder) Declare(name string, t Type, mod Modifier, org *uint16, bank *int32, align Align) error {
	existing, ok := b.sections[name]
	if !ok {
		s := New(name, t, mod)
		s.Align = align
		s.Org = org
		s.Bank = bank
		b.sections[name] = s
		b.order = append(b.order, name)
		b.active = s
		return nil
	}

	switch mod {
	case Fragment:
		if existing.Modifier != Fragment {
			return errors.Errorf("section %q redeclared with incompatible modifier FRAGMENT", name)
		}
		piece := New(name, t, mod)
		piece.Align = align
		if err := existing.MergeFragment(piece); err != nil {
			return err
		}
		b.active = existing
		// the piece we just merged no longer exists standalone; future
		// writes append directly to existing's Data via the merged
		// offset, so track a synthetic "tail" cursor using Data length.
		return nil
	case Union:
		if existing.Modifier != Union {
			return errors.Errorf("section %q redeclared with incompatible modifier UNION", name)
		}
		b.active = existing
		base := uint32(len(existing.Data))
		b.union = &unionState{headBase: base, armBase: base, head: existing, arm: existing}
		return nil
	default:
		return errors.Errorf("section %q already declared; NORMAL sections cannot be reopened", name)
	}
}

// Push saves the active section (PUSHS).
func (b *Builder) Push() { b.stack = append(b.stack, stackFrame{active: b.active}) }

// Pop restores the most recently pushed active section (POPS).
func (b *Builder) Pop() error {
	if len(b.stack) == 0 {
		return errors.New("POPS with no matching PUSHS")
	}
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.active = f.active
	return nil
}

// BeginLoad opens a LOAD block: until ENDL, PC() is org plus the bytes
// emitted since the block opened and BankExpr() is bank, even though
// bytes keep landing in the active section. Labels defined inside the
// block are not rebased: they keep the active section's name and offset.
func (b *Builder) BeginLoad(name string, org uint16, bank int32) {
	b.load = &loadBlock{name: name, org: org, bank: bank, base: b.offset()}
}

// EndLoad closes the current LOAD block (ENDL).
func (b *Builder) EndLoad() error {
	if b.load == nil {
		return errors.New("ENDL with no matching LOAD")
	}
	b.load = nil
	return nil
}

// BeginUnion opens a UNION block on the active section.
func (b *Builder) BeginUnion() error {
	if b.active == nil {
		return errors.New("UNION outside of a SECTION")
	}
	base := uint32(len(b.active.Data))
	b.union = &unionState{headBase: base, armBase: base, head: b.active, arm: b.active}
	return nil
}

// NextUnionArm closes the current arm and opens the next one, resetting
// the write cursor to the union's starting offset (NEXTU).
func (b *Builder) NextUnionArm() error {
	if b.union == nil {
		return errors.New("NEXTU outside of a UNION block")
	}
	u := b.union
	armSize := uint32(len(u.arm.Data)) - u.armBase
	if armSize > u.maxSize {
		u.maxSize = armSize
	}
	u.arm.Data = u.arm.Data[:u.armBase] // logically truncate the closed arm's working copy
	next := New(u.head.Name, u.head.Type, Union)
	appendTail(u.head, next)
	u.arm = next
	u.armBase = 0
	b.active = next
	return nil
}

func appendTail(head, piece *Section) {
	tail := head
	for tail.NextU != nil {
		tail = tail.NextU
	}
	tail.NextU = piece
}

// EndUnion closes the union block (ENDU), folding the maximum arm size
// back onto the head section.
func (b *Builder) EndUnion() error {
	if b.union == nil {
		return errors.New("ENDU with no matching UNION")
	}
	u := b.union
	armSize := uint32(len(u.arm.Data)) - u.armBase
	if armSize > u.maxSize {
		u.maxSize = armSize
	}
	if u.headBase+u.maxSize > u.head.Size {
		u.head.Size = u.headBase + u.maxSize
	}
	b.active = u.head
	b.union = nil
	return nil
}

// offset returns the active section's current write cursor (byte count
// already emitted for a ROM section, reserved bytes so far for a RAM
// one, since RAM sections carry no Data to measure).
func (b *Builder) offset() uint32 {
	if b.active == nil {
		return 0
	}
	if TypeInfo(b.active.Type).IsROM {
		return uint32(len(b.active.Data))
	}
	return b.active.Size
}

// PC returns the expression for the current program counter: an
// absolute constant if the active (or LOAD-overlaid) section/org is
// already fixed, or STARTOF(section)+offset if still floating.
func (b *Builder) PC() (*rpn.Node, error) {
	if b.active == nil {
		return nil, errors.New("PC referenced outside of a SECTION")
	}
	off := int32(b.offset())
	if b.load != nil {
		return rpn.Const(int32(b.load.org) + off - int32(b.load.base)), nil
	}
	if b.active.Org != nil {
		return rpn.Const(int32(*b.active.Org) + off), nil
	}
	return rpn.Binary(rpn.Add, rpn.StartofSection(b.active.Name), rpn.Const(off)), nil
}

// BankExpr returns the expression for BANK(@): the active section's
// bank, or the LOAD block's override bank if inside one.
func (b *Builder) BankExpr() (*rpn.Node, error) {
	if b.active == nil {
		return nil, errors.New("BANK(@) referenced outside of a SECTION")
	}
	if b.load != nil {
		return rpn.Const(b.load.bank), nil
	}
	if b.active.Bank != nil {
		return rpn.Const(*b.active.Bank), nil
	}
	return rpn.BankOfSection(b.active.Name), nil
}

func (b *Builder) requireROMActive() error {
	if b.active == nil {
		return errors.New("byte emitted outside of a SECTION")
	}
	if !TypeInfo(b.active.Type).IsROM {
		return errors.Errorf("section %q (%s) cannot hold data", b.active.Name, b.active.Type)
	}
	return nil
}

// AbsByte emits one literal byte.
func (b *Builder) AbsByte(v byte) error {
	if err := b.requireROMActive(); err != nil {
		return err
	}
	b.active.Data = append(b.active.Data, v)
	b.active.Size = uint32(len(b.active.Data))
	return nil
}

// DS reserves n bytes. In a ROM section these are filler bytes (zero, or
// cycling through fill if given) appended to Data; in a RAM section
// (WRAM0/WRAMX/HRAM/SRAM/OAM) there is no byte content to store, so DS
// just advances the section's reserved size.
func (b *Builder) DS(n uint32, fill []byte) error {
	if b.active == nil {
		return errors.New("byte emitted outside of a SECTION")
	}
	if !TypeInfo(b.active.Type).IsROM {
		if len(fill) != 0 {
			return errors.Errorf("section %q (%s): DS cannot specify fill bytes in a RAM section", b.active.Name, b.active.Type)
		}
		b.active.Size += n
		return nil
	}
	if len(fill) == 0 {
		fill = []byte{0}
	}
	for i := uint32(0); i < n; i++ {
		b.active.Data = append(b.active.Data, fill[i%uint32(len(fill))])
	}
	b.active.Size = uint32(len(b.active.Data))
	return nil
}

// RelByte emits an 8-bit relocatable value.
func (b *Builder) RelByte(expr *rpn.Node, pos symbol.Pos) error {
	return b.emitPatch(expr, 1, PatchPlain, pos)
}

// RelWord emits a 16-bit little-endian relocatable value.
func (b *Builder) RelWord(expr *rpn.Node, pos symbol.Pos) error {
	return b.emitPatch(expr, 2, PatchPlain, pos)
}

// RelLong emits a 32-bit little-endian relocatable value.
func (b *Builder) RelLong(expr *rpn.Node, pos symbol.Pos) error {
	return b.emitPatch(expr, 4, PatchPlain, pos)
}

// PCRelByte emits a signed 8-bit PC-relative patch (for JR).
func (b *Builder) PCRelByte(expr *rpn.Node, pos symbol.Pos) error {
	return b.emitPatch(expr, 1, PatchJR, pos)
}

func (b *Builder) emitPatch(expr *rpn.Node, width uint8, kind PatchKind, pos symbol.Pos) error {
	if err := b.requireROMActive(); err != nil {
		return err
	}
	off := uint32(len(b.active.Data))
	for i := uint8(0); i < width; i++ {
		b.active.Data = append(b.active.Data, 0)
	}
	b.active.Size = uint32(len(b.active.Data))
	b.active.Patches = append(b.active.Patches, Patch{
		Offset: off,
		Width:  width,
		Expr:   expr,
		Kind:   kind,
		Pos:    pos,
	})
	return nil
}

// AlignPad pads the active section with DS 0-bytes up to the next address
// satisfying a (ALIGN n, o used as a statement, not a section modifier).
func (b *Builder) AlignPad(a Align) error {
	if b.active == nil || b.active.Org == nil {
		// With a floating section we can't compute a concrete address yet;
		// record the constraint on the section itself instead.
		if b.active != nil {
			b.active.Align = a
		}
		return nil
	}
	cur := uint16(uint32(*b.active.Org) + b.offset())
	next := a.NextAligned(cur)
	return b.DS(uint32(next-cur), nil)
}
