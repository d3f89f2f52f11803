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

// PatchKind refines how a Patch's resolved value must be checked/shaped
// once its expression folds to a constant.
type PatchKind uint8

const (
	// PatchPlain is a direct little-endian store of width bytes.
	PatchPlain PatchKind = iota
	// PatchJR is a signed 8-bit PC-relative branch displacement.
	PatchJR
)

// Patch is a relocation: a byte range in a section's Data whose final
// value is an RPN expression, resolved once every section has a
// concrete address.
type Patch struct {
	Offset uint32 // byte offset into the owning section's Data
	Width  uint8  // 1, 2, or 4
	Expr   *rpn.Node
	Kind   PatchKind
	Pos    symbol.Pos
}

// Section is one piece of assembled output, typed and optionally banked.
type Section struct {
	Name     string
	Type     Type
	Modifier Modifier

	Org  *uint16 // nil if floating
	Bank *int32  // nil if floating

	Align Align

	Size uint32
	Data []byte // present only for ROM types

	Patches []Patch
	Symbols []*symbol.Symbol

	// NextU links to the next piece sharing this Name for UNION (overlay)
	// or FRAGMENT (concatenation) families.
	NextU *Section
}

// New creates an empty floating section of the given type and modifier.
func New(name string, t Type, mod Modifier) *Section {
	s := &Section{Name: name, Type: t, Modifier: mod}
	if TypeInfo(t).IsROM {
		s.Data = []byte{}
	}
	return s
}

// SetOrg fixes the section's address.
func (s *Section) SetOrg(org uint16) { v := org; s.Org = &v }

// SetBank fixes the section's bank.
func (s *Section) SetBank(bank int32) { v := bank; s.Bank = &v }

// Validate checks the invariants from spec.md §3 once org/bank/size are
// all known (i.e. after link placement, or immediately for fully fixed
// sections).
func (s *Section) Validate() error {
	info := TypeInfo(s.Type)
	if s.Org != nil {
		end := uint32(*s.Org) + s.Size
		if uint32(*s.Org) < uint32(info.StartAddr) || end > uint32(info.StartAddr)+uint32(info.Size) {
			return errors.Errorf("section %q: [$%04X,$%04X) does not fit in %s's window [$%04X,$%04X)",
				s.Name, *s.Org, end, s.Type, info.StartAddr, uint32(info.StartAddr)+uint32(info.Size))
		}
	}
	if s.Bank != nil {
		if *s.Bank < info.FirstBank || (info.LastBank >= 0 && *s.Bank > info.LastBank) {
			return errors.Errorf("section %q: bank %d out of range for %s", s.Name, *s.Bank, s.Type)
		}
	}
	return nil
}

// Overlaps reports whether s and other, assumed to be placed in the same
// type and bank, occupy overlapping byte ranges. Zero-size sections
// never overlap anything (they are exempt per spec.md §3).
func (s *Section) Overlaps(other *Section) bool {
	if s.Size == 0 || other.Size == 0 || s.Org == nil || other.Org == nil {
		return false
	}
	a0, a1 := uint32(*s.Org), uint32(*s.Org)+s.Size
	b0, b1 := uint32(*other.Org), uint32(*other.Org)+other.Size
	return a0 < b1 && b0 < a1
}

// Fragments walks the NextU chain, returning every piece in link order
// (the receiver first).
func (s *Section) Fragments() []*Section {
	out := []*Section{s}
	for p := s.NextU; p != nil; p = p.NextU {
		out = append(out, p)
	}
	return out
}

// MergeFragment appends a same-named FRAGMENT piece's bytes, patches
// (offset-adjusted), and symbols (offset-adjusted) onto s, per spec.md
// §3's FRAGMENT invariant ("all pieces have the same name and type and
// are concatenated").
func (s *Section) MergeFragment(piece *Section) error {
	if piece.Type != s.Type {
		return errors.Errorf("FRAGMENT %q: type mismatch (%s vs %s)", s.Name, piece.Type, s.Type)
	}
	base := uint32(len(s.Data))
	if !TypeInfo(s.Type).IsROM {
		base = s.Size // RAM pieces reserve space without storing bytes
	}
	s.Data = append(s.Data, piece.Data...)
	for _, p := range piece.Patches {
		p.Offset += base
		s.Patches = append(s.Patches, p)
	}
	for _, sym := range piece.Symbols {
		sym.Offset += base
		s.Symbols = append(s.Symbols, sym)
	}
	if TypeInfo(s.Type).IsROM {
		s.Size = uint32(len(s.Data))
	} else {
		s.Size = base + piece.Size
	}
	return nil
}

// MergeUnion overlays a same-named UNION piece onto s: bytes are ORed
// in at offset 0 is wrong for a true union (arms need not agree byte for
// byte), so instead each arm keeps its own Data/Patches/Symbols and only
// the resulting Size (the maximum arm) is tracked on the head piece; the
// NextU chain itself is what "merge" means for UNION families. See
// spec.md §3: "for UNION, pieces overlay and the section's size is the
// maximum."
func (s *Section) MergeUnion(piece *Section) error {
	if piece.Type != s.Type {
		return errors.Errorf("UNION %q: type mismatch (%s vs %s)", s.Name, piece.Type, s.Type)
	}
	if piece.Size > s.Size {
		s.Size = piece.Size
	}
	tail := s
	for tail.NextU != nil {
		tail = tail.NextU
	}
	tail.NextU = piece
	return nil
}
