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

package objfile

import (
	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/rpn"
	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// FromBuilder assembles an Object out of a finished Builder and symbol
// Table, resolving every patch expression into the §6 RPN byte stream.
// fileName is recorded as the sole file name and the sole (root) node;
// no INCLUDE/MACRO/REPT provenance nodes are written, so every symbol
// and patch refers to node 0.
func FromBuilder(fileName string, b *section.Builder, tbl *symbol.Table) (*Object, error) {
	o := &Object{FileNames: []string{fileName}}
	o.Nodes = append(o.Nodes, Node{ParentIndex: -1, Kind: NodeFile, Name: fileName})

	symIndex := make(map[string]uint32)
	syms := tbl.All()
	for _, sym := range syms {
		if sym.Kind == symbol.BUILTIN || sym.Kind == symbol.MACRO {
			continue
		}
		symIndex[sym.Name] = uint32(len(o.Symbols))
		kind := SymLocal
		if sym.Exported {
			kind = SymExport
		}
		if !sym.Defined {
			kind = SymImport
		}
		sectionID := int32(-1)
		value := sym.Value
		if sym.Kind == symbol.LABEL {
			for i, s := range b.Sections() {
				if s.Name == sym.SectionName {
					sectionID = int32(i)
					break
				}
			}
			value = int32(sym.Offset)
		}
		o.Symbols = append(o.Symbols, Symbol{
			Name:      sym.Name,
			Kind:      kind,
			NodeIndex: 0,
			Line:      uint32(sym.DefPos.Line),
			SectionID: sectionID,
			Value:     value,
		})
	}

	indexer := func(name string) (uint32, error) {
		i, ok := symIndex[name]
		if !ok {
			return 0, errors.Errorf("objfile: symbol %q not in table", name)
		}
		return i, nil
	}

	for i, s := range b.Sections() {
		rec := Section{
			Name:     s.Name,
			Size:     s.Size,
			Type:     uint8(s.Type),
			Modifier: uint8(s.Modifier),
			Org:      -1,
			Bank:     -1,
			AlignLog: s.Align.N,
			AlignOfs: uint32(s.Align.Offset),
		}
		if s.Org != nil {
			rec.Org = int32(*s.Org)
		}
		if s.Bank != nil {
			rec.Bank = int32(*s.Bank)
		}
		if section.TypeInfo(s.Type).IsROM {
			rec.Data = append([]byte(nil), s.Data...)
			for _, p := range s.Patches {
				data, err := rpn.Encode(p.Expr, indexer)
				if err != nil {
					return nil, errors.Wrapf(err, "objfile: section %q patch at %d", s.Name, p.Offset)
				}
				rec.Patches = append(rec.Patches, Patch{
					Line:        uint32(p.Pos.Line),
					Offset:      p.Offset,
					PCSectionID: int32(i),
					PCOffset:    p.Offset,
					Width:       p.Width,
					JR:          p.Kind == section.PatchJR,
					RPN:         data,
				})
			}
		}
		o.Sections = append(o.Sections, rec)
	}

	return o, nil
}

// ToBuilder reconstructs a Builder/Table pair from a decoded Object so
// the linker can place its sections and resolve its patches alongside
// every other object in the link.
func ToBuilder(o *Object) (*section.Builder, *symbol.Table, error) {
	b := section.NewBuilder()
	tbl := symbol.New()

	nameOf := func(i uint32) (string, error) {
		if int(i) >= len(o.Symbols) {
			return "", errors.Errorf("objfile: symbol index %d out of range", i)
		}
		return o.Symbols[i].Name, nil
	}

	for _, rec := range o.Sections {
		t := section.Type(rec.Type)
		mod := section.Modifier(rec.Modifier)
		var org *uint16
		var bank *int32
		if rec.Org >= 0 {
			v := uint16(rec.Org)
			org = &v
		}
		if rec.Bank >= 0 {
			v := rec.Bank
			bank = &v
		}
		align := section.Align{N: rec.AlignLog, Offset: uint16(rec.AlignOfs)}
		if err := b.Declare(rec.Name, t, mod, org, bank, align); err != nil {
			return nil, nil, errors.Wrapf(err, "objfile: reconstruct section %q", rec.Name)
		}
		s := b.Active()
		s.Size = rec.Size
		if section.TypeInfo(t).IsROM {
			s.Data = append([]byte(nil), rec.Data...)
			for _, p := range rec.Patches {
				expr, err := rpn.Decode(p.RPN, nameOf)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "objfile: decode patch in %q", rec.Name)
				}
				kind := section.PatchPlain
				if p.JR {
					kind = section.PatchJR
				}
				s.Patches = append(s.Patches, section.Patch{
					Offset: p.Offset,
					Width:  p.Width,
					Expr:   expr,
					Kind:   kind,
					Pos:    o.Pos(p.NodeIndex, p.Line),
				})
			}
		}
	}

	for _, sym := range o.Symbols {
		pos := o.Pos(sym.NodeIndex, sym.Line)
		switch {
		case sym.Kind == SymImport:
			if _, err := tbl.Ref(sym.Name, pos); err != nil {
				return nil, nil, err
			}
		case sym.SectionID >= 0:
			secName := o.Sections[sym.SectionID].Name
			if _, err := tbl.DefineLabel(sym.Name, sym.Kind == SymExport, secName, uint32(sym.Value), pos); err != nil {
				return nil, nil, err
			}
		default:
			if err := tbl.DefineEqu(sym.Name, sym.Value, pos); err != nil {
				return nil, nil, err
			}
			if s, ok := tbl.Lookup(sym.Name); ok {
				s.Exported = sym.Kind == SymExport
			}
		}
	}

	return b, tbl, nil
}
