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

package linker

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/rpn"
	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// linkResolver implements rpn.Resolver against a fully placed Link: every
// section has a concrete bank/org by the time resolution runs, so every
// query is answered as constant.
type linkResolver struct {
	link    *Link
	byName  map[string]*section.Section
	current *section.Section // owning section of the patch being resolved, for BANK(@)
}

func newResolver(l *Link) *linkResolver {
	m := make(map[string]*section.Section, len(l.Sections))
	for _, s := range l.Sections {
		m[s.Name] = s
	}
	return &linkResolver{link: l, byName: m}
}

func (r *linkResolver) Symbol(name string) (int32, bool, error) {
	s, ok := r.link.Symbols.Lookup(name)
	if !ok {
		return 0, false, errors.Errorf("linker: reference to undefined symbol %q", name)
	}
	switch s.Kind {
	case symbol.EQU, symbol.VAR, symbol.BUILTIN:
		return s.Value, true, nil
	case symbol.LABEL:
		sec, ok := r.byName[s.SectionName]
		if !ok || sec.Org == nil {
			return 0, false, nil
		}
		return int32(*sec.Org) + int32(s.Offset), true, nil
	default:
		return 0, false, nil
	}
}

func (r *linkResolver) SectionBank(name string) (int32, bool, error) {
	s, ok := r.byName[name]
	if !ok {
		return 0, false, errors.Errorf("linker: BANK() reference to unknown section %q", name)
	}
	if s.Bank == nil {
		return 0, false, nil
	}
	return *s.Bank, true, nil
}

func (r *linkResolver) SectionSize(name string) (int32, bool, error) {
	s, ok := r.byName[name]
	if !ok {
		return 0, false, errors.Errorf("linker: SIZEOF() reference to unknown section %q", name)
	}
	return int32(s.Size), true, nil
}

func (r *linkResolver) SectionStart(name string) (int32, bool, error) {
	s, ok := r.byName[name]
	if !ok {
		return 0, false, errors.Errorf("linker: STARTOF() reference to unknown section %q", name)
	}
	if s.Org == nil {
		return 0, false, nil
	}
	return int32(*s.Org), true, nil
}

func (r *linkResolver) CurrentBank() (int32, bool, error) {
	if r.current == nil || r.current.Bank == nil {
		return 0, false, nil
	}
	return *r.current.Bank, true, nil
}

// ResolvePatches folds every section's patches to a constant and writes
// the resulting little-endian bytes into the section's Data. PC-relative
// (JR) patches compute target-(patchAddr+1) and range-check to [-128,127].
func ResolvePatches(l *Link) error {
	r := newResolver(l)
	for _, s := range l.Sections {
		if !section.TypeInfo(s.Type).IsROM {
			continue
		}
		r.current = s
		for _, p := range s.Patches {
			folded, err := p.Expr.Fold(r)
			if err != nil {
				return errors.Wrapf(err, "section %q patch at offset %d (%s)", s.Name, p.Offset, p.Pos)
			}
			if !folded.IsConst() {
				return errors.Errorf("section %q patch at offset %d (%s): expression did not resolve to a constant",
					s.Name, p.Offset, p.Pos)
			}
			value := folded.Value

			if p.Kind == section.PatchJR {
				patchAddr := int32(*s.Org) + int32(p.Offset)
				disp, err := rpn.CheckJRTarget(value, patchAddr+1)
				if err != nil {
					return errors.Wrapf(err, "section %q JR at offset %d (%s)", s.Name, p.Offset, p.Pos)
				}
				s.Data[p.Offset] = byte(disp)
				continue
			}

			if err := writeLE(s.Data, p.Offset, p.Width, value); err != nil {
				return errors.Wrapf(err, "section %q patch at offset %d (%s)", s.Name, p.Offset, p.Pos)
			}
		}
	}
	return nil
}

func writeLE(data []byte, offset uint32, width uint8, value int32) error {
	if uint32(len(data)) < offset+uint32(width) {
		return errors.Errorf("patch offset %d width %d out of section bounds (%d bytes)", offset, width, len(data))
	}
	switch width {
	case 1:
		data[offset] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(data[offset:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(data[offset:], uint32(value))
	default:
		return errors.Errorf("unsupported patch width %d", width)
	}
	return nil
}
