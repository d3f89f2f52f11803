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
	"fmt"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/objfile"
	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// Link is the linker's working state across the whole link: every
// section merged into its cross-file FRAGMENT/UNION family, and a
// single link-wide symbol table.
type Link struct {
	Sections []*section.Section // in first-contribution order
	Symbols  *symbol.Table
}

// Merge combines objs (already-decoded object files, in link-command
// order) into a Link: same-named FRAGMENT pieces concatenate (a NORMAL
// piece of the same name joins them as one more piece), same-named UNION
// pieces overlay, and any other name collision between sections is a
// link error. Symbols from every object share one namespace; REF
// placeholders are satisfied by a same-named definition from any object.
func Merge(objs []*objfile.Object) (*Link, error) {
	merged := make(map[string]*section.Section)
	var order []string
	tbl := symbol.New()

	for objIdx, obj := range objs {
		// Anonymous labels are per-object; disambiguate so two objects'
		// "@0" don't collide in the link-wide table. Renaming the symbol
		// records before decoding renames the patches' references too.
		renamed := *obj
		renamed.Symbols = append([]objfile.Symbol(nil), obj.Symbols...)
		for i, sym := range renamed.Symbols {
			if len(sym.Name) > 0 && sym.Name[0] == '@' {
				renamed.Symbols[i].Name = fmt.Sprintf("obj%d:%s", objIdx, sym.Name)
			}
		}
		b, objTbl, err := objfile.ToBuilder(&renamed)
		if err != nil {
			return nil, errors.Wrapf(err, "linker: decoding object %d", objIdx)
		}

		base := make(map[string]uint32)
		for _, s := range b.Sections() {
			existing, ok := merged[s.Name]
			if !ok {
				merged[s.Name] = s
				order = append(order, s.Name)
				base[s.Name] = 0
				continue
			}
			// a NORMAL piece joins FRAGMENT pieces of its name as one more piece
			mod := s.Modifier
			if (mod == section.Normal && existing.Modifier == section.Fragment) ||
				(mod == section.Fragment && existing.Modifier == section.Normal) {
				mod = section.Fragment
			} else if existing.Modifier != s.Modifier {
				return nil, errors.Errorf("linker: section %q declared with conflicting modifiers (%s vs %s)",
					s.Name, existing.Modifier, s.Modifier)
			}
			switch mod {
			case section.Fragment:
				base[s.Name] = existing.Size
				if err := existing.MergeFragment(s); err != nil {
					return nil, errors.Wrapf(err, "linker: merging FRAGMENT %q", s.Name)
				}
			case section.Union:
				base[s.Name] = 0
				if err := existing.MergeUnion(s); err != nil {
					return nil, errors.Wrapf(err, "linker: merging UNION %q", s.Name)
				}
			default:
				return nil, errors.Errorf("linker: section %q declared more than once (NORMAL sections must be unique across a link)", s.Name)
			}
		}

		for _, sym := range objTbl.All() {
			if sym.Kind == symbol.BUILTIN {
				continue
			}
			cp := *sym
			if cp.Kind == symbol.LABEL {
				cp.Offset += base[cp.SectionName]
			}
			if err := tbl.Insert(&cp); err != nil {
				return nil, errors.Wrap(err, "linker")
			}
		}
	}

	for _, s := range tbl.All() {
		if s.Kind == symbol.REF {
			return nil, errors.Errorf("linker: undefined symbol %q", s.Name)
		}
	}

	out := make([]*section.Section, 0, len(order))
	for _, name := range order {
		out = append(out, merged[name])
	}
	return &Link{Sections: out, Symbols: tbl}, nil
}
