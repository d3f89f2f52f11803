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

package symbol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// builtinNames is the set of names PURGE must always reject.
var builtinNames = map[string]bool{
	"@": true, "_NARG": true,
	"__FILE__": true, "__LINE__": true, "__DATE__": true, "__TIME__": true,
	"__ISO_8601_LOCAL__": true, "__ISO_8601_UTC__": true,
	"__UTC_YEAR__": true, "__UTC_MONTH__": true, "__UTC_DAY__": true,
	"__UTC_HOUR__": true, "__UTC_MINUTE__": true, "__UTC_SECOND__": true,
	"__RGBDS_MAJOR__": true, "__RGBDS_MINOR__": true, "__RGBDS_PATCH__": true,
	"_RS": true,
}

// Table is the assembler's symbol table: a flat map keyed by the fully
// resolved name ("Global.local" for local labels), plus the bookkeeping
// needed to resolve ".local" against the most recently defined global
// label and "@"/":+"/":-" anonymous labels.
type Table struct {
	syms map[string]*Symbol

	currentGlobal string
	anonCounter   int
	anonNames     []string // in definition order, for :+ / :- resolution

	expandingMacros map[string]bool

	rs int32 // running offset for RB/RW/RL
}

// New returns an empty symbol table seeded with its builtin symbols.
func New() *Table {
	t := &Table{
		syms:            make(map[string]*Symbol),
		expandingMacros: make(map[string]bool),
	}
	t.defineBuiltin("@", 0)
	t.defineBuiltin("_NARG", 0)
	t.defineBuiltin("_RS", 0)
	for _, n := range []string{
		"__FILE__", "__LINE__", "__DATE__", "__TIME__",
		"__ISO_8601_LOCAL__", "__ISO_8601_UTC__",
		"__UTC_YEAR__", "__UTC_MONTH__", "__UTC_DAY__",
		"__UTC_HOUR__", "__UTC_MINUTE__", "__UTC_SECOND__",
		"__RGBDS_MAJOR__", "__RGBDS_MINOR__", "__RGBDS_PATCH__",
	} {
		t.defineBuiltin(n, 0)
	}
	return t
}

func (t *Table) defineBuiltin(name string, v int32) {
	t.syms[name] = &Symbol{Name: name, Kind: BUILTIN, Value: v, Defined: true}
}

// SetBuiltinValue overwrites the value of a numeric builtin (@, _NARG,
// _RS, __LINE__, the __UTC_*__ family, ...). It never goes through the
// write-once rules: builtins are re-evaluated continuously as assembly
// proceeds.
func (t *Table) SetBuiltinValue(name string, v int32) {
	if s, ok := t.syms[name]; ok {
		s.Value = v
		return
	}
	t.defineBuiltin(name, v)
}

// SetBuiltinString overwrites a string-valued builtin such as __FILE__,
// __ISO_8601_LOCAL__, or __ISO_8601_UTC__.
func (t *Table) SetBuiltinString(name, v string) {
	s, ok := t.syms[name]
	if !ok {
		s = &Symbol{Name: name, Kind: BUILTIN, Defined: true}
		t.syms[name] = s
	}
	s.Kind = BUILTIN
	s.String = v
}

// SetFile records the running source file name as the __FILE__ string
// builtin, quoting embedded double quotes the way the original
// assembler's fstk_Init does.
func (t *Table) SetFile(name string) {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range name {
		if c == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	b.WriteByte('"')
	t.SetBuiltinString("__FILE__", b.String())
}

// RS returns the current running offset for RB/RW/RL and advances it by
// size*count.
func (t *Table) RS(size, count int32) int32 {
	v := t.rs
	t.rs += size * count
	t.SetBuiltinValue("_RS", t.rs)
	return v
}

// ResetRS sets the running offset back to a given value (used by
// RSRESET/RSSET).
func (t *Table) ResetRS(v int32) {
	t.rs = v
	t.SetBuiltinValue("_RS", t.rs)
}

// resolveLocal expands a ".local" name against the current global scope
// and validates standalone local definitions outside of any global scope.
func (t *Table) resolveLocal(name string) (string, error) {
	if !strings.HasPrefix(name, ".") {
		return name, nil
	}
	if t.currentGlobal == "" {
		return "", errors.Errorf("local label %q defined with no preceding global label", name)
	}
	return t.currentGlobal + name, nil
}

// Lookup finds a symbol by its (possibly local) name, without defining a
// REF placeholder.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	full, err := t.resolveLocal(name)
	if err != nil {
		return nil, false
	}
	s, ok := t.syms[full]
	return s, ok
}

// Ref returns the symbol named name, creating an undefined REF
// placeholder if it doesn't exist yet. Used when an expression mentions
// a name that may be a forward reference.
func (t *Table) Ref(name string, pos Pos) (*Symbol, error) {
	full, err := t.resolveLocal(name)
	if err != nil {
		return nil, err
	}
	s, ok := t.syms[full]
	if !ok {
		s = &Symbol{Name: full, Kind: REF, DefPos: pos}
		t.syms[full] = s
	}
	return s, nil
}

// DefineLabel defines name as a LABEL at the given section/offset. name
// may be local (".foo"), global, or anonymous ("@" registers the next
// slot in the anonymous sequence — callers pass the literal "@").
func (t *Table) DefineLabel(name string, exported bool, sectionName string, offset uint32, pos Pos) (*Symbol, error) {
	if name == "@" {
		n := "@" + strconv.Itoa(t.anonCounter)
		t.anonCounter++
		t.anonNames = append(t.anonNames, n)
		s := &Symbol{Name: n, Kind: LABEL, Defined: true, Exported: exported,
			SectionName: sectionName, Offset: offset, DefPos: pos}
		t.syms[n] = s
		return s, nil
	}

	full, err := t.resolveLocal(name)
	if err != nil {
		return nil, err
	}
	if existing, ok := t.syms[full]; ok {
		switch existing.Kind {
		case REF:
			// forward reference now resolved
		case LABEL:
			if existing.Defined {
				return nil, errors.Errorf("%s: label %q already defined at %s", pos, name, existing.DefPos)
			}
		default:
			return nil, errors.Errorf("%s: %q is already defined as %s at %s", pos, name, existing.Kind, existing.DefPos)
		}
		existing.Kind = LABEL
		existing.Defined = true
		existing.Exported = existing.Exported || exported
		existing.SectionName = sectionName
		existing.Offset = offset
		existing.DefPos = pos
		if !strings.HasPrefix(name, ".") {
			t.currentGlobal = full
		}
		return existing, nil
	}

	s := &Symbol{Name: full, Kind: LABEL, Defined: true, Exported: exported,
		SectionName: sectionName, Offset: offset, DefPos: pos}
	t.syms[full] = s
	if !strings.HasPrefix(name, ".") {
		t.currentGlobal = full
	}
	return s, nil
}

// DefineEqu defines a write-once numeric constant.
func (t *Table) DefineEqu(name string, v int32, pos Pos) error {
	full, err := t.resolveLocal(name)
	if err != nil {
		return err
	}
	if existing, ok := t.syms[full]; ok && existing.Kind != REF {
		return errors.Errorf("%s: %q already defined as %s at %s", pos, name, existing.Kind, existing.DefPos)
	}
	t.syms[full] = &Symbol{Name: full, Kind: EQU, Value: v, Defined: true, DefPos: pos}
	return nil
}

// DefineVar defines or reassigns a VAR constant ("=").
func (t *Table) DefineVar(name string, v int32, pos Pos) error {
	full, err := t.resolveLocal(name)
	if err != nil {
		return err
	}
	if existing, ok := t.syms[full]; ok {
		if existing.Kind != VAR && existing.Kind != REF {
			return errors.Errorf("%s: %q already defined as %s at %s", pos, name, existing.Kind, existing.DefPos)
		}
	}
	t.syms[full] = &Symbol{Name: full, Kind: VAR, Value: v, Defined: true, DefPos: pos}
	return nil
}

// DefineEqus defines a string alias, write-once unless redef is true.
func (t *Table) DefineEqus(name, v string, redef bool, pos Pos) error {
	full, err := t.resolveLocal(name)
	if err != nil {
		return err
	}
	if existing, ok := t.syms[full]; ok && existing.Kind != REF && !redef {
		if existing.Kind != EQUS {
			return errors.Errorf("%s: %q already defined as %s at %s", pos, name, existing.Kind, existing.DefPos)
		}
		return errors.Errorf("%s: EQUS %q already defined at %s, use REDEF", pos, name, existing.DefPos)
	}
	t.syms[full] = &Symbol{Name: full, Kind: EQUS, String: v, Defined: true, DefPos: pos}
	return nil
}

// DefineMacro defines a captured macro body, write-once unless redef.
func (t *Table) DefineMacro(name, body string, firstPos, pos Pos, redef bool) error {
	full, err := t.resolveLocal(name)
	if err != nil {
		return err
	}
	if existing, ok := t.syms[full]; ok && existing.Kind != REF && !redef {
		return errors.Errorf("%s: macro %q already defined at %s", pos, name, existing.DefPos)
	}
	t.syms[full] = &Symbol{Name: full, Kind: MACRO, MacroBody: body, MacroFirstPos: firstPos,
		Defined: true, DefPos: pos}
	return nil
}

// BeginMacroExpansion marks name as currently expanding, forbidding its
// PURGE until EndMacroExpansion.
func (t *Table) BeginMacroExpansion(name string) { t.expandingMacros[name] = true }

// EndMacroExpansion clears the expanding mark set by BeginMacroExpansion.
func (t *Table) EndMacroExpansion(name string) { delete(t.expandingMacros, name) }

// Purge removes name from the table. It refuses to purge a symbol that
// is referenced by an unresolved patch, a macro currently expanding, or
// a builtin — per the Open Question in spec.md §9(b), this is an error,
// not a warning.
func (t *Table) Purge(name string) error {
	if builtinNames[name] {
		return errors.Errorf("cannot PURGE builtin symbol %q", name)
	}
	full, err := t.resolveLocal(name)
	if err != nil {
		return err
	}
	s, ok := t.syms[full]
	if !ok {
		return errors.Errorf("cannot PURGE undefined symbol %q", name)
	}
	if s.Kind == MACRO && t.expandingMacros[full] {
		return errors.Errorf("cannot PURGE macro %q while it is expanding", name)
	}
	if s.Referenced() {
		return errors.Errorf("cannot PURGE %q: referenced by an unresolved patch", name)
	}
	delete(t.syms, full)
	return nil
}

// Insert merges a symbol reconstructed from another compilation unit's
// object file into t, used by the linker to combine per-object tables
// into one link-wide namespace. A REF placeholder yields to a real
// definition seen in any object; two real definitions of the same name
// are a link error (PlaceHolder symbols merge silently since multiple
// objects may each forward-reference the same external name).
func (t *Table) Insert(s *Symbol) error {
	existing, ok := t.syms[s.Name]
	if !ok {
		cp := *s
		t.syms[s.Name] = &cp
		return nil
	}
	if existing.Kind == REF {
		cp := *s
		t.syms[s.Name] = &cp
		return nil
	}
	if s.Kind == REF {
		return nil
	}
	return errors.Errorf("symbol %q defined more than once: at %s and at %s", s.Name, existing.DefPos, s.DefPos)
}

// All returns every symbol in the table, in no particular order: defined
// symbols, undefined REF placeholders and builtins alike.
func (t *Table) All() []*Symbol {
	out := make([]*Symbol, 0, len(t.syms))
	for _, s := range t.syms {
		out = append(out, s)
	}
	return out
}

// AnonymousTarget resolves a ":+"/":++"/":-"/":--" reference relative to
// the anonymous label sequence: n forward (+) or backward (-)
// occurrences from the current position in the sequence. cur is the
// index (len(anonNames)) at the point of use. A forward target is not
// defined yet, so a REF placeholder is returned under the name
// DefineLabel will give it.
func (t *Table) AnonymousTarget(forward bool, count int) (*Symbol, error) {
	cur := len(t.anonNames)
	if forward {
		return t.Ref("@"+strconv.Itoa(cur+count-1), Pos{})
	}
	idx := cur - count
	if idx < 0 {
		return nil, errors.Errorf("no anonymous label %d- from here", count)
	}
	return t.syms[t.anonNames[idx]], nil
}
