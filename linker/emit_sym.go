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
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// sortedSymbol pairs a symbol with its resolved absolute address, for
// the stable sort compareSymbols implements.
type sortedSymbol struct {
	sym  *symbol.Symbol
	addr uint16
}

func canStartSymName(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_'
}

// compareSymbols orders by address, then sorts local labels (containing
// a ".") before unrelated globals, and a parent label immediately before
// its own local children -- matching output.cpp's compareSymbols.
func compareSymbols(a, b sortedSymbol) bool {
	if a.addr != b.addr {
		return a.addr < b.addr
	}
	aLocal := strings.Contains(a.sym.Name, ".")
	bLocal := strings.Contains(b.sym.Name, ".")
	if aLocal != bLocal {
		if strings.HasPrefix(b.sym.Name, a.sym.Name) && len(b.sym.Name) > len(a.sym.Name) && b.sym.Name[len(a.sym.Name)] == '.' {
			return true
		}
		if strings.HasPrefix(a.sym.Name, b.sym.Name) && len(a.sym.Name) > len(b.sym.Name) && a.sym.Name[len(b.sym.Name)] == '.' {
			return false
		}
		return aLocal
	}
	return false
}

// symName renders name for the sym file: legal ASCII bytes verbatim,
// everything else as a UTF-8 decoded \uXXXX/\UXXXXXXXX escape (invalid
// sequences become U+FFFD), matching output.cpp's printSymName.
func symName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); {
		c := name[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '@' || c == '#' || c == '$' || c == '.' {
			b.WriteByte(c)
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteString("\\uFFFD")
			i++
			continue
		}
		if r <= 0xFFFF {
			fmt.Fprintf(&b, "\\u%04X", r)
		} else {
			fmt.Fprintf(&b, "\\U%08X", r)
		}
		i += size
	}
	return b.String()
}

// symbolsByAddr groups every LABEL symbol in tbl by its owning section
// name and resolves its absolute address via the placed section.
func symbolsByAddr(l *Link) map[string][]sortedSymbol {
	byName := make(map[string]*section.Section, len(l.Sections))
	for _, s := range l.Sections {
		byName[s.Name] = s
	}
	out := make(map[string][]sortedSymbol)
	for _, sym := range l.Symbols.All() {
		if sym.Kind != symbol.LABEL || sym.Name == "" || !canStartSymName(sym.Name[0]) {
			continue
		}
		s, ok := byName[sym.SectionName]
		if !ok || s.Org == nil {
			continue
		}
		out[sym.SectionName] = append(out[sym.SectionName], sortedSymbol{sym: sym, addr: *s.Org + uint16(sym.Offset)})
	}
	return out
}

// WriteSym emits the symbol file for l to path.
func WriteSym(path string, l *Link) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "linker: create %s", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if _, err := w.WriteString("; File generated by rgblink\n"); err != nil {
		return err
	}

	byName := symbolsByAddr(l)
	for _, t := range section.OutputOrder {
		for _, bank := range orderedBanks(l, t) {
			var syms []sortedSymbol
			for _, s := range l.Sections {
				if s.Type != t || s.Bank == nil || *s.Bank != bank {
					continue
				}
				syms = append(syms, byName[s.Name]...)
			}
			sort.SliceStable(syms, func(i, j int) bool { return compareSymbols(syms[i], syms[j]) })
			for _, ss := range syms {
				fmt.Fprintf(w, "%02x:%04x %s\n", bank, ss.addr, symName(ss.sym.Name))
			}
		}
	}

	return errors.Wrap(w.Flush(), "linker: flush sym file")
}

// orderedBanks returns the ascending list of bank numbers actually
// touched by type t in l.
func orderedBanks(l *Link, t section.Type) []int32 {
	seen := make(map[int32]bool)
	for _, s := range l.Sections {
		if s.Type == t && s.Bank != nil {
			seen[*s.Bank] = true
		}
	}
	out := make([]int32, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
