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

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// summarySkip is the set of section types output.cpp's writeMapSummary
// excludes: VRAM and OAM have no natural "used" byte semantics the way
// ROM/RAM banks do.
var summarySkip = map[section.Type]bool{section.VRAM: true, section.OAM: true}

// WriteMap emits the memory-map file for l (placed by p) to path.
func WriteMap(path string, l *Link, p *Placer) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "linker: create %s", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	writeMapSummary(w, l, p)
	for _, t := range section.OutputOrder {
		banks := orderedBanks(l, t)
		for _, bank := range banks {
			writeMapBank(w, l, t, bank)
		}
	}

	return errors.Wrap(w.Flush(), "linker: flush map file")
}

func writeMapSummary(w *bufio.Writer, l *Link, p *Placer) {
	fmt.Fprintln(w, "SUMMARY:")
	for _, t := range section.OutputOrder {
		if summarySkip[t] {
			continue
		}
		banks := orderedBanks(l, t)
		if len(banks) == 0 {
			continue
		}
		info := section.TypeInfo(t)
		var used uint32
		for _, s := range l.Sections {
			if s.Type == t {
				used += s.Size
			}
		}
		free := uint32(len(banks))*uint32(info.Size) - used
		plural := "s"
		if used == 1 {
			plural = ""
		}
		fmt.Fprintf(w, "\t%s: %d byte%s used / %d free", t, used, plural, free)
		if info.FirstBank != info.LastBank || len(banks) > 1 {
			bplural := "s"
			if len(banks) == 1 {
				bplural = ""
			}
			fmt.Fprintf(w, " in %d bank%s", len(banks), bplural)
		}
		fmt.Fprintln(w)
	}
}

func writeEmptySpace(w *bufio.Writer, begin, end uint16) {
	if begin < end {
		length := end - begin
		plural := "s"
		if length == 1 {
			plural = ""
		}
		fmt.Fprintf(w, "\tEMPTY: $%04x-$%04x ($%04x byte%s)\n", begin, end-1, length, plural)
	}
}

// labelsOf returns every LABEL symbol owned by section name, sorted by
// offset, for the map file's inline symbol listing.
func labelsOf(l *Link, name string) []*symbol.Symbol {
	var out []*symbol.Symbol
	for _, sym := range l.Symbols.All() {
		if sym.Kind == symbol.LABEL && sym.SectionName == name {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func writeMapBank(w *bufio.Writer, l *Link, t section.Type, bank int32) {
	info := section.TypeInfo(t)
	fmt.Fprintf(w, "\n%s bank #%d:\n", t, bank)

	var secs []*section.Section
	for _, s := range l.Sections {
		if s.Type == t && s.Bank != nil && *s.Bank == bank {
			secs = append(secs, s)
		}
	}
	sort.Slice(secs, func(i, j int) bool { return *secs[i].Org < *secs[j].Org })

	var used uint32
	prevEnd := info.StartAddr
	for _, s := range secs {
		used += s.Size
		writeEmptySpace(w, prevEnd, *s.Org)
		prevEnd = *s.Org + uint16(s.Size)

		if s.Size != 0 {
			plural := "s"
			if s.Size == 1 {
				plural = ""
			}
			fmt.Fprintf(w, "\tSECTION: $%04x-$%04x ($%04x byte%s) [%q]\n",
				*s.Org, prevEnd-1, s.Size, plural, s.Name)
		} else {
			fmt.Fprintf(w, "\tSECTION: $%04x (0 bytes) [%q]\n", *s.Org, s.Name)
		}

		for _, sym := range labelsOf(l, s.Name) {
			fmt.Fprintf(w, "\t         $%04x = %s\n", *s.Org+uint16(sym.Offset), sym.Name)
		}
		if s.NextU != nil {
			switch s.NextU.Modifier {
			case section.Union:
				fmt.Fprintln(w, "\t         ; Next union")
			case section.Fragment:
				fmt.Fprintln(w, "\t         ; Next fragment")
			}
		}
	}

	if used == 0 {
		fmt.Fprintln(w, "\tEMPTY")
	} else {
		bankEnd := info.StartAddr + info.Size
		writeEmptySpace(w, prevEnd, bankEnd)
		slack := info.Size - uint16(used)
		plural := "s"
		if slack == 1 {
			plural = ""
		}
		fmt.Fprintf(w, "\tTOTAL EMPTY: $%04x byte%s\n", slack, plural)
	}
}
