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
	"sort"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/section"
)

// interval is a half-open free byte range [Start, End) within one bank.
type interval struct {
	Start, End uint16
}

// Placer assigns concrete (bank, org) addresses to sections, one type at
// a time, by carving allocations out of a free-interval list per bank.
// Banks for unbounded types (ROMX, SRAM) are created the first time
// they're addressed.
type Placer struct {
	free map[section.Type]map[int32][]interval
	used map[section.Type]int32 // highest bank index touched, for on-demand creation
}

// NewPlacer returns an empty Placer.
func NewPlacer() *Placer {
	return &Placer{
		free: make(map[section.Type]map[int32][]interval),
		used: make(map[section.Type]int32),
	}
}

func (p *Placer) ensureBank(t section.Type, bank int32) []interval {
	banks, ok := p.free[t]
	if !ok {
		banks = make(map[int32][]interval)
		p.free[t] = banks
	}
	if ivs, ok := banks[bank]; ok {
		return ivs
	}
	info := section.TypeInfo(t)
	ivs := []interval{{Start: info.StartAddr, End: info.StartAddr + info.Size}}
	banks[bank] = ivs
	if bank > p.used[t] {
		p.used[t] = bank
	}
	return ivs
}

func (p *Placer) setBank(t section.Type, bank int32, ivs []interval) {
	p.free[t][bank] = ivs
}

// carve removes [start, start+size) from ivs, assuming it is fully
// contained within exactly one interval (the caller must have checked
// via findFit or an explicit containment check first).
func carve(ivs []interval, start, size uint16) ([]interval, error) {
	end := start + size
	for i, iv := range ivs {
		if start < iv.Start || end > iv.End {
			continue
		}
		out := make([]interval, 0, len(ivs)+1)
		out = append(out, ivs[:i]...)
		if iv.Start < start {
			out = append(out, interval{Start: iv.Start, End: start})
		}
		if end < iv.End {
			out = append(out, interval{Start: end, End: iv.End})
		}
		out = append(out, ivs[i+1:]...)
		return out, nil
	}
	return nil, errors.Errorf("address range [$%04X,$%04X) is not free", start, end)
}

// findFit scans ivs in ascending order for the first interval with room
// for size bytes satisfying align, returning the chosen start address.
func findFit(ivs []interval, size uint16, align section.Align) (uint16, bool) {
	for _, iv := range ivs {
		start := align.NextAligned(iv.Start)
		if start < iv.Start {
			continue
		}
		if uint32(start)+uint32(size) <= uint32(iv.End) {
			return start, true
		}
	}
	return 0, false
}

// legalBanks returns the ascending bank sequence to try for t, including
// at least one bank beyond the highest already touched for unbounded
// (LastBank == -1) types so placement can grow the ROM/SRAM on demand.
func (p *Placer) legalBanks(t section.Type) []int32 {
	info := section.TypeInfo(t)
	if info.LastBank >= 0 {
		banks := make([]int32, 0, info.LastBank-info.FirstBank+1)
		for b := info.FirstBank; b <= info.LastBank; b++ {
			banks = append(banks, b)
		}
		return banks
	}
	top := p.used[t]
	if top < info.FirstBank {
		top = info.FirstBank
	}
	banks := make([]int32, 0, top-info.FirstBank+2)
	for b := info.FirstBank; b <= top; b++ {
		banks = append(banks, b)
	}
	banks = append(banks, top+1) // always offer one fresh bank
	return banks
}

// Place assigns addresses to every section in secs (mutating each
// floating Org/Bank in place), following spec.md §4.7's five ordered
// passes: fully fixed, bank-fixed/org-floating, bank-floating/org-fixed,
// fully floating (by decreasing size then name), with on-demand bank
// creation for unbounded types throughout.
func (p *Placer) Place(secs []*section.Section) error {
	byType := make(map[section.Type][]*section.Section)
	for _, s := range secs {
		byType[s.Type] = append(byType[s.Type], s)
	}

	for t, group := range byType {
		var fixed, bankOnly, orgOnly, floating []*section.Section
		for _, s := range group {
			switch {
			case s.Org != nil && s.Bank != nil:
				fixed = append(fixed, s)
			case s.Bank != nil:
				bankOnly = append(bankOnly, s)
			case s.Org != nil:
				orgOnly = append(orgOnly, s)
			default:
				floating = append(floating, s)
			}
		}

		for _, s := range fixed {
			ivs := p.ensureBank(t, *s.Bank)
			out, err := carve(ivs, *s.Org, uint16(s.Size))
			if err != nil {
				return errors.Wrapf(err, "section %q at bank %d", s.Name, *s.Bank)
			}
			p.setBank(t, *s.Bank, out)
		}

		for _, s := range bankOnly {
			ivs := p.ensureBank(t, *s.Bank)
			start, ok := findFit(ivs, uint16(s.Size), s.Align)
			if !ok {
				return errors.Errorf("section %q: no room in bank %d", s.Name, *s.Bank)
			}
			out, err := carve(ivs, start, uint16(s.Size))
			if err != nil {
				return err
			}
			p.setBank(t, *s.Bank, out)
			s.SetOrg(start)
		}

		for _, s := range orgOnly {
			placed := false
			for _, bank := range p.legalBanks(t) {
				ivs := p.ensureBank(t, bank)
				out, err := carve(ivs, *s.Org, uint16(s.Size))
				if err != nil {
					continue
				}
				p.setBank(t, bank, out)
				s.SetBank(bank)
				placed = true
				break
			}
			if !placed {
				return errors.Errorf("section %q: address $%04X is not free in any legal bank", s.Name, *s.Org)
			}
		}

		sort.Slice(floating, func(i, j int) bool {
			if floating[i].Size != floating[j].Size {
				return floating[i].Size > floating[j].Size
			}
			return floating[i].Name < floating[j].Name
		})
		for _, s := range floating {
			placed := false
			for _, bank := range p.legalBanks(t) {
				ivs := p.ensureBank(t, bank)
				start, ok := findFit(ivs, uint16(s.Size), s.Align)
				if !ok {
					continue
				}
				out, err := carve(ivs, start, uint16(s.Size))
				if err != nil {
					return err
				}
				p.setBank(t, bank, out)
				s.SetOrg(start)
				s.SetBank(bank)
				placed = true
				break
			}
			if !placed {
				return errors.Errorf("section %q: no room found in any bank of type %s", s.Name, t)
			}
		}

		for _, s := range group {
			if err := s.Validate(); err != nil {
				return err
			}
		}
	}

	return nil
}

// BankCount returns how many banks of t have been touched (allocated a
// free list), used by the output emitter to size the ROM image.
func (p *Placer) BankCount(t section.Type) int32 {
	banks, ok := p.free[t]
	if !ok {
		return 0
	}
	max := int32(-1)
	for b := range banks {
		if b > max {
			max = b
		}
	}
	info := section.TypeInfo(t)
	return max - info.FirstBank + 1
}

// GrowROMX ensures at least n ROMX banks (indices firstBank..firstBank+n-1)
// have been touched, so the output emitter covers overlay-dictated banks
// even when no section was placed in them (spec.md §4.8).
func (p *Placer) GrowROMX(n int32) {
	info := section.TypeInfo(section.ROMX)
	for b := info.FirstBank; b < info.FirstBank+n; b++ {
		p.ensureBank(section.ROMX, b)
	}
}
