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
	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/objfile"
)

// Config gathers every linker CLI-surface option from spec.md §6 that
// isn't already implied by the input object list.
type Config struct {
	ROMPath string
	SymPath string // "" disables the symbol file
	MapPath string // "" disables the map file
	ROMConfig
}

// Run executes a full link: merge, place, resolve, emit. It is the
// single entry point cmd/rgblink drives.
func Run(objs []*objfile.Object, cfg Config) error {
	link, err := Merge(objs)
	if err != nil {
		return errors.Wrap(err, "link")
	}

	p := NewPlacer()
	if err := p.Place(link.Sections); err != nil {
		return errors.Wrap(err, "link: placement")
	}

	if err := ResolvePatches(link); err != nil {
		return errors.Wrap(err, "link: relocation")
	}

	if cfg.ROMPath != "" {
		if err := WriteROM(cfg.ROMPath, link, p, cfg.ROMConfig); err != nil {
			return errors.Wrap(err, "link: writing ROM")
		}
	}
	if cfg.SymPath != "" {
		if err := WriteSym(cfg.SymPath, link); err != nil {
			return errors.Wrap(err, "link: writing symbol file")
		}
	}
	if cfg.MapPath != "" {
		if err := WriteMap(cfg.MapPath, link, p); err != nil {
			return errors.Wrap(err, "link: writing map file")
		}
	}
	return nil
}
