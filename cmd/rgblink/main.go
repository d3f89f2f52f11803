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

// Command rgblink links one or more relocatable object files into a ROM
// image, mirroring rgblink(1)'s CLI surface (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/linker"
	"github.com/kkpan11/rgbds/objfile"
)

var (
	outFileName string
	symFileName string
	mapFileName string
	overlayPath string
	padByte     uint
	is32kMode   bool
	debug       bool
	verbose     bool
)

func atExit(err error) {
	if err == nil {
		return
	}
	if debug {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(1)
}

func run(objPaths []string) error {
	if len(objPaths) == 0 {
		return errors.New("at least one object file required")
	}
	objs := make([]*objfile.Object, 0, len(objPaths))
	for _, p := range objPaths {
		o, err := objfile.ReadFile(p)
		if err != nil {
			return errors.Wrapf(err, "reading %s", p)
		}
		objs = append(objs, o)
		if verbose {
			fmt.Fprintf(os.Stderr, "read %s\n", p)
		}
	}

	cfg := linker.Config{
		ROMPath: outFileName,
		SymPath: symFileName,
		MapPath: mapFileName,
		ROMConfig: linker.ROMConfig{
			PadByte:     byte(padByte),
			Is32kMode:   is32kMode,
			OverlayPath: overlayPath,
		},
	}
	return linker.Run(objs, cfg)
}

func main() {
	flag.StringVar(&outFileName, "o", "", "write the ROM image to `path`")
	flag.StringVar(&symFileName, "n", "", "write a symbol file to `path`")
	flag.StringVar(&mapFileName, "m", "", "write a map file to `path`")
	flag.StringVar(&overlayPath, "O", "", "overlay the output onto the ROM image at `path`")
	flag.UintVar(&padByte, "p", 0xFF, "pad value for unused ROM bytes")
	flag.BoolVar(&is32kMode, "t", false, "32KiB mode: an overlay must be exactly 0x8000 bytes (ROM0 still covers only bank 0)")
	flag.BoolVar(&debug, "debug", false, "print full error causes on failure")
	flag.BoolVar(&verbose, "v", false, "print progress to stderr")
	flag.Parse()

	if outFileName == "" {
		atExit(errors.New("-o output path is required"))
	}
	atExit(run(flag.Args()))
}
