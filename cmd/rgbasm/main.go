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

// Command rgbasm assembles a single source file into a relocatable
// object file, mirroring rgbasm(1)'s CLI surface (spec.md §6).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/asm"
	"github.com/kkpan11/rgbds/objfile"
)

type pathList []string

func (p *pathList) String() string     { return "" }
func (p *pathList) Set(s string) error { *p = append(*p, s); return nil }
func (p *pathList) Get() interface{}   { return *p }

var (
	outFileName string
	includes    pathList
	optimizeLDH bool
	maxDepth    int
	debug       bool
	verbose     bool
	depFileName string
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

func run(srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", srcPath)
	}
	defer f.Close()

	opts := asm.Options{
		IncludePaths:      includes,
		MaxRecursionDepth: maxDepth,
		OptimizeLDH:       optimizeLDH,
	}

	obj, deps, err := asm.Assemble(srcPath, f, opts)
	if err != nil {
		return err
	}
	if outFileName == "" {
		return errors.New("-o output path is required")
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "assembled %s (%d files opened)\n", srcPath, len(deps))
	}
	if err := objfile.WriteFile(outFileName, obj); err != nil {
		return errors.Wrapf(err, "writing %s", outFileName)
	}
	if depFileName != "" {
		if err := writeDepFile(depFileName, outFileName, deps); err != nil {
			return errors.Wrapf(err, "writing %s", depFileName)
		}
	}
	return nil
}

// writeDepFile emits a Makefile rule listing target's dependencies, one
// per file opened during assembly: the main source, then every INCLUDE
// (fstack.c printdep).
func writeDepFile(depPath, target string, deps []string) error {
	f, err := os.Create(depPath)
	if err != nil {
		return err
	}
	defer f.Close()
	fmt.Fprintf(f, "%s:", target)
	for _, d := range deps {
		fmt.Fprintf(f, " \\\n  %s", strings.ReplaceAll(d, " ", `\ `))
	}
	fmt.Fprintln(f)
	return nil
}

func main() {
	flag.StringVar(&outFileName, "o", "", "write the object file to `path`")
	flag.Var(&includes, "i", "add `dir` to the INCLUDE search path (repeatable)")
	flag.BoolVar(&optimizeLDH, "h", false, "optimize LD [n],A / LD A,[n] into LDH where the address folds into $FF00-$FFFF")
	flag.IntVar(&maxDepth, "recursion-depth", 64, "maximum INCLUDE/REPT/FOR/MACRO nesting depth")
	flag.BoolVar(&debug, "debug", false, "print full error causes on failure")
	flag.BoolVar(&verbose, "v", false, "print progress to stderr")
	flag.StringVar(&depFileName, "M", "", "write a Makefile dependency rule to `path`")
	flag.Parse()

	if flag.NArg() != 1 {
		atExit(errors.New("exactly one source file required"))
	}
	atExit(run(flag.Arg(0)))
}
