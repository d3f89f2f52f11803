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

package asm

import (
	"io"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/objfile"
)

// Assemble reads the full source from r and assembles it into an
// *objfile.Object ready for objfile.Write or for the linker to merge.
//
// name is used both as the initial include frame's __FILE__ and in
// diagnostics; if r is a file, name should be its path.
//
// When the lexer reported diagnostics, the returned error is an *ErrAsm
// holding up to 10 of them; a read error, or a syntax or directive error
// that stops assembly, is returned as a plain (wrapped) error instead.
//
// deps lists every file opened to produce the object (the main file
// plus every INCLUDE, in open order), for -M dependency-file generation
// (fstack.c printdep); callers that don't need it can discard it.
func Assemble(name string, r io.Reader, opts Options) (obj *objfile.Object, deps []string, err error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", name)
	}
	tbl, sb, deps, err := assembleSource(name, string(data), opts)
	if err != nil {
		return nil, nil, err
	}
	obj, err = objfile.FromBuilder(name, sb, tbl)
	return obj, deps, err
}
