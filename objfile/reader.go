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

package objfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/section"
)

// Read parses the §6 wire format from r. A magic or version mismatch
// is fatal, per spec.md §7.
func Read(r io.Reader) (*Object, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.Wrap(err, "objfile: read magic")
	}
	if string(magic) != Magic {
		return nil, errors.Errorf("objfile: bad magic %q, expected %q", magic, Magic)
	}
	version, err := readU32(br)
	if err != nil {
		return nil, errors.Wrap(err, "objfile: read version")
	}
	if version != Version {
		return nil, errors.Errorf("objfile: unsupported version %d, expected %d", version, Version)
	}

	nbSymbols, err := readU32(br)
	if err != nil {
		return nil, err
	}
	nbSections, err := readU32(br)
	if err != nil {
		return nil, err
	}
	nbFileNames, err := readU32(br)
	if err != nil {
		return nil, err
	}

	o := &Object{}
	for i := uint32(0); i < nbFileNames; i++ {
		name, err := readCString(br)
		if err != nil {
			return nil, errors.Wrap(err, "objfile: read file name")
		}
		o.FileNames = append(o.FileNames, name)
	}

	nbNodes, err := readU32(br)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nbNodes; i++ {
		n, err := readNode(br)
		if err != nil {
			return nil, errors.Wrap(err, "objfile: read node")
		}
		o.Nodes = append(o.Nodes, n)
	}

	for i := uint32(0); i < nbSymbols; i++ {
		s, err := readSymbol(br)
		if err != nil {
			return nil, errors.Wrap(err, "objfile: read symbol")
		}
		o.Symbols = append(o.Symbols, s)
	}

	for i := uint32(0); i < nbSections; i++ {
		s, err := readSection(br)
		if err != nil {
			return nil, errors.Wrap(err, "objfile: read section")
		}
		o.Sections = append(o.Sections, s)
	}

	nbAssertions, err := readU32(br)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nbAssertions; i++ {
		a, err := readAssertion(br)
		if err != nil {
			return nil, errors.Wrap(err, "objfile: read assertion")
		}
		o.Assertions = append(o.Assertions, a)
	}

	return o, nil
}

// ReadFile is a convenience wrapper that opens path and reads an Object from it.
func ReadFile(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "objfile: open %s", path)
	}
	defer f.Close()
	return Read(f)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, errors.Wrap(err, "objfile: read u32")
}

func readS32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, errors.Wrap(err, "objfile: read s32")
}

func readU8(r io.Reader) (uint8, error) {
	var v uint8
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, errors.Wrap(err, "objfile: read u8")
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func readNode(r *bufio.Reader) (Node, error) {
	var n Node
	var err error
	if n.ParentIndex, err = readS32(r); err != nil {
		return n, err
	}
	if n.ParentLine, err = readU32(r); err != nil {
		return n, err
	}
	kind, err := readU8(r)
	if err != nil {
		return n, err
	}
	n.Kind = NodeKind(kind)
	if n.Kind == NodeRept {
		count, err := readU32(r)
		if err != nil {
			return n, err
		}
		n.Iters = make([]uint32, count)
		for i := range n.Iters {
			if n.Iters[i], err = readU32(r); err != nil {
				return n, err
			}
		}
		return n, nil
	}
	n.Name, err = readCString(r)
	return n, err
}

func readSymbol(r *bufio.Reader) (Symbol, error) {
	var s Symbol
	var err error
	if s.Name, err = readCString(r); err != nil {
		return s, err
	}
	kind, err := readU8(r)
	if err != nil {
		return s, err
	}
	s.Kind = SymbolKind(kind)
	if s.Kind == SymImport {
		return s, nil
	}
	if s.NodeIndex, err = readU32(r); err != nil {
		return s, err
	}
	if s.Line, err = readU32(r); err != nil {
		return s, err
	}
	if s.SectionID, err = readS32(r); err != nil {
		return s, err
	}
	s.Value, err = readS32(r)
	return s, err
}

func readSection(r *bufio.Reader) (Section, error) {
	var s Section
	var err error
	if s.Name, err = readCString(r); err != nil {
		return s, err
	}
	if s.Size, err = readU32(r); err != nil {
		return s, err
	}
	typeByte, err := readU8(r)
	if err != nil {
		return s, err
	}
	s.Type = typeByte & 0x3F
	s.Modifier = typeByte >> 6
	if s.Org, err = readS32(r); err != nil {
		return s, err
	}
	if s.Bank, err = readS32(r); err != nil {
		return s, err
	}
	if s.AlignLog, err = readU8(r); err != nil {
		return s, err
	}
	if s.AlignOfs, err = readU32(r); err != nil {
		return s, err
	}
	if section.TypeInfo(section.Type(s.Type)).IsROM {
		s.Data = make([]byte, s.Size)
		if _, err := io.ReadFull(r, s.Data); err != nil {
			return s, errors.Wrap(err, "objfile: read section data")
		}
		nbPatches, err := readU32(r)
		if err != nil {
			return s, err
		}
		for i := uint32(0); i < nbPatches; i++ {
			p, err := readPatch(r)
			if err != nil {
				return s, errors.Wrap(err, "objfile: read patch")
			}
			s.Patches = append(s.Patches, p)
		}
	}
	return s, nil
}

func readPatch(r *bufio.Reader) (Patch, error) {
	var p Patch
	var err error
	if p.NodeIndex, err = readU32(r); err != nil {
		return p, err
	}
	if p.Line, err = readU32(r); err != nil {
		return p, err
	}
	if p.Offset, err = readU32(r); err != nil {
		return p, err
	}
	if p.PCSectionID, err = readS32(r); err != nil {
		return p, err
	}
	if p.PCOffset, err = readU32(r); err != nil {
		return p, err
	}
	wk, err := readU8(r)
	if err != nil {
		return p, err
	}
	p.Width, p.JR = decodeWidthKind(wk)
	rpnLen, err := readU32(r)
	if err != nil {
		return p, err
	}
	p.RPN = make([]byte, rpnLen)
	_, err = io.ReadFull(r, p.RPN)
	return p, errors.Wrap(err, "objfile: read patch rpn")
}

func readAssertion(r *bufio.Reader) (Assertion, error) {
	var a Assertion
	p, err := readPatch(r)
	if err != nil {
		return a, err
	}
	a.Patch = p
	level, err := readU8(r)
	if err != nil {
		return a, err
	}
	a.Level = AssertLevel(level)
	a.Message, err = readCString(r)
	return a, err
}
