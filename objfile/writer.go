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

// Write serializes o to w in the §6 wire format.
func Write(w io.Writer, o *Object) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(Magic); err != nil {
		return errors.Wrap(err, "objfile: write magic")
	}
	if err := writeU32(bw, Version); err != nil {
		return errors.Wrap(err, "objfile: write version")
	}
	if err := writeU32(bw, uint32(len(o.Symbols))); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(o.Sections))); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(o.FileNames))); err != nil {
		return err
	}
	for _, name := range o.FileNames {
		if err := writeCString(bw, name); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(o.Nodes))); err != nil {
		return err
	}
	for _, n := range o.Nodes {
		if err := writeNode(bw, n); err != nil {
			return err
		}
	}

	for _, s := range o.Symbols {
		if err := writeSymbol(bw, s); err != nil {
			return err
		}
	}

	for _, s := range o.Sections {
		if err := writeSection(bw, s); err != nil {
			return err
		}
	}

	if err := writeU32(bw, uint32(len(o.Assertions))); err != nil {
		return err
	}
	for _, a := range o.Assertions {
		if err := writeAssertion(bw, a); err != nil {
			return err
		}
	}

	return errors.Wrap(bw.Flush(), "objfile: flush")
}

// WriteFile is a convenience wrapper that creates path and writes o to it.
func WriteFile(path string, o *Object) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "objfile: create %s", path)
	}
	defer f.Close()
	return Write(f, o)
}

func writeU32(w io.Writer, v uint32) error {
	return errors.Wrap(binary.Write(w, binary.LittleEndian, v), "objfile: write u32")
}

func writeS32(w io.Writer, v int32) error {
	return errors.Wrap(binary.Write(w, binary.LittleEndian, v), "objfile: write s32")
}

func writeU8(w io.Writer, v uint8) error {
	return errors.Wrap(binary.Write(w, binary.LittleEndian, v), "objfile: write u8")
}

func writeCString(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s); err != nil {
		return errors.Wrap(err, "objfile: write string")
	}
	return w.WriteByte(0)
}

func writeNode(w *bufio.Writer, n Node) error {
	if err := writeS32(w, n.ParentIndex); err != nil {
		return err
	}
	if err := writeU32(w, n.ParentLine); err != nil {
		return err
	}
	if err := writeU8(w, uint8(n.Kind)); err != nil {
		return err
	}
	if n.Kind == NodeRept {
		if err := writeU32(w, uint32(len(n.Iters))); err != nil {
			return err
		}
		for _, it := range n.Iters {
			if err := writeU32(w, it); err != nil {
				return err
			}
		}
		return nil
	}
	return writeCString(w, n.Name)
}

func writeSymbol(w *bufio.Writer, s Symbol) error {
	if err := writeCString(w, s.Name); err != nil {
		return err
	}
	if err := writeU8(w, uint8(s.Kind)); err != nil {
		return err
	}
	if s.Kind == SymImport {
		return nil
	}
	if err := writeU32(w, s.NodeIndex); err != nil {
		return err
	}
	if err := writeU32(w, s.Line); err != nil {
		return err
	}
	if err := writeS32(w, s.SectionID); err != nil {
		return err
	}
	return writeS32(w, s.Value)
}

func writeSection(w *bufio.Writer, s Section) error {
	if err := writeCString(w, s.Name); err != nil {
		return err
	}
	if err := writeU32(w, s.Size); err != nil {
		return err
	}
	typeByte := (s.Type & 0x3F) | (s.Modifier << 6)
	if err := writeU8(w, typeByte); err != nil {
		return err
	}
	if err := writeS32(w, s.Org); err != nil {
		return err
	}
	if err := writeS32(w, s.Bank); err != nil {
		return err
	}
	if err := writeU8(w, s.AlignLog); err != nil {
		return err
	}
	if err := writeU32(w, s.AlignOfs); err != nil {
		return err
	}
	if section.TypeInfo(section.Type(s.Type)).IsROM {
		if _, err := w.Write(s.Data); err != nil {
			return errors.Wrap(err, "objfile: write section data")
		}
		if err := writeU32(w, uint32(len(s.Patches))); err != nil {
			return err
		}
		for _, p := range s.Patches {
			if err := writePatch(w, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePatch(w *bufio.Writer, p Patch) error {
	if err := writeU32(w, p.NodeIndex); err != nil {
		return err
	}
	if err := writeU32(w, p.Line); err != nil {
		return err
	}
	if err := writeU32(w, p.Offset); err != nil {
		return err
	}
	if err := writeS32(w, p.PCSectionID); err != nil {
		return err
	}
	if err := writeU32(w, p.PCOffset); err != nil {
		return err
	}
	if err := writeU8(w, encodeWidthKind(p.Width, p.JR)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(p.RPN))); err != nil {
		return err
	}
	_, err := w.Write(p.RPN)
	return errors.Wrap(err, "objfile: write patch rpn")
}

func writeAssertion(w *bufio.Writer, a Assertion) error {
	if err := writePatch(w, a.Patch); err != nil {
		return err
	}
	if err := writeU8(w, uint8(a.Level)); err != nil {
		return err
	}
	return writeCString(w, a.Message)
}
