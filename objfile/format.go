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

import "github.com/kkpan11/rgbds/symbol"

// Magic identifies the object format; Version is bumped on any
// incompatible layout change. A mismatch on either is fatal.
const (
	Magic   = "RGB9"
	Version = uint32(1)
)

// NodeKind tags a node-table entry's provenance.
type NodeKind uint8

const (
	// NodeFile is a plain INCLUDE frame; Name is the file's name, as
	// stored in the file-name table.
	NodeFile NodeKind = iota
	// NodeMacro is a macro-expansion frame; Name is the macro's name.
	NodeMacro
	// NodeRept is a REPT/FOR frame; Iters holds the nested iteration
	// indices (outermost first) so diagnostics can print "iteration 3.1".
	NodeRept
)

// Node is one entry of the node table: it reconstructs the
// include/macro/REPT call chain that produced a symbol or patch, for
// diagnostics. ParentIndex is -1 for the root node.
type Node struct {
	ParentIndex int32
	ParentLine  uint32
	Kind        NodeKind
	Name        string // NodeFile, NodeMacro
	Iters       []uint32
}

// SymbolKind is a symbol record's linkage class on the wire.
type SymbolKind uint8

const (
	SymLocal SymbolKind = iota
	SymImport
	SymExport
)

// Symbol is one object-file symbol record. NodeIndex locates it in the
// node table for diagnostics; SectionID is -1 for symbols with no
// owning section (EQU/VAR constants).
type Symbol struct {
	Name      string
	Kind      SymbolKind
	NodeIndex uint32
	Line      uint32
	SectionID int32
	Value     int32
}

// patchWidth/patchKind share a single on-the-wire type byte: bits 0-1
// are the width code (0=1,1=2,2=4 bytes), bit 2 is set for a JR
// (PC-relative) patch.
const (
	widthMask    = 0x03
	jrFlag       = 0x04
	widthCode1   = 0
	widthCode2   = 1
	widthCode4   = 2
)

func encodeWidthKind(width uint8, jr bool) uint8 {
	var wc uint8
	switch width {
	case 1:
		wc = widthCode1
	case 2:
		wc = widthCode2
	case 4:
		wc = widthCode4
	}
	if jr {
		wc |= jrFlag
	}
	return wc
}

func decodeWidthKind(b uint8) (width uint8, jr bool) {
	switch b & widthMask {
	case widthCode1:
		width = 1
	case widthCode2:
		width = 2
	case widthCode4:
		width = 4
	}
	jr = b&jrFlag != 0
	return width, jr
}

// Patch is one relocation record: a byte offset into its owning
// section, the width/kind-tagged type byte, and the serialized RPN
// expression to resolve at link time. PCSectionID/PCOffset redundantly
// carry the owning section and offset so a patch record is
// self-describing even outside its section's framing.
type Patch struct {
	NodeIndex   uint32
	Line        uint32
	Offset      uint32
	PCSectionID int32
	PCOffset    uint32
	Width       uint8
	JR          bool
	RPN         []byte
}

// AssertLevel is an assertion's severity, chosen by the ASSERT
// directive's type argument.
type AssertLevel uint8

const (
	AssertWarn AssertLevel = iota
	AssertError
	AssertFatal
)

// Assertion is a deferred check resolved (and possibly diagnosed) at
// link time: same shape as a Patch, plus a severity and message.
type Assertion struct {
	Patch
	Level   AssertLevel
	Message string
}

// Section is one object-file section record. Org/Bank are -1 when
// floating. Data is present only for ROM types (see section.TypeInfo).
type Section struct {
	Name     string
	Size     uint32
	Type     uint8
	Modifier uint8
	Org      int32
	Bank     int32
	AlignLog uint8
	AlignOfs uint32
	Data     []byte
	Patches  []Patch
}

// Object is the full in-memory decoding of one compilation unit: every
// field the writer serializes and the reader reconstructs.
type Object struct {
	FileNames  []string
	Nodes      []Node
	Symbols    []Symbol
	Sections   []Section
	Assertions []Assertion
}

// Pos recovers the diagnostic source-location tuple for a node/line
// pair by walking the node table's parent chain up to the nearest
// enclosing NodeFile frame, matching fstack.c's habit of reporting
// diagnostics against the physical file even from inside a macro or
// REPT expansion.
func (o *Object) Pos(nodeIndex uint32, line uint32) symbol.Pos {
	idx := int32(nodeIndex)
	for idx >= 0 {
		n := o.Nodes[idx]
		if n.Kind == NodeFile {
			return symbol.Pos{File: n.Name, Line: int(line)}
		}
		line = n.ParentLine
		idx = n.ParentIndex
	}
	return symbol.Pos{Line: int(line)}
}
