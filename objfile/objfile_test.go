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

package objfile_test

import (
	"bytes"
	"testing"

	"github.com/kkpan11/rgbds/objfile"
)

func sampleObject() *objfile.Object {
	o := &objfile.Object{
		FileNames: []string{"main.asm"},
		Nodes:     []objfile.Node{{ParentIndex: -1, Kind: objfile.NodeFile, Name: "main.asm"}},
	}
	o.Symbols = append(o.Symbols, objfile.Symbol{
		Name: "Start", Kind: objfile.SymExport, SectionID: 0, Value: 0,
	})
	o.Sections = append(o.Sections, objfile.Section{
		Name: "Code", Size: 2, Type: 0, Org: 0, Bank: 0,
		Data: []byte{0x3E, 0x01},
	})
	o.Assertions = append(o.Assertions, objfile.Assertion{
		Patch:   objfile.Patch{Offset: 0, RPN: []byte{0x80, 1, 0, 0, 0}},
		Level:   objfile.AssertError,
		Message: "never",
	})
	return o
}

func TestWriteReadRoundTrip(t *testing.T) {
	want := sampleObject()
	var buf bytes.Buffer
	if err := objfile.Write(&buf, want); err != nil {
		t.Fatal(err)
	}

	magic := buf.Bytes()[:4]
	if string(magic) != objfile.Magic {
		t.Fatalf("magic = %q, want %q", magic, objfile.Magic)
	}

	got, err := objfile.Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.FileNames) != 1 || got.FileNames[0] != "main.asm" {
		t.Fatalf("file names mismatch: %+v", got.FileNames)
	}
	if len(got.Symbols) != 1 || got.Symbols[0].Name != "Start" {
		t.Fatalf("symbols mismatch: %+v", got.Symbols)
	}
	if len(got.Sections) != 1 || !bytes.Equal(got.Sections[0].Data, []byte{0x3E, 0x01}) {
		t.Fatalf("section data mismatch: %+v", got.Sections)
	}
	if len(got.Assertions) != 1 || got.Assertions[0].Message != "never" {
		t.Fatalf("assertions mismatch: %+v", got.Assertions)
	}
}

func TestBadMagicRejected(t *testing.T) {
	buf := bytes.NewBufferString("XXXX")
	if _, err := objfile.Read(buf); err == nil {
		t.Fatal("expected error on bad magic")
	}
}

func TestWidthKindRoundTrip(t *testing.T) {
	o := sampleObject()
	o.Sections[0].Patches = []objfile.Patch{
		{Offset: 0, Width: 1, JR: true, RPN: []byte{0x80, 1, 0, 0, 0}},
		{Offset: 1, Width: 2, JR: false, RPN: []byte{0x80, 2, 0, 0, 0}},
	}
	var buf bytes.Buffer
	if err := objfile.Write(&buf, o); err != nil {
		t.Fatal(err)
	}
	got, err := objfile.Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	ps := got.Sections[0].Patches
	if len(ps) != 2 {
		t.Fatalf("got %d patches, want 2", len(ps))
	}
	if ps[0].Width != 1 || !ps[0].JR {
		t.Errorf("patch 0: %+v", ps[0])
	}
	if ps[1].Width != 2 || ps[1].JR {
		t.Errorf("patch 1: %+v", ps[1])
	}
}
