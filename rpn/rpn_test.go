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

package rpn_test

import (
	"testing"

	"github.com/kkpan11/rgbds/rpn"
)

type fakeResolver struct {
	symbols map[string]int32
	banks   map[string]int32
	sizes   map[string]int32
	starts  map[string]int32
}

func (f *fakeResolver) Symbol(name string) (int32, bool, error) {
	v, ok := f.symbols[name]
	return v, ok, nil
}
func (f *fakeResolver) SectionBank(name string) (int32, bool, error) {
	v, ok := f.banks[name]
	return v, ok, nil
}
func (f *fakeResolver) SectionSize(name string) (int32, bool, error) {
	v, ok := f.sizes[name]
	return v, ok, nil
}
func (f *fakeResolver) SectionStart(name string) (int32, bool, error) {
	v, ok := f.starts[name]
	return v, ok, nil
}
func (f *fakeResolver) CurrentBank() (int32, bool, error) { return 0, false, nil }

func TestFoldConstant(t *testing.T) {
	// N+1, N*N, HIGH($1234), LOW($1234) where N EQU 3 -- scenario 1 of spec.md §8.
	r := &fakeResolver{symbols: map[string]int32{"N": 3}}

	n1 := rpn.Binary(rpn.Add, rpn.Symbol("N"), rpn.Const(1))
	n2 := rpn.Binary(rpn.Mul, rpn.Symbol("N"), rpn.Symbol("N"))
	n3 := rpn.Unary(rpn.High, rpn.Const(0x1234))
	n4 := rpn.Unary(rpn.Low, rpn.Const(0x1234))

	want := []int32{4, 9, 0x12, 0x34}
	for i, n := range []*rpn.Node{n1, n2, n3, n4} {
		f, err := n.Fold(r)
		if err != nil {
			t.Fatalf("fold %d: %v", i, err)
		}
		if !f.IsConst() || f.Value != want[i] {
			t.Errorf("node %d: got %v, want %d", i, f, want[i])
		}
	}
}

func TestFoldDeferred(t *testing.T) {
	r := &fakeResolver{}
	n := rpn.Binary(rpn.Add, rpn.Symbol("Label"), rpn.Const(1))
	f, err := n.Fold(r)
	if err != nil {
		t.Fatal(err)
	}
	if f.IsConst() {
		t.Fatalf("expected non-constant fold result, got %v", f.Value)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	n := rpn.Binary(rpn.Add, rpn.Symbol("Label"), rpn.BankOfSection("ROM0"))
	idx := func(name string) (uint32, error) { return 42, nil }
	data, err := rpn.Encode(n, idx)
	if err != nil {
		t.Fatal(err)
	}
	name := func(i uint32) (string, error) { return "Label", nil }
	got, err := rpn.Decode(data, name)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != rpn.KBinary || got.Op != rpn.Add {
		t.Fatalf("unexpected round-trip shape: %+v", got)
	}
	if got.A.Kind != rpn.KSymbol || got.A.Name != "Label" {
		t.Fatalf("operand A mismatch: %+v", got.A)
	}
	if got.B.Kind != rpn.KBankSect || got.B.Name != "ROM0" {
		t.Fatalf("operand B mismatch: %+v", got.B)
	}
}

func TestDivByZero(t *testing.T) {
	r := &fakeResolver{}
	n := rpn.Binary(rpn.Div, rpn.Const(1), rpn.Const(0))
	if _, err := n.Fold(r); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestCheckHRAM(t *testing.T) {
	if _, err := rpn.EvalHRAM(0x80); err != nil {
		t.Fatalf("0x80 should be a valid HRAM offset: %v", err)
	}
	if _, err := rpn.EvalHRAM(0x1234); err == nil {
		t.Fatal("0x1234 is out of range and should fail")
	}
}

func TestCheckRST(t *testing.T) {
	if err := rpn.EvalRST(0x38); err != nil {
		t.Fatalf("0x38 is a valid RST vector: %v", err)
	}
	if err := rpn.EvalRST(0x04); err == nil {
		t.Fatal("0x04 is not a valid RST vector")
	}
}

func TestJRRange(t *testing.T) {
	// scenario 5 of spec.md §8: +0x10 offset fits, +0x80 doesn't.
	if d, err := rpn.CheckJRTarget(0x10, 0); err != nil || d != 0x10 {
		t.Fatalf("got %d, %v", d, err)
	}
	if _, err := rpn.CheckJRTarget(0x80, 0); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestFixedPointTurns(t *testing.T) {
	// SIN(0.25 turns) == 1.0 in Q16.
	q := int32(rpn.DefaultPrecision)
	quarter := int32(1) << (q - 2)
	s := rpn.Sin(quarter, q)
	one := int32(1) << q
	if diff := s - one; diff > 2 || diff < -2 {
		t.Errorf("SIN(0.25turn) = %d, want ~%d", s, one)
	}
}
