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

package rpn

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// SymbolIndexer maps a symbol name to its index in the object file's
// symbol table, as needed to serialize KSymbol/KBankSym leaves.
type SymbolIndexer func(name string) (uint32, error)

// Encode serializes n to the postfix opcode stream of §6, resolving
// symbol names to indices via idx.
func Encode(n *Node, idx SymbolIndexer) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, n, idx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, n *Node, idx SymbolIndexer) error {
	switch n.Kind {
	case KConst:
		buf.WriteByte(byte(OpConst))
		return binary.Write(buf, binary.LittleEndian, n.Value)

	case KSymbol:
		i, err := idx(n.Name)
		if err != nil {
			return err
		}
		buf.WriteByte(byte(OpSym))
		return binary.Write(buf, binary.LittleEndian, i)

	case KBankSym:
		i, err := idx(n.Name)
		if err != nil {
			return err
		}
		buf.WriteByte(byte(OpBankSym))
		return binary.Write(buf, binary.LittleEndian, i)

	case KBankSect:
		buf.WriteByte(byte(OpBankSect))
		return writeCString(buf, n.Name)

	case KBankSelf:
		buf.WriteByte(byte(OpBankSelf))
		return nil

	case KSizeofSect:
		buf.WriteByte(byte(OpSizeofSect))
		return writeCString(buf, n.Name)

	case KStartofSect:
		buf.WriteByte(byte(OpStartofSect))
		return writeCString(buf, n.Name)

	case KHRAMCheck:
		if err := encode(buf, n.A, idx); err != nil {
			return err
		}
		buf.WriteByte(byte(OpHRAMCheck))
		return nil

	case KRSTCheck:
		if err := encode(buf, n.A, idx); err != nil {
			return err
		}
		buf.WriteByte(byte(OpRSTCheck))
		return nil

	case KUnary:
		if err := encode(buf, n.A, idx); err != nil {
			return err
		}
		// HIGH and LOW have no opcode: a non-constant operand is written
		// as (a >> 8) & $FF and a & $FF.
		if n.Op == High || n.Op == Low {
			if n.Op == High {
				buf.WriteByte(byte(OpConst))
				binary.Write(buf, binary.LittleEndian, int32(8))
				buf.WriteByte(byte(OpShr))
			}
			buf.WriteByte(byte(OpConst))
			binary.Write(buf, binary.LittleEndian, int32(0xFF))
			buf.WriteByte(byte(OpAnd))
			return nil
		}
		op, ok := unaryOpcode[n.Op]
		if !ok {
			return errors.Errorf("rpn: unary op %v has no RPN opcode (should have been folded)", n.Op)
		}
		buf.WriteByte(byte(op))
		return nil

	case KBinary:
		if err := encode(buf, n.A, idx); err != nil {
			return err
		}
		if err := encode(buf, n.B, idx); err != nil {
			return err
		}
		op, ok := binaryOpcode[n.Op]
		if !ok {
			return errors.Errorf("rpn: binary op %v has no RPN opcode", n.Op)
		}
		buf.WriteByte(byte(op))
		return nil

	default:
		return errors.Errorf("rpn: cannot encode node kind %d", n.Kind)
	}
}

var unaryOpcode = map[Op]Opcode{
	Neg:    OpNeg,
	BitNot: OpNot,
	LogNot: OpLogNot,
}

func writeCString(buf *bytes.Buffer, s string) error {
	buf.WriteString(s)
	buf.WriteByte(0)
	return nil
}

// Decode parses a serialized RPN stream back into a Node tree, given a
// resolver for symbol indices back to names (the inverse of Encode's
// SymbolIndexer). It is used by the object reader and by tests that
// check round-tripping.
func Decode(data []byte, name func(idx uint32) (string, error)) (*Node, error) {
	var stack []*Node
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		opb, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		op := Opcode(opb)
		switch op {
		case OpConst:
			var v int32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			stack = append(stack, Const(v))
		case OpSym:
			var i uint32
			if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
				return nil, err
			}
			n, err := name(i)
			if err != nil {
				return nil, err
			}
			stack = append(stack, Symbol(n))
		case OpBankSym:
			var i uint32
			if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
				return nil, err
			}
			n, err := name(i)
			if err != nil {
				return nil, err
			}
			stack = append(stack, BankOf(n))
		case OpBankSect:
			s, err := readCString(r)
			if err != nil {
				return nil, err
			}
			stack = append(stack, BankOfSection(s))
		case OpBankSelf:
			stack = append(stack, BankOfSelf())
		case OpSizeofSect:
			s, err := readCString(r)
			if err != nil {
				return nil, err
			}
			stack = append(stack, SizeofSection(s))
		case OpStartofSect:
			s, err := readCString(r)
			if err != nil {
				return nil, err
			}
			stack = append(stack, StartofSection(s))
		case OpHRAMCheck:
			a := pop(&stack)
			stack = append(stack, HRAMCheck(a))
		case OpRSTCheck:
			a := pop(&stack)
			stack = append(stack, RSTCheck(a))
		case OpNeg:
			a := pop(&stack)
			stack = append(stack, Unary(Neg, a))
		case OpNot:
			a := pop(&stack)
			stack = append(stack, Unary(BitNot, a))
		case OpLogNot:
			a := pop(&stack)
			stack = append(stack, Unary(LogNot, a))
		default:
			bop, ok := reverseBinary[op]
			if !ok {
				return nil, errors.Errorf("rpn: unknown opcode 0x%02X", byte(op))
			}
			b := pop(&stack)
			a := pop(&stack)
			stack = append(stack, Binary(bop, a, b))
		}
	}
	if len(stack) != 1 {
		return nil, errors.Errorf("rpn: malformed stream, %d leftover node(s)", len(stack))
	}
	return stack[0], nil
}

var reverseBinary = func() map[Opcode]Op {
	m := make(map[Opcode]Op, len(binaryOpcode))
	for op, code := range binaryOpcode {
		m[code] = op
	}
	return m
}()

func pop(stack *[]*Node) *Node {
	s := *stack
	n := s[len(s)-1]
	*stack = s[:len(s)-1]
	return n
}

func readCString(r *bytes.Reader) (string, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b), nil
}
