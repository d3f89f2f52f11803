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
	"strings"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/rpn"
	"github.com/kkpan11/rgbds/symbol"
)

// reg8Code maps an 8-bit register name to its 3-bit field value.
var reg8Code = map[string]byte{"B": 0, "C": 1, "D": 2, "E": 3, "H": 4, "L": 5, "A": 7}

// reg16CodeSP maps a 16-bit pair to its 2-bit field for instructions
// using the SP-indexed encoding (LD rr,nn / INC rr / DEC rr / ADD HL,rr).
var reg16CodeSP = map[string]byte{"BC": 0, "DE": 1, "HL": 2, "SP": 3}

// reg16CodeAF is the same field but with AF instead of SP, for PUSH/POP.
var reg16CodeAF = map[string]byte{"BC": 0, "DE": 1, "HL": 2, "AF": 3}

var condCode = map[string]byte{"NZ": 0, "Z": 1, "NC": 2, "C": 3}

// operandKind discriminates one parsed instruction operand.
type operandKind int

const (
	opNone operandKind = iota
	opReg
	opMemReg  // [BC] / [DE] / [HL] / [C]
	opMemInc  // [HL+] / [HLI]
	opMemDec  // [HL-] / [HLD]
	opMemExpr // [expr]
	opExpr
	opSPOffset // SP+e (only valid as the RHS of "LD HL, SP+e")
)

type operand struct {
	kind operandKind
	reg  string // uppercase register/condition name, for opReg/opMemReg
	expr *rpn.Node
	pos  symbol.Pos
}

var registerNames = map[string]bool{
	"A": true, "B": true, "C": true, "D": true, "E": true, "H": true, "L": true,
	"AF": true, "BC": true, "DE": true, "HL": true, "SP": true,
	"NZ": true, "Z": true, "NC": true,
}

// parseOperand parses one instruction operand: a bare register/condition
// keyword, a "[...]" memory form, or a general expression.
func (p *Parser) parseOperand() (operand, error) {
	t := p.peek()
	if t.Kind == TokOp && t.Text == "[" {
		p.advance()
		inner := p.peek()
		if inner.Kind == TokIdent {
			up := strings.ToUpper(inner.Text)
			if up == "BC" || up == "DE" || up == "HL" || up == "C" {
				p.advance()
				suf := p.peek()
				if suf.Kind == TokOp && (suf.Text == "+" || suf.Text == "-") && up == "HL" {
					p.advance()
					if err := p.expectOp("]"); err != nil {
						return operand{}, err
					}
					if suf.Text == "+" {
						return operand{kind: opMemInc, reg: up, pos: t.Pos}, nil
					}
					return operand{kind: opMemDec, reg: up, pos: t.Pos}, nil
				}
				if err := p.expectOp("]"); err != nil {
					return operand{}, err
				}
				return operand{kind: opMemReg, reg: up, pos: t.Pos}, nil
			}
		}
		n, err := p.parseExpr()
		if err != nil {
			return operand{}, err
		}
		if err := p.expectOp("]"); err != nil {
			return operand{}, err
		}
		return operand{kind: opMemExpr, expr: n, pos: t.Pos}, nil
	}
	if t.Kind == TokIdent {
		up := strings.ToUpper(t.Text)
		if registerNames[up] {
			p.advance()
			if up == "SP" {
				if n := p.peek(); n.Kind == TokOp && n.Text == "+" {
					p.advance()
					e, err := p.parseExpr()
					if err != nil {
						return operand{}, err
					}
					return operand{kind: opSPOffset, expr: e, pos: t.Pos}, nil
				}
			}
			return operand{kind: opReg, reg: up, pos: t.Pos}, nil
		}
	}
	n, err := p.parseExpr()
	if err != nil {
		return operand{}, err
	}
	return operand{kind: opExpr, expr: n, pos: t.Pos}, nil
}

// emitByteExpr emits a single relocatable byte for n.
func (p *Parser) emitByteExpr(n *rpn.Node, pos symbol.Pos) error {
	if n.IsConst() {
		if err := rpn.CheckNBit(n.Value, 8); err != nil {
			return errors.Wrapf(err, "%s", pos)
		}
		return p.sb.AbsByte(byte(n.Value))
	}
	return p.sb.RelByte(n, pos)
}

// emitWordExpr emits a little-endian relocatable word for n.
func (p *Parser) emitWordExpr(n *rpn.Node, pos symbol.Pos) error {
	if n.IsConst() {
		v := uint16(n.Value)
		if err := p.sb.AbsByte(byte(v)); err != nil {
			return err
		}
		return p.sb.AbsByte(byte(v >> 8))
	}
	return p.sb.RelWord(n, pos)
}

// emitLongExpr emits a little-endian relocatable 32-bit value for n.
func (p *Parser) emitLongExpr(n *rpn.Node, pos symbol.Pos) error {
	if n.IsConst() {
		v := uint32(n.Value)
		for i := 0; i < 4; i++ {
			if err := p.sb.AbsByte(byte(v >> (8 * uint(i)))); err != nil {
				return err
			}
		}
		return nil
	}
	return p.sb.RelLong(n, pos)
}

// tryInstruction attempts to assemble mnemonic as an instruction. It
// reports handled=false if mnemonic is not a recognized opcode, so the
// caller can fall back to directive dispatch.
func (p *Parser) tryInstruction(mnemonic string, pos symbol.Pos) (handled bool, err error) {
	up := strings.ToUpper(mnemonic)
	switch up {
	case "NOP":
		return true, p.sb.AbsByte(0x00)
	case "HALT":
		return true, p.sb.AbsByte(0x76)
	case "STOP":
		if err := p.sb.AbsByte(0x10); err != nil {
			return true, err
		}
		return true, p.sb.AbsByte(0x00)
	case "DI":
		return true, p.sb.AbsByte(0xF3)
	case "EI":
		return true, p.sb.AbsByte(0xFB)
	case "RETI":
		return true, p.sb.AbsByte(0xD9)
	case "CPL":
		return true, p.sb.AbsByte(0x2F)
	case "CCF":
		return true, p.sb.AbsByte(0x3F)
	case "SCF":
		return true, p.sb.AbsByte(0x37)
	case "DAA":
		return true, p.sb.AbsByte(0x27)
	case "RLCA":
		return true, p.sb.AbsByte(0x07)
	case "RRCA":
		return true, p.sb.AbsByte(0x0F)
	case "RLA":
		return true, p.sb.AbsByte(0x17)
	case "RRA":
		return true, p.sb.AbsByte(0x1F)
	case "RET":
		return true, p.asmRet(pos)
	case "LD", "LDH":
		return true, p.asmLD(up == "LDH", pos)
	case "INC", "DEC":
		return true, p.asmIncDec(up == "INC", pos)
	case "ADD", "ADC", "SUB", "SBC", "AND", "XOR", "OR", "CP":
		return true, p.asmALU(up, pos)
	case "PUSH", "POP":
		return true, p.asmStack(up == "PUSH", pos)
	case "JR":
		return true, p.asmJR(pos)
	case "JP":
		return true, p.asmJP(pos)
	case "CALL":
		return true, p.asmCall(pos)
	case "RST":
		return true, p.asmRST(pos)
	case "RLC", "RRC", "RL", "RR", "SLA", "SRA", "SWAP", "SRL":
		return true, p.asmCBRotate(up, pos)
	case "BIT", "RES", "SET":
		return true, p.asmCBBit(up, pos)
	}
	return false, nil
}

func regField(o operand) (byte, error) {
	if o.kind == opMemReg && o.reg == "HL" {
		return 6, nil
	}
	if o.kind != opReg {
		return 0, errors.Errorf("%s: expected an 8-bit register", o.pos)
	}
	code, ok := reg8Code[o.reg]
	if !ok {
		return 0, errors.Errorf("%s: %q is not an 8-bit register", o.pos, o.reg)
	}
	return code, nil
}

func (p *Parser) asmALU(mnemonic string, pos symbol.Pos) error {
	// ADD also allows "ADD HL, rr" and "ADD SP, e", handled up front.
	first, err := p.parseOperand()
	if err != nil {
		return err
	}
	base := map[string]byte{"ADD": 0x80, "ADC": 0x88, "SUB": 0x90, "SBC": 0x98, "AND": 0xA0, "XOR": 0xA8, "OR": 0xB0, "CP": 0xB8}[mnemonic]

	if mnemonic == "ADD" && first.kind == opReg && first.reg == "HL" {
		if err := p.expectComma(); err != nil {
			return err
		}
		rhs, err := p.parseOperand()
		if err != nil {
			return err
		}
		rr, ok := reg16CodeSP[rhs.reg]
		if rhs.kind != opReg || !ok {
			return errors.Errorf("%s: ADD HL expects a 16-bit register", rhs.pos)
		}
		return p.sb.AbsByte(0x09 | rr<<4)
	}
	if mnemonic == "ADD" && first.kind == opReg && first.reg == "SP" {
		if err := p.expectComma(); err != nil {
			return err
		}
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		if err := p.sb.AbsByte(0xE8); err != nil {
			return err
		}
		return p.emitByteExpr(e, pos)
	}

	var regOperand operand
	if mnemonic == "ADD" || mnemonic == "ADC" || mnemonic == "SBC" {
		if first.kind != opReg || first.reg != "A" {
			return errors.Errorf("%s: %s expects A as its first operand", first.pos, mnemonic)
		}
		if err := p.expectComma(); err != nil {
			return err
		}
		regOperand, err = p.parseOperand()
		if err != nil {
			return err
		}
	} else {
		regOperand = first
	}

	if regOperand.kind == opExpr {
		immBase := map[string]byte{"ADD": 0xC6, "ADC": 0xCE, "SUB": 0xD6, "SBC": 0xDE, "AND": 0xE6, "XOR": 0xEE, "OR": 0xF6, "CP": 0xFE}[mnemonic]
		if err := p.sb.AbsByte(immBase); err != nil {
			return err
		}
		return p.emitByteExpr(regOperand.expr, pos)
	}
	r, err := regField(regOperand)
	if err != nil {
		return err
	}
	return p.sb.AbsByte(base | r)
}

func (p *Parser) asmIncDec(inc bool, pos symbol.Pos) error {
	o, err := p.parseOperand()
	if err != nil {
		return err
	}
	if o.kind == opReg {
		if rr, ok := reg16CodeSP[o.reg]; ok {
			if inc {
				return p.sb.AbsByte(0x03 | rr<<4)
			}
			return p.sb.AbsByte(0x0B | rr<<4)
		}
	}
	r, err := regField(o)
	if err != nil {
		return err
	}
	if inc {
		return p.sb.AbsByte(0x04 | r<<3)
	}
	return p.sb.AbsByte(0x05 | r<<3)
}

// asmLD implements LD and LDH, including the documented peephole: a
// "LD A,[n]"/"LD [n],A" whose address folds to a constant in $FF00-$FFFF
// is rewritten to the shorter LDH encoding (spec.md §8 scenario 4).
func (p *Parser) asmLD(isLDH bool, pos symbol.Pos) error {
	dst, err := p.parseOperand()
	if err != nil {
		return err
	}
	if err := p.expectComma(); err != nil {
		return err
	}
	src, err := p.parseOperand()
	if err != nil {
		return err
	}

	switch {
	case dst.kind == opReg && dst.reg == "SP" && src.kind == opReg && src.reg == "HL":
		return p.sb.AbsByte(0xF9)
	case dst.kind == opReg && dst.reg == "HL" && src.kind == opSPOffset:
		if err := p.sb.AbsByte(0xF8); err != nil {
			return err
		}
		return p.emitByteExpr(src.expr, pos)
	case dst.kind == opMemExpr && src.kind == opReg && src.reg == "SP":
		if err := p.sb.AbsByte(0x08); err != nil {
			return err
		}
		return p.emitWordExpr(dst.expr, pos)
	}
	if dst.kind == opReg && dst.reg != "A" {
		if rr, ok := reg16CodeSP[dst.reg]; ok && src.kind == opExpr {
			return firstErr(p.sb.AbsByte(0x01|rr<<4), p.emitWordExpr(src.expr, pos))
		}
	}

	switch {
	case dst.kind == opMemReg && dst.reg == "BC" && src.kind == opReg && src.reg == "A":
		return p.sb.AbsByte(0x02)
	case dst.kind == opMemReg && dst.reg == "DE" && src.kind == opReg && src.reg == "A":
		return p.sb.AbsByte(0x12)
	case dst.kind == opReg && dst.reg == "A" && src.kind == opMemReg && src.reg == "BC":
		return p.sb.AbsByte(0x0A)
	case dst.kind == opReg && dst.reg == "A" && src.kind == opMemReg && src.reg == "DE":
		return p.sb.AbsByte(0x1A)
	case dst.kind == opMemInc && dst.reg == "HL" && src.kind == opReg && src.reg == "A":
		return p.sb.AbsByte(0x22)
	case dst.kind == opMemDec && dst.reg == "HL" && src.kind == opReg && src.reg == "A":
		return p.sb.AbsByte(0x32)
	case dst.kind == opReg && dst.reg == "A" && src.kind == opMemInc && src.reg == "HL":
		return p.sb.AbsByte(0x2A)
	case dst.kind == opReg && dst.reg == "A" && src.kind == opMemDec && src.reg == "HL":
		return p.sb.AbsByte(0x3A)
	case dst.kind == opMemReg && dst.reg == "C" && src.kind == opReg && src.reg == "A":
		return p.sb.AbsByte(0xE2)
	case dst.kind == opReg && dst.reg == "A" && src.kind == opMemReg && src.reg == "C":
		return p.sb.AbsByte(0xF2)
	}

	if dst.kind == opMemExpr && src.kind == opReg && src.reg == "A" {
		return p.ldHighOrAbs(true, dst.expr, pos, isLDH)
	}
	if dst.kind == opReg && dst.reg == "A" && src.kind == opMemExpr {
		return p.ldHighOrAbs(false, src.expr, pos, isLDH)
	}

	if src.kind == opExpr {
		r, err := regField(dst)
		if err != nil {
			return err
		}
		if err := p.sb.AbsByte(0x06 | r<<3); err != nil {
			return err
		}
		return p.emitByteExpr(src.expr, pos)
	}

	dr, err := regField(dst)
	if err != nil {
		return err
	}
	sr, err := regField(src)
	if err != nil {
		return err
	}
	return p.sb.AbsByte(0x40 | dr<<3 | sr)
}

// ldHighOrAbs implements the LD<->LDH peephole (spec.md §8 scenario 4).
// toA reports direction (true: "LD [addr],A"; false: "LD A,[addr]").
// isLDH forces the high-page form even when addr isn't yet known to be
// constant; the HRAM-window check is then deferred to link time.
func (p *Parser) ldHighOrAbs(toA bool, addr *rpn.Node, pos symbol.Pos, isLDH bool) error {
	highForm := isLDH || (p.opts.OptimizeLDH && addr.IsConst() && addr.Value >= 0xFF00 && addr.Value <= 0xFFFF)
	if highForm {
		op := byte(0xF0)
		if toA {
			op = 0xE0
		}
		if err := p.sb.AbsByte(op); err != nil {
			return err
		}
		if addr.IsConst() {
			return p.sb.AbsByte(byte(addr.Value & 0xFF))
		}
		// Address not yet known: defer the HRAM-window check and the
		// high/low split to link time.
		return p.sb.RelByte(rpn.Unary(rpn.Low, rpn.HRAMCheck(addr)), pos)
	}
	if toA {
		if err := p.sb.AbsByte(0xEA); err != nil {
			return err
		}
	} else {
		if err := p.sb.AbsByte(0xFA); err != nil {
			return err
		}
	}
	return p.emitWordExpr(addr, pos)
}

func (p *Parser) asmStack(push bool, pos symbol.Pos) error {
	o, err := p.parseOperand()
	if err != nil {
		return err
	}
	rr, ok := reg16CodeAF[o.reg]
	if o.kind != opReg || !ok {
		return errors.Errorf("%s: expected a 16-bit register pair", o.pos)
	}
	if push {
		return p.sb.AbsByte(0xC5 | rr<<4)
	}
	return p.sb.AbsByte(0xC1 | rr<<4)
}

// readCond consumes a leading condition operand if present, reporting
// whether one was found and its code.
func (p *Parser) readCond() (code byte, has bool, err error) {
	t := p.peek()
	if t.Kind != TokIdent {
		return 0, false, nil
	}
	up := strings.ToUpper(t.Text)
	c, ok := condCode[up]
	if !ok {
		return 0, false, nil
	}
	// lookahead: a bare condition is followed by a comma (JR/JP/CALL) or
	// ends the line (RET).
	switch n := p.peekAfter(); {
	case n.Kind == TokOp && n.Text == ",":
		p.advance()
		p.advance()
		return c, true, nil
	case n.Kind == TokNewline || n.Kind == TokEOF:
		p.advance()
		return c, true, nil
	}
	return 0, false, nil
}

func (p *Parser) asmJR(pos symbol.Pos) error {
	cc, has, err := p.readCond()
	if err != nil {
		return err
	}
	target, err := p.parseExpr()
	if err != nil {
		return err
	}
	if has {
		if err := p.sb.AbsByte(0x20 | cc<<3); err != nil {
			return err
		}
	} else {
		if err := p.sb.AbsByte(0x18); err != nil {
			return err
		}
	}
	return p.sb.PCRelByte(target, pos)
}

func (p *Parser) asmJP(pos symbol.Pos) error {
	if t := p.peek(); t.Kind == TokOp && t.Text == "[" {
		// JP [HL]
		save := *p
		p.advance()
		if r := p.peek(); r.Kind == TokIdent && strings.ToUpper(r.Text) == "HL" {
			p.advance()
			if n := p.peek(); n.Kind == TokOp && n.Text == "]" {
				p.advance()
				return p.sb.AbsByte(0xE9)
			}
		}
		*p = save
	}
	cc, has, err := p.readCond()
	if err != nil {
		return err
	}
	target, err := p.parseExpr()
	if err != nil {
		return err
	}
	if has {
		if err := p.sb.AbsByte(0xC2 | cc<<3); err != nil {
			return err
		}
	} else {
		if err := p.sb.AbsByte(0xC3); err != nil {
			return err
		}
	}
	return p.emitWordExpr(target, pos)
}

func (p *Parser) asmCall(pos symbol.Pos) error {
	cc, has, err := p.readCond()
	if err != nil {
		return err
	}
	target, err := p.parseExpr()
	if err != nil {
		return err
	}
	if has {
		if err := p.sb.AbsByte(0xC4 | cc<<3); err != nil {
			return err
		}
	} else {
		if err := p.sb.AbsByte(0xCD); err != nil {
			return err
		}
	}
	return p.emitWordExpr(target, pos)
}

func (p *Parser) asmRet(pos symbol.Pos) error {
	cc, has, err := p.readCond()
	if err != nil {
		return err
	}
	if has {
		return p.sb.AbsByte(0xC0 | cc<<3)
	}
	return p.sb.AbsByte(0xC9)
}

func (p *Parser) asmRST(pos symbol.Pos) error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	checked, err := rpn.RSTCheck(n).Fold(&asmResolver{tbl: p.tbl, b: p.sb})
	if err != nil {
		return errors.Wrapf(err, "%s", pos)
	}
	if checked.IsConst() {
		return p.sb.AbsByte(0xC7 | byte(checked.Value))
	}
	// Deferred: emit the opcode byte as a patch wrapped in the RST check,
	// resolved at link time once the vector is known.
	return p.sb.RelByte(rpn.Binary(rpn.BitOr, rpn.Const(0xC7), checked), pos)
}

func (p *Parser) asmCBRotate(mnemonic string, pos symbol.Pos) error {
	sub := map[string]byte{"RLC": 0, "RRC": 1, "RL": 2, "RR": 3, "SLA": 4, "SRA": 5, "SWAP": 6, "SRL": 7}[mnemonic]
	o, err := p.parseOperand()
	if err != nil {
		return err
	}
	r, err := regField(o)
	if err != nil {
		return err
	}
	if err := p.sb.AbsByte(0xCB); err != nil {
		return err
	}
	return p.sb.AbsByte(sub<<3 | r)
}

func (p *Parser) asmCBBit(mnemonic string, pos symbol.Pos) error {
	bitExpr, err := p.parseExpr()
	if err != nil {
		return err
	}
	if !bitExpr.IsConst() {
		return errors.Errorf("%s: bit index must be a constant", pos)
	}
	if err := rpn.CheckNBit(bitExpr.Value, 3); err != nil {
		return errors.Wrapf(err, "%s", pos)
	}
	if err := p.expectComma(); err != nil {
		return err
	}
	o, err := p.parseOperand()
	if err != nil {
		return err
	}
	r, err := regField(o)
	if err != nil {
		return err
	}
	base := map[string]byte{"BIT": 0x40, "RES": 0x80, "SET": 0xC0}[mnemonic]
	if err := p.sb.AbsByte(0xCB); err != nil {
		return err
	}
	return p.sb.AbsByte(base | byte(bitExpr.Value)<<3 | r)
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
