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
	"github.com/kkpan11/rgbds/section"
	"github.com/kkpan11/rgbds/symbol"
)

// asmResolver folds whatever is already knowable during assembly
// (EQU/VAR/BUILTIN values, labels in sections whose org is already
// fixed); everything else is left symbolic for the linker's own
// Resolver to finish, per spec.md §4.4's knownness bit.
type asmResolver struct {
	tbl *symbol.Table
	b   *section.Builder
}

func (r *asmResolver) Symbol(name string) (int32, bool, error) {
	s, ok := r.tbl.Lookup(name)
	if !ok || !s.Defined {
		return 0, false, nil
	}
	switch s.Kind {
	case symbol.EQU, symbol.VAR, symbol.BUILTIN:
		return s.Value, true, nil
	case symbol.LABEL:
		for _, sec := range r.b.Sections() {
			if sec.Name == s.SectionName && sec.Org != nil {
				return int32(*sec.Org) + int32(s.Offset), true, nil
			}
		}
		return 0, false, nil
	default:
		return 0, false, nil
	}
}

func (r *asmResolver) SectionBank(name string) (int32, bool, error) {
	for _, sec := range r.b.Sections() {
		if sec.Name == name && sec.Bank != nil {
			return *sec.Bank, true, nil
		}
	}
	return 0, false, nil
}

func (r *asmResolver) SectionSize(name string) (int32, bool, error)  { return 0, false, nil }
func (r *asmResolver) SectionStart(name string) (int32, bool, error) { return 0, false, nil }
func (r *asmResolver) CurrentBank() (int32, bool, error)             { return 0, false, nil }

// precedence table, low to high; unary operators bind tighter than any
// binary operator and are handled in parsePrimary.
var binPrec = map[string]int{
	"||": 1, "&&": 2,
	"|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6, "<": 6, ">": 6, "<=": 6, ">=": 6,
	"<<": 7, ">>": 7, ">>>": 7,
	"+": 8, "-": 8,
	"*": 9, "/": 9, "%": 9,
	"**": 10,
}

var binOp = map[string]rpn.Op{
	"||": rpn.LogOr, "&&": rpn.LogAnd,
	"|": rpn.BitOr, "^": rpn.BitXor, "&": rpn.BitAnd,
	"==": rpn.Eq, "!=": rpn.Ne, "<": rpn.Lt, ">": rpn.Gt, "<=": rpn.Le, ">=": rpn.Ge,
	"<<": rpn.Shl, ">>": rpn.Shr, ">>>": rpn.Ushr,
	"+": rpn.Add, "-": rpn.Sub,
	"*": rpn.Mul, "/": rpn.Div, "%": rpn.Mod,
	"**": rpn.Exp,
}

// parseExpr parses a full expression using precedence climbing, then
// folds whatever is already knowable (asmResolver).
func (p *Parser) parseExpr() (*rpn.Node, error) {
	n, err := p.parseExprPrec(0)
	if err != nil {
		return nil, err
	}
	res := &asmResolver{tbl: p.tbl, b: p.sb}
	return n.Fold(res)
}

func (p *Parser) parseExprPrec(minPrec int) (*rpn.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind != TokOp {
			return left, nil
		}
		prec, ok := binPrec[t.Text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseExprPrec(prec + 1)
		if err != nil {
			return nil, err
		}
		left = rpn.Binary(binOp[t.Text], left, right)
	}
}

func (p *Parser) parseUnary() (*rpn.Node, error) {
	t := p.peek()
	if t.Kind == TokOp {
		switch t.Text {
		case "-":
			p.advance()
			a, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return rpn.Unary(rpn.Neg, a), nil
		case "~":
			p.advance()
			a, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return rpn.Unary(rpn.BitNot, a), nil
		case "!":
			p.advance()
			a, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return rpn.Unary(rpn.LogNot, a), nil
		case "+":
			p.advance()
			return p.parseUnary()
		}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (*rpn.Node, error) {
	t := p.peek()
	switch t.Kind {
	case TokNumber:
		p.advance()
		return rpn.Const(t.IVal), nil
	case TokString:
		p.advance()
		return stringAsNumber(t.Text), nil
	case TokAnon:
		p.advance()
		return nil, errors.Errorf("%s: ':' is a label definition, not a value", t.Pos)
	case TokAnonRef:
		p.advance()
		s, err := p.tbl.AnonymousTarget(t.Anon, t.Count)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", t.Pos)
		}
		return p.labelExpr(s)
	case TokOp:
		if t.Text == "(" {
			p.advance()
			n, err := p.parseExprPrec(0)
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return n, nil
		}
		if t.Text == "@" {
			p.advance()
			return p.sb.PC()
		}
	case TokIdent, TokLocalIdent:
		return p.parseIdentPrimary(t)
	}
	return nil, errors.Errorf("%s: unexpected token %q in expression", t.Pos, t.Text)
}

func (p *Parser) parseIdentPrimary(t Token) (*rpn.Node, error) {
	upper := strings.ToUpper(t.Text)
	switch upper {
	case "HIGH", "LOW":
		p.advance()
		a, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		op := rpn.High
		if upper == "LOW" {
			op = rpn.Low
		}
		return rpn.Unary(op, a), nil
	case "BANK":
		p.advance()
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		if at := p.peek(); at.Kind == TokOp && at.Text == "@" {
			p.advance()
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return p.sb.BankExpr()
		}
		if s := p.peek(); s.Kind == TokString {
			p.advance()
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return rpn.BankOfSection(s.Text), nil
		}
		name, err := p.expectIdentText()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return rpn.BankOf(name), nil
	case "SIZEOF", "STARTOF":
		p.advance()
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		name, err := p.expectStringText()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		if upper == "SIZEOF" {
			return rpn.SizeofSection(name), nil
		}
		return rpn.StartofSection(name), nil
	case "FDIV", "FMUL", "FMOD", "POW", "LOG", "ATAN2":
		p.advance()
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return p.foldFixedBinary(upper, args, t.Pos)
	case "SIN", "COS", "TAN", "ASIN", "ACOS", "ATAN", "ROUND", "CEIL", "FLOOR":
		p.advance()
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return p.foldFixedUnary(upper, args, t.Pos)
	case "ISCONST":
		p.advance()
		a, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		if a.IsConst() {
			return rpn.Const(1), nil
		}
		return rpn.Const(0), nil
	case "DEF":
		p.advance()
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		prevNoExpand := p.lex.NoExpand
		p.lex.NoExpand = true
		name, err := p.expectIdentText()
		p.lex.NoExpand = prevNoExpand
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		_, ok := p.tbl.Lookup(name)
		if ok {
			return rpn.Const(1), nil
		}
		return rpn.Const(0), nil
	}
	p.advance()
	s, err := p.tbl.Ref(t.Text, t.Pos)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", t.Pos)
	}
	return p.labelExpr(s)
}

func (p *Parser) parseParenExpr() (*rpn.Node, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	n, err := p.parseExprPrec(0)
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseArgList parses a parenthesized, comma-separated argument list,
// folding each argument eagerly (the fixed-point intrinsics below all
// require constant arguments).
func (p *Parser) parseArgList() ([]*rpn.Node, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	res := &asmResolver{tbl: p.tbl, b: p.sb}
	var args []*rpn.Node
	for {
		n, err := p.parseExprPrec(0)
		if err != nil {
			return nil, err
		}
		n, err = n.Fold(res)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
		if nt := p.peek(); nt.Kind == TokOp && nt.Text == "," {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return args, nil
}

// fixedPrecision returns DefaultPrecision, or the explicit precision
// argument if present at index idx.
func fixedPrecision(args []*rpn.Node, idx int) (int32, error) {
	if idx >= len(args) {
		return rpn.DefaultPrecision, nil
	}
	q := args[idx]
	if !q.IsConst() {
		return 0, errors.Errorf("fixed-point precision argument must be constant")
	}
	if err := rpn.CheckPrecision(q.Value); err != nil {
		return 0, err
	}
	return q.Value, nil
}

// foldFixedBinary implements FDIV/FMUL/FMOD/POW/LOG/ATAN2: two operands
// plus an optional trailing precision (spec.md §4.4's "precision passed
// per-call or defaulted"). Every fixed-point intrinsic requires its
// value arguments to already be constant; there's no deferred-to-link
// form for transcendental math.
func (p *Parser) foldFixedBinary(name string, args []*rpn.Node, pos symbol.Pos) (*rpn.Node, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, errors.Errorf("%s: %s takes 2 or 3 arguments", pos, name)
	}
	a, b := args[0], args[1]
	if !a.IsConst() || !b.IsConst() {
		return nil, errors.Errorf("%s: %s requires constant arguments", pos, name)
	}
	q, err := fixedPrecision(args, 2)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", pos)
	}
	switch name {
	case "FDIV":
		v, err := rpn.FDiv(a.Value, b.Value, q)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", pos)
		}
		return rpn.Const(v), nil
	case "FMUL":
		return rpn.Const(rpn.FMul(a.Value, b.Value, q)), nil
	case "FMOD":
		v, err := rpn.FMod(a.Value, b.Value, q)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", pos)
		}
		return rpn.Const(v), nil
	case "POW":
		return rpn.Const(rpn.Pow(a.Value, b.Value, q)), nil
	case "LOG":
		v, err := rpn.Log(a.Value, b.Value, q)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", pos)
		}
		return rpn.Const(v), nil
	case "ATAN2":
		return rpn.Const(rpn.Atan2(a.Value, b.Value, q)), nil
	default:
		return nil, errors.Errorf("%s: unknown fixed-point intrinsic %s", pos, name)
	}
}

// foldFixedUnary implements SIN/COS/TAN/ASIN/ACOS/ATAN/ROUND/CEIL/FLOOR:
// one operand plus an optional trailing precision.
func (p *Parser) foldFixedUnary(name string, args []*rpn.Node, pos symbol.Pos) (*rpn.Node, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errors.Errorf("%s: %s takes 1 or 2 arguments", pos, name)
	}
	a := args[0]
	if !a.IsConst() {
		return nil, errors.Errorf("%s: %s requires a constant argument", pos, name)
	}
	q, err := fixedPrecision(args, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", pos)
	}
	switch name {
	case "SIN":
		return rpn.Const(rpn.Sin(a.Value, q)), nil
	case "COS":
		return rpn.Const(rpn.Cos(a.Value, q)), nil
	case "TAN":
		return rpn.Const(rpn.Tan(a.Value, q)), nil
	case "ASIN":
		return rpn.Const(rpn.Asin(a.Value, q)), nil
	case "ACOS":
		return rpn.Const(rpn.Acos(a.Value, q)), nil
	case "ATAN":
		return rpn.Const(rpn.Atan(a.Value, q)), nil
	case "ROUND":
		return rpn.Const(rpn.Round(a.Value, q)), nil
	case "CEIL":
		return rpn.Const(rpn.Ceil(a.Value, q)), nil
	case "FLOOR":
		return rpn.Const(rpn.Floor(a.Value, q)), nil
	default:
		return nil, errors.Errorf("%s: unknown fixed-point intrinsic %s", pos, name)
	}
}

func (p *Parser) expectOp(text string) error {
	t := p.peek()
	if t.Kind != TokOp || t.Text != text {
		return errors.Errorf("%s: expected %q, got %q", t.Pos, text, t.Text)
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdentTextPos() (string, symbol.Pos, error) {
	t := p.peek()
	if t.Kind != TokIdent && t.Kind != TokLocalIdent {
		return "", t.Pos, errors.Errorf("%s: expected identifier, got %q", t.Pos, t.Text)
	}
	p.advance()
	return t.Text, t.Pos, nil
}

func (p *Parser) expectIdentText() (string, error) {
	t := p.peek()
	if t.Kind != TokIdent && t.Kind != TokLocalIdent {
		return "", errors.Errorf("%s: expected identifier, got %q", t.Pos, t.Text)
	}
	p.advance()
	return t.Text, nil
}

func (p *Parser) expectStringText() (string, error) {
	t := p.peek()
	if t.Kind != TokString {
		return "", errors.Errorf("%s: expected a quoted section name, got %q", t.Pos, t.Text)
	}
	p.advance()
	return t.Text, nil
}

// stringAsNumber reinterprets a string literal as a packed big-endian
// integer of its first up-to-4 bytes (the "string-as-number" token
// class of spec.md §4.1).
func stringAsNumber(s string) *rpn.Node {
	var v int32
	n := len(s)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		v = (v << 8) | int32(s[i])
	}
	return rpn.Const(v)
}
