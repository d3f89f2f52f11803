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

// Options configures one assembly run.
type Options struct {
	IncludePaths      []string
	MaxRecursionDepth int
	OptimizeLDH       bool // when true, an "LD A,[n]"/"LD [n],A" whose address folds into $FF00-$FFFF is rewritten to LDH
}

// Parser drives the line-oriented grammar: it consumes tokens from lex,
// dispatches labels/directives/instructions, and accumulates emitted
// bytes and symbols into sb/tbl.
type Parser struct {
	lex *Lexer
	ctx *contextStack
	tbl *symbol.Table
	sb  *section.Builder

	cond condStack
	errs ErrAsm

	buf    [2]Token
	bufLen int

	opts Options
}

func newParser(ctx *contextStack, tbl *symbol.Table, sb *section.Builder, opts Options) *Parser {
	return &Parser{
		lex:  newLexer(ctx, tbl),
		ctx:  ctx,
		tbl:  tbl,
		sb:   sb,
		opts: opts,
	}
}

func (p *Parser) peek() Token {
	if p.bufLen == 0 {
		t, err := p.lex.Next()
		if err != nil {
			p.errs.add(Diagnostic{Pos: t.Pos, Severity: SevFatal, Message: err.Error()})
			t = Token{Kind: TokEOF, Pos: t.Pos}
		}
		p.buf[0] = t
		p.bufLen = 1
	}
	return p.buf[0]
}

func (p *Parser) advance() {
	if p.bufLen == 0 {
		p.peek()
	}
	for i := 1; i < p.bufLen; i++ {
		p.buf[i-1] = p.buf[i]
	}
	p.bufLen--
}

// peekAfter returns the token following the current lookahead token
// without consuming either, used for "IDENT EQU/SET/EQUS ..." lookahead.
func (p *Parser) peekAfter() Token {
	p.peek()
	for p.bufLen < 2 {
		next, err := p.lex.Next()
		if err != nil {
			return Token{Kind: TokEOF}
		}
		p.buf[p.bufLen] = next
		p.bufLen++
	}
	return p.buf[1]
}

// labelExpr builds the expression a symbol reference folds down to: its
// name, left for asmResolver/the linker's resolver to settle by kind.
func (p *Parser) labelExpr(s *symbol.Symbol) (*rpn.Node, error) {
	if s.Kind == symbol.MACRO || s.Kind == symbol.EQUS {
		return nil, errors.Errorf("%s: %q (a %s) cannot be used as a value", s.DefPos, s.Name, s.Kind)
	}
	return rpn.Symbol(s.Name), nil
}

func (p *Parser) skipToNewline() {
	for {
		t := p.peek()
		if t.Kind == TokNewline || t.Kind == TokEOF {
			return
		}
		p.advance()
	}
}

func (p *Parser) expectComma() error { return p.expectOp(",") }

// assembleSource parses src (already read from name by the caller) and
// returns the accumulated symbol table and section builder, ready for
// objfile.FromBuilder. Assemble (asm.go) is the package's public entry
// point.
func assembleSource(name string, src string, opts Options) (*symbol.Table, *section.Builder, []string, error) {
	if opts.MaxRecursionDepth == 0 {
		opts.MaxRecursionDepth = 64
	}
	ctx := newContextStack(opts.MaxRecursionDepth, opts.IncludePaths)
	if err := ctx.push(&contextFrame{kind: frameInclude, name: name, body: src, line: 1}); err != nil {
		return nil, nil, nil, err
	}
	ctx.depFile = append(ctx.depFile, name)

	tbl := symbol.New()
	tbl.SetFile(name)
	sb := section.NewBuilder()

	p := newParser(ctx, tbl, sb, opts)
	if err := p.run(); err != nil {
		return nil, nil, nil, err
	}
	if p.errs.HasErrors() {
		return nil, nil, nil, &p.errs
	}
	return tbl, sb, ctx.depFile, nil
}

func (p *Parser) run() error {
	for {
		t := p.peek()
		switch t.Kind {
		case TokEOF:
			if len(p.cond.levels) != 0 {
				return errors.Errorf("%s: unterminated IF block at end of input", t.Pos)
			}
			return nil
		case TokNewline:
			p.advance()
		case TokLabel:
			p.advance()
			if p.cond.active() {
				// "Name: MACRO ... ENDM" is the one grammar ambiguity
				// T_LABEL admits (spec.md §4.2): a label immediately
				// followed by MACRO defines a macro instead of a label.
				if nt := p.peek(); nt.Kind == TokIdent && strings.ToUpper(nt.Text) == "MACRO" {
					p.advance()
					if err := p.directiveMacroDefNamed(t.Text, t.Pos); err != nil {
						return err
					}
				} else if err := p.defineLabel(t.Text, t.Pos); err != nil {
					return err
				}
			}
		case TokAnon:
			p.advance()
			if p.cond.active() {
				if err := p.defineLabel("@", t.Pos); err != nil {
					return err
				}
			}
		case TokIdent:
			if err := p.statement(t); err != nil {
				return err
			}
		default:
			if !p.cond.active() {
				p.skipToNewline()
				continue
			}
			return errors.Errorf("%s: unexpected token %q at start of line", t.Pos, t.Text)
		}
	}
}

func (p *Parser) defineLabel(name string, pos symbol.Pos) error {
	active := p.sb.Active()
	if active == nil {
		return errors.Errorf("%s: label %q defined outside of a SECTION", pos, name)
	}
	off := uint32(len(active.Data))
	if active.Data == nil {
		off = active.Size // RAM sections reserve space without storing bytes
	}
	_, err := p.tbl.DefineLabel(name, false, active.Name, off, pos)
	return err
}

// statement dispatches one line's leading identifier as a conditional
// directive (always honored, even while skipping, so skip nesting tracks
// correctly), another directive (only while the enclosing IF is active),
// an instruction mnemonic, or a macro invocation.
func (p *Parser) statement(t Token) error {
	upper := strings.ToUpper(t.Text)

	switch upper {
	case "IF":
		p.advance()
		if !p.cond.active() {
			p.skipToNewline()
			p.cond.pushIf(false)
			return nil
		}
		n, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.cond.pushIf(n.IsConst() && n.Value != 0)
		return nil
	case "ELIF":
		p.advance()
		if !p.condParentActive() {
			p.skipToNewline()
			return p.cond.elif(false)
		}
		n, err := p.parseExpr()
		if err != nil {
			return err
		}
		return p.cond.elif(n.IsConst() && n.Value != 0)
	case "ELSE":
		p.advance()
		p.skipToNewline()
		return p.cond.els()
	case "ENDC":
		p.advance()
		p.skipToNewline()
		return p.cond.endc()
	}

	if !p.cond.active() {
		p.skipToNewline()
		return nil
	}

	p.advance() // consume the mnemonic so its first operand is the lookahead
	if handled, err := p.tryInstruction(t.Text, t.Pos); handled || err != nil {
		if err != nil {
			return err
		}
		p.skipToNewline()
		return nil
	}
	// Not an instruction: put the leading identifier back in front of the
	// lookahead for the directive dispatch below.
	copy(p.buf[1:], p.buf[:p.bufLen])
	p.buf[0] = t
	p.bufLen++

	switch upper {
	case "DEF":
		p.advance()
		return p.directiveDef()
	case "SECTION":
		p.advance()
		return p.directiveSection()
	case "DB":
		p.advance()
		return p.directiveData(1)
	case "DW":
		p.advance()
		return p.directiveData(2)
	case "DL":
		p.advance()
		return p.directiveData(4)
	case "DS":
		p.advance()
		return p.directiveDS()
	case "EXPORT":
		p.advance()
		return p.directiveExport()
	case "PURGE":
		p.advance()
		return p.directivePurge()
	case "INCLUDE":
		p.advance()
		name, err := p.expectStringText()
		if err != nil {
			return err
		}
		return p.ctx.pushInclude(name)
	case "REPT":
		p.advance()
		return p.directiveRept()
	case "FOR":
		p.advance()
		return p.directiveFor()
	case "SHIFT":
		p.advance()
		if f := p.ctx.top(); f != nil && f.kind == frameMacro && f.macroShift < len(f.macroArgs) {
			f.macroShift++
			f.macroArgs = f.macroArgs[1:]
		}
		return nil
	case "ALIGN":
		p.advance()
		return p.directiveAlign()
	case "PUSHS":
		p.advance()
		p.sb.Push()
		return nil
	case "POPS":
		p.advance()
		return p.sb.Pop()
	case "UNION":
		p.advance()
		return p.sb.BeginUnion()
	case "NEXTU":
		p.advance()
		return p.sb.NextUnionArm()
	case "ENDU":
		p.advance()
		return p.sb.EndUnion()
	case "LOAD":
		p.advance()
		return p.directiveLoad()
	case "ENDL":
		p.advance()
		return p.sb.EndLoad()
	case "RB":
		p.advance()
		return p.directiveRS(1, t.Pos)
	case "RW":
		p.advance()
		return p.directiveRS(2, t.Pos)
	case "RL":
		p.advance()
		return p.directiveRS(4, t.Pos)
	case "RSRESET":
		p.advance()
		p.tbl.ResetRS(0)
		return nil
	case "RSSET":
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return err
		}
		if !n.IsConst() {
			return errors.Errorf("%s: RSSET requires a constant", t.Pos)
		}
		p.tbl.ResetRS(n.Value)
		return nil
	case "ASSERT", "STATIC_ASSERT":
		p.advance()
		return p.directiveAssert(t.Pos)
	case "BREAK":
		p.advance()
		return p.directiveBreak(t.Pos)
	case "REDEF":
		p.advance()
		return p.directiveEqus(true)
	}

	// Not a recognized directive: either a "name EQU/SET/EQUS expr" form
	// or a macro invocation.
	if next := p.peekAfter(); next.Kind == TokIdent {
		switch strings.ToUpper(next.Text) {
		case "EQU":
			p.advance()
			p.advance()
			return p.directiveEqu(t.Text, t.Pos)
		case "EQUS":
			p.advance()
			p.advance()
			return p.directiveEqusNamed(t.Text, false)
		case "SET":
			p.advance()
			p.advance()
			return p.directiveSet(t.Text, t.Pos)
		}
	}
	if next := p.peekAfter(); next.Kind == TokOp && next.Text == "=" {
		p.advance()
		p.advance()
		return p.directiveSet(t.Text, t.Pos)
	}

	if s, ok := p.tbl.Lookup(t.Text); ok && s.Kind == symbol.MACRO {
		p.advance()
		return p.invokeMacro(s)
	}

	return errors.Errorf("%s: unrecognized instruction or directive %q", t.Pos, t.Text)
}

func (p *Parser) condParentActive() bool {
	if len(p.cond.levels) < 2 {
		return true
	}
	for _, s := range p.cond.levels[:len(p.cond.levels)-1] {
		if s != condRun && s != condSawElse {
			return false
		}
	}
	return true
}

func (p *Parser) directiveSection() error {
	name, err := p.expectStringText()
	if err != nil {
		return err
	}
	if err := p.expectComma(); err != nil {
		return err
	}
	typeName, err := p.expectIdentText()
	if err != nil {
		return err
	}
	mod := section.Normal
	for {
		t := p.peek()
		if t.Kind != TokOp || t.Text != "," {
			break
		}
		p.advance()
		kw, err := p.expectIdentText()
		if err != nil {
			return err
		}
		switch strings.ToUpper(kw) {
		case "UNION":
			mod = section.Union
		case "FRAGMENT":
			mod = section.Fragment
		case "BANK":
			if err := p.expectOp("("); err != nil {
				return err
			}
			if _, err := p.parseExpr(); err != nil {
				return err
			}
			if err := p.expectOp(")"); err != nil {
				return err
			}
		case "ALIGN":
			if err := p.expectOp("("); err != nil {
				return err
			}
			if _, err := p.parseExpr(); err != nil {
				return err
			}
			if err := p.expectOp(")"); err != nil {
				return err
			}
		}
	}
	typ, err := section.TypeByName(strings.ToUpper(typeName))
	if err != nil {
		return errors.Wrapf(err, "section %q", name)
	}
	var org *uint16
	if t := p.peek(); t.Kind == TokOp && t.Text == "[" {
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return err
		}
		if err := p.expectOp("]"); err != nil {
			return err
		}
		if n.IsConst() {
			v := uint16(n.Value)
			org = &v
		}
	}
	return p.sb.Declare(name, typ, mod, org, nil, section.Align{})
}

func (p *Parser) directiveData(width int) error {
	for {
		t := p.peek()
		if t.Kind == TokString && width == 1 {
			p.advance()
			for i := 0; i < len(t.Text); i++ {
				if err := p.sb.AbsByte(t.Text[i]); err != nil {
					return err
				}
			}
		} else {
			n, err := p.parseExpr()
			if err != nil {
				return err
			}
			switch width {
			case 1:
				if err := p.emitByteExpr(n, t.Pos); err != nil {
					return err
				}
			case 2:
				if err := p.emitWordExpr(n, t.Pos); err != nil {
					return err
				}
			case 4:
				if err := p.emitLongExpr(n, t.Pos); err != nil {
					return err
				}
			}
		}
		if nt := p.peek(); nt.Kind == TokOp && nt.Text == "," {
			p.advance()
			continue
		}
		return nil
	}
}

func (p *Parser) directiveDS() error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	if !n.IsConst() {
		return errors.New("DS length must be constant")
	}
	var fill []byte
	for {
		t := p.peek()
		if t.Kind != TokOp || t.Text != "," {
			break
		}
		p.advance()
		ft := p.peek()
		if ft.Kind == TokString {
			p.advance()
			fill = append(fill, []byte(ft.Text)...)
			continue
		}
		fn, err := p.parseExpr()
		if err != nil {
			return err
		}
		if !fn.IsConst() {
			return errors.New("DS fill value must be constant")
		}
		fill = append(fill, byte(fn.Value))
	}
	return p.sb.DS(uint32(n.Value), fill)
}

// directiveDef implements "DEF name EQU/SET/EQUS expr" and "DEF name =
// expr": a uniform prefix over the three equate forms.
func (p *Parser) directiveDef() error {
	name, pos, err := p.expectIdentTextPos()
	if err != nil {
		return err
	}
	t := p.peek()
	if t.Kind == TokIdent {
		switch strings.ToUpper(t.Text) {
		case "EQU":
			p.advance()
			return p.directiveEqu(name, pos)
		case "EQUS":
			p.advance()
			return p.directiveEqusNamed(name, false)
		case "SET":
			p.advance()
			return p.directiveSet(name, pos)
		}
	}
	if t.Kind == TokOp && t.Text == "=" {
		p.advance()
		return p.directiveSet(name, pos)
	}
	return errors.Errorf("%s: expected EQU, EQUS, SET, or '=' after DEF %s", pos, name)
}

func (p *Parser) directiveEqu(name string, pos symbol.Pos) error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	if !n.IsConst() {
		return errors.Errorf("%s: EQU value must be a constant", pos)
	}
	return p.tbl.DefineEqu(name, n.Value, pos)
}

func (p *Parser) directiveSet(name string, pos symbol.Pos) error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	if !n.IsConst() {
		return errors.Errorf("%s: SET value must be a constant", pos)
	}
	return p.tbl.DefineVar(name, n.Value, pos)
}

func (p *Parser) directiveEqus(redef bool) error {
	name, err := p.expectIdentText()
	if err != nil {
		return err
	}
	return p.directiveEqusNamed(name, redef)
}

func (p *Parser) directiveEqusNamed(name string, redef bool) error {
	t := p.peek()
	if t.Kind != TokString {
		return errors.Errorf("%s: EQUS requires a string literal", t.Pos)
	}
	p.advance()
	return p.tbl.DefineEqus(name, t.Text, redef, t.Pos)
}

func (p *Parser) directiveExport() error {
	for {
		name, err := p.expectIdentText()
		if err != nil {
			return err
		}
		s, err := p.tbl.Ref(name, symbol.Pos{})
		if err != nil {
			return err
		}
		s.Exported = true
		if nt := p.peek(); nt.Kind == TokOp && nt.Text == "," {
			p.advance()
			continue
		}
		return nil
	}
}

func (p *Parser) directivePurge() error {
	for {
		name, err := p.expectIdentText()
		if err != nil {
			return err
		}
		if err := p.tbl.Purge(name); err != nil {
			return err
		}
		if nt := p.peek(); nt.Kind == TokOp && nt.Text == "," {
			p.advance()
			continue
		}
		return nil
	}
}

func (p *Parser) directiveAlign() error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	if !n.IsConst() {
		return errors.New("ALIGN requires a constant")
	}
	offset := int32(0)
	if t := p.peek(); t.Kind == TokOp && t.Text == "," {
		p.advance()
		on, err := p.parseExpr()
		if err != nil {
			return err
		}
		if !on.IsConst() {
			return errors.New("ALIGN offset must be constant")
		}
		offset = on.Value
	}
	return p.sb.AlignPad(section.Align{N: uint8(n.Value), Offset: uint16(offset)})
}

func (p *Parser) directiveLoad() error {
	name, err := p.expectStringText()
	if err != nil {
		return err
	}
	if err := p.expectComma(); err != nil {
		return err
	}
	if _, err := p.expectIdentText(); err != nil {
		return err
	}
	var org uint16
	if t := p.peek(); t.Kind == TokOp && t.Text == "[" {
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return err
		}
		if err := p.expectOp("]"); err != nil {
			return err
		}
		if n.IsConst() {
			org = uint16(n.Value)
		}
	}
	p.sb.BeginLoad(name, org, 0)
	return nil
}

func (p *Parser) directiveRS(width int32, pos symbol.Pos) error {
	name, err := p.expectIdentText()
	if err != nil {
		return err
	}
	count := int32(1)
	if t := p.peek(); t.Kind == TokOp && t.Text == "," {
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return err
		}
		if !n.IsConst() {
			return errors.New("RB/RW/RL count must be constant")
		}
		count = n.Value
	}
	v := p.tbl.RS(width, count)
	return p.tbl.DefineEqu(name, v, pos)
}

func (p *Parser) directiveAssert(pos symbol.Pos) error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	msg := ""
	if t := p.peek(); t.Kind == TokOp && t.Text == "," {
		p.advance()
		s, err := p.expectStringText()
		if err != nil {
			return err
		}
		msg = s
	}
	if n.IsConst() && n.Value == 0 {
		return errors.Errorf("%s: assertion failed: %s", pos, msg)
	}
	return nil
}

func (p *Parser) directiveBreak(pos symbol.Pos) error {
	f := p.ctx.top()
	if f == nil || f.kind != frameRept {
		return errors.Errorf("%s: BREAK outside of REPT/FOR", pos)
	}
	f.pos = len(f.body)
	f.reptRemaining = 0
	return nil
}

// directiveRept captures the body of a REPT N ... ENDR block and pushes
// it as a context frame replaying N times.
func (p *Parser) directiveRept() error {
	n, err := p.parseExpr()
	if err != nil {
		return err
	}
	if !n.IsConst() {
		return errors.New("REPT count must be constant")
	}
	p.skipToNewline()
	body, firstPos, err := p.captureBody([]string{"REPT", "FOR"}, "ENDR")
	if err != nil {
		return err
	}
	return p.ctx.pushRept(body, firstPos.Line, int(n.Value))
}

func (p *Parser) directiveFor() error {
	varName, err := p.expectIdentText()
	if err != nil {
		return err
	}
	if err := p.expectComma(); err != nil {
		return err
	}
	a, err := p.parseExpr()
	if err != nil {
		return err
	}
	start, stop := rpn.Const(0), a
	step := rpn.Const(1)
	if t := p.peek(); t.Kind == TokOp && t.Text == "," {
		p.advance()
		b, err := p.parseExpr()
		if err != nil {
			return err
		}
		start, stop = a, b
		if t2 := p.peek(); t2.Kind == TokOp && t2.Text == "," {
			p.advance()
			c, err := p.parseExpr()
			if err != nil {
				return err
			}
			step = c
		}
	}
	if !start.IsConst() || !stop.IsConst() || !step.IsConst() {
		return errors.New("FOR bounds must be constant")
	}
	p.skipToNewline()
	body, firstPos, err := p.captureBody([]string{"REPT", "FOR"}, "ENDR")
	if err != nil {
		return err
	}
	p.tbl.SetBuiltinValue(varName, start.Value)
	return p.ctx.pushFor(varName, body, firstPos.Line, start.Value, stop.Value, step.Value)
}

// directiveMacroDefNamed captures a "Name: MACRO ... ENDM" block's body,
// name already consumed as the preceding label token.
func (p *Parser) directiveMacroDefNamed(name string, pos symbol.Pos) error {
	p.skipToNewline()
	body, firstPos, err := p.captureBody([]string{"MACRO"}, "ENDM")
	if err != nil {
		return err
	}
	return p.tbl.DefineMacro(name, body, firstPos, pos, true)
}

func (p *Parser) invokeMacro(s *symbol.Symbol) error {
	var args []string
	for {
		t := p.peek()
		if t.Kind == TokNewline || t.Kind == TokEOF {
			break
		}
		args = append(args, t.Text)
		p.advance()
		if nt := p.peek(); nt.Kind == TokOp && nt.Text == "," {
			p.advance()
			continue
		}
		break
	}
	p.tbl.BeginMacroExpansion(s.Name)
	if err := p.ctx.pushMacro(s.Name, s.MacroBody, s.MacroFirstPos.Line, args); err != nil {
		return err
	}
	if f := p.ctx.top(); f != nil {
		f.macroExpand = s.Name
	}
	p.tbl.SetBuiltinValue("_NARG", int32(len(args)))
	p.buf = [2]Token{}
	p.bufLen = 0
	return nil
}

// captureBody reads raw source lines directly from the current frame
// (bypassing token lexing, so nested directives aren't expanded) until a
// line whose first word is closeKw at nesting depth zero; a line whose
// first word is one of openKws increments the depth (REPT/FOR both close
// on ENDR, so either must be able to open a nested level). Returns the
// body text excluding the closing line.
func (p *Parser) captureBody(openKws []string, closeKw string) (string, symbol.Pos, error) {
	f := p.ctx.top()
	if f == nil {
		return "", symbol.Pos{}, errors.New("unexpected end of input capturing block body")
	}
	firstPos := symbol.Pos{File: p.lex.frameLabel(f), Line: f.line}
	start := f.pos
	depth := 1
	for {
		lineStart := f.pos
		for f.pos < len(f.body) && f.body[f.pos] != '\n' {
			f.pos++
		}
		line := f.body[lineStart:f.pos]
		if f.pos >= len(f.body) {
			return "", symbol.Pos{}, errors.Errorf("%s: unterminated block, expected %s", firstPos, closeKw)
		}
		f.pos++
		f.line++
		word := firstWordUpper(line)
		for _, kw := range openKws {
			if word == kw {
				depth++
				break
			}
		}
		if word == closeKw {
			depth--
			if depth == 0 {
				return f.body[start:lineStart], firstPos, nil
			}
		}
	}
}

func firstWordUpper(line string) string {
	s := strings.TrimSpace(line)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	end := 0
	for end < len(s) && isIdentCont(s[end]) && s[end] != '@' {
		end++
	}
	if end == 0 {
		return ""
	}
	return strings.ToUpper(s[:end])
}
