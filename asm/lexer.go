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
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/kkpan11/rgbds/symbol"
)

// Lexer tokenizes the character stream supplied by a contextStack,
// transparently following INCLUDE/MACRO/REPT frame boundaries. String
// literals are EQUS/EQU-interpolated ("{sym}") against tbl, unless
// NoExpand is set (around DEF/REDEF/PURGE/FOR identifier capture, per
// spec.md §4.1).
type Lexer struct {
	ctx      *contextStack
	tbl      *symbol.Table
	NoExpand bool

	prevKind TokKind // last token's kind, to disambiguate '%'/'&' prefix vs operator
}

func newLexer(ctx *contextStack, tbl *symbol.Table) *Lexer {
	return &Lexer{ctx: ctx, tbl: tbl}
}

// curPos reports the position of the next rune to be read, for
// diagnostics.
func (l *Lexer) curPos() symbol.Pos {
	f := l.ctx.top()
	if f == nil {
		return symbol.Pos{}
	}
	return symbol.Pos{File: l.frameLabel(f), Line: f.line}
}

func (l *Lexer) frameLabel(f *contextFrame) string {
	switch f.kind {
	case frameMacro:
		return f.name + "::" + f.macroUID
	case frameRept:
		return f.name + "~" + strconv.Itoa(f.reptIteration)
	default:
		return f.name
	}
}

// advanceFrame pops exhausted frames, restarting REPT/FOR frames that
// still have iterations left instead of popping them (SUPPLEMENTED:
// each iteration is a distinct frame reusing the captured body).
func (l *Lexer) advanceFrame() bool {
	for {
		f := l.ctx.top()
		if f == nil {
			return false
		}
		if f.pos < len(f.body) {
			return true
		}
		// reptRemaining still counts the iteration that just ended.
		if f.kind == frameRept && f.reptRemaining > 1 {
			l.ctx.macroUIDCounter++
			f.macroUID = strconv.FormatInt(int64(l.ctx.macroUIDCounter), 16)
			f.restartIteration()
			if f.reptForVar != "" {
				l.tbl.SetBuiltinValue(f.reptForVar, f.reptForCur)
			}
			continue
		}
		if f.kind == frameMacro {
			l.tbl.EndMacroExpansion(f.macroExpand)
		}
		if !l.ctx.pop() {
			return false
		}
	}
}

func (l *Lexer) peekByte() (byte, bool) {
	if !l.advanceFrame() {
		return 0, false
	}
	f := l.ctx.top()
	return f.body[f.pos], true
}

func (l *Lexer) nextByte() (byte, bool) {
	c, ok := l.peekByte()
	if !ok {
		return 0, false
	}
	f := l.ctx.top()
	f.pos++
	if c == '\n' {
		f.line++
		l.tbl.SetBuiltinValue("__LINE__", int32(f.line))
	}
	return c, true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '#' || c == '$' || c == '@'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// skipBlankAndComment consumes spaces/tabs and ';'-to-end-of-line
// comments, but stops at newline.
func (l *Lexer) skipBlankAndComment() {
	for {
		c, ok := l.peekByte()
		if !ok {
			return
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.nextByte()
		case c == ';':
			for {
				c, ok := l.peekByte()
				if !ok || c == '\n' {
					break
				}
				l.nextByte()
			}
		default:
			return
		}
	}
}

// Next returns the next token, skipping blanks and comments.
func (l *Lexer) Next() (Token, error) {
	t, err := l.next()
	if err != nil {
		return t, err
	}
	l.prevKind = t.Kind
	return t, nil
}

// valueJustEnded reports whether the previous token could be the end of
// an operand, so that a following '%' or '&' not directly followed by a
// digit of its base is read as the modulo/bitwise-and operator rather
// than a binary/octal literal prefix.
func (l *Lexer) valueJustEnded() bool {
	switch l.prevKind {
	case TokNumber, TokIdent, TokLocalIdent, TokString, TokAnonRef:
		return true
	}
	return false
}

func (l *Lexer) next() (Token, error) {
	l.skipBlankAndComment()
	pos := l.curPos()
	c, ok := l.nextByte()
	if !ok {
		return Token{Kind: TokEOF, Pos: pos}, nil
	}

	switch {
	case c == '\n':
		return Token{Kind: TokNewline, Pos: pos}, nil
	case c == '\\':
		return l.lexBackslash(pos)
	case c == '.':
		return l.lexLocalOrNumber(pos)
	case c == ':':
		return l.lexColon(pos)
	case isIdentStart(c):
		return l.lexIdent(pos, c)
	case isDigit(c):
		return l.lexNumber(pos, c)
	case c == '%' || c == '&':
		if l.valueJustEnded() {
			d, ok := l.peekByte()
			if !ok || !(d == '0' || d == '1' || (c == '&' && d >= '2' && d <= '7')) {
				return l.lexOperator(pos, c)
			}
		}
		return l.lexBasedNumber(pos, c)
	case c == '$' || c == '%' || c == '&' || c == '`':
		return l.lexBasedNumber(pos, c)
	case c == '"':
		return l.lexString(pos)
	default:
		return l.lexOperator(pos, c)
	}
}

func (l *Lexer) lexLocalOrNumber(pos symbol.Pos) (Token, error) {
	c, ok := l.peekByte()
	if ok && isDigit(c) {
		// fixed-point literal fraction handled by lexNumber's caller via "."
		return l.lexNumber(pos, '.')
	}
	var b strings.Builder
	b.WriteByte('.')
	for {
		c, ok := l.peekByte()
		if !ok || !isIdentCont(c) {
			break
		}
		l.nextByte()
		b.WriteByte(c)
	}
	name := b.String()
	if c, ok := l.peekByte(); ok && c == ':' {
		l.nextByte()
		if c2, ok := l.peekByte(); ok && c2 == ':' {
			l.nextByte()
		}
		return Token{Kind: TokLabel, Text: name, Pos: pos}, nil
	}
	return Token{Kind: TokLocalIdent, Text: name, Pos: pos}, nil
}

func (l *Lexer) lexColon(pos symbol.Pos) (Token, error) {
	// ':' alone is an anonymous label definition; ':+'/':++'/':-'/':--'
	// reference one, counting repetitions of the sign.
	c, ok := l.peekByte()
	if !ok || (c != '+' && c != '-') {
		return Token{Kind: TokAnon, Pos: pos}, nil
	}
	forward := c == '+'
	count := 0
	for {
		c, ok := l.peekByte()
		if !ok || c != (map[bool]byte{true: '+', false: '-'})[forward] {
			break
		}
		l.nextByte()
		count++
	}
	return Token{Kind: TokAnonRef, Anon: forward, Count: count, Pos: pos}, nil
}

func (l *Lexer) lexIdent(pos symbol.Pos, first byte) (Token, error) {
	var b strings.Builder
	b.WriteByte(first)
	for {
		c, ok := l.peekByte()
		if !ok || !isIdentCont(c) {
			break
		}
		l.nextByte()
		b.WriteByte(c)
	}
	name := b.String()

	if c, ok := l.peekByte(); ok && c == ':' {
		l.nextByte()
		if c2, ok := l.peekByte(); ok && c2 == ':' {
			l.nextByte()
		}
		return Token{Kind: TokLabel, Text: name, Pos: pos}, nil
	}

	if !l.NoExpand {
		if s, ok := l.tbl.Lookup(name); ok && s.Kind == symbol.EQUS {
			return l.reinjectAndNext(s.String)
		}
	}
	return Token{Kind: TokIdent, Text: name, Pos: pos}, nil
}

// lexBackslash handles \@ (the enclosing MACRO/REPT/FOR frame's unique
// id) and \1-\9 (macro argument substitution), raw-substituting the
// referenced text and re-lexing it as if it had appeared in the source
// (fstack.c's per-invocation uniqueID / macro arg substitution).
func (l *Lexer) lexBackslash(pos symbol.Pos) (Token, error) {
	c, ok := l.nextByte()
	if !ok {
		return Token{}, errors.Errorf("%s: unterminated '\\' escape", pos)
	}
	f := l.ctx.top()
	switch {
	case c == '@':
		uid := ""
		if f != nil {
			uid = f.macroUID
		}
		return l.reinjectAndNext(uid)
	case c >= '1' && c <= '9':
		idx := int(c - '1')
		arg := ""
		if f != nil && f.kind == frameMacro && idx < len(f.macroArgs) {
			arg = f.macroArgs[idx]
		}
		return l.reinjectAndNext(arg)
	}
	return Token{}, errors.Errorf("%s: unrecognized '\\%c' escape", pos, c)
}

// reinjectAndNext pushes text as a synthetic frame and re-lexes, used
// for EQUS expansion: the expansion itself may contain further idents,
// directives, or {interpolations}.
func (l *Lexer) reinjectAndNext(text string) (Token, error) {
	f := l.ctx.top()
	line := 1
	if f != nil {
		line = f.line
	}
	if err := l.ctx.push(&contextFrame{kind: frameMacro, name: "<EQUS>", body: text, line: line}); err != nil {
		return Token{}, err
	}
	return l.Next()
}

func (l *Lexer) lexNumber(pos symbol.Pos, first byte) (Token, error) {
	var b strings.Builder
	b.WriteByte(first)
	isFixed := first == '.'
	for {
		c, ok := l.peekByte()
		if !ok {
			break
		}
		if isDigit(c) {
			l.nextByte()
			b.WriteByte(c)
			continue
		}
		if c == '.' && !isFixed {
			isFixed = true
			l.nextByte()
			b.WriteByte(c)
			continue
		}
		break
	}
	s := b.String()
	if isFixed {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Token{}, errors.Errorf("%s: malformed fixed-point literal %q", pos, s)
		}
		return Token{Kind: TokNumber, Text: s, IVal: int32(f * 65536), Pos: pos}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Token{}, errors.Errorf("%s: malformed decimal literal %q", pos, s)
	}
	return Token{Kind: TokNumber, Text: s, IVal: int32(n), Pos: pos}, nil
}

// lexBasedNumber handles $hex, %binary, &octal, and `gfx (2-bit-per-char
// pixel-row) numeric literals.
func (l *Lexer) lexBasedNumber(pos symbol.Pos, base byte) (Token, error) {
	var b strings.Builder
	validDigit := func(c byte) bool {
		switch base {
		case '$':
			return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		case '%':
			return c == '0' || c == '1'
		case '&':
			return c >= '0' && c <= '7'
		case '`':
			return c >= '0' && c <= '3'
		}
		return false
	}
	for {
		c, ok := l.peekByte()
		if !ok || !validDigit(c) {
			break
		}
		l.nextByte()
		b.WriteByte(c)
	}
	digits := b.String()
	if digits == "" {
		return Token{}, errors.Errorf("%s: malformed numeric literal after %q", pos, string(base))
	}
	var v int64
	var err error
	switch base {
	case '$':
		v, err = strconv.ParseInt(digits, 16, 64)
	case '%':
		v, err = strconv.ParseInt(digits, 2, 64)
	case '&':
		v, err = strconv.ParseInt(digits, 8, 64)
	case '`':
		var n int64
		for i := 0; i < len(digits); i++ {
			n <<= 2
			n |= int64(digits[i] - '0')
		}
		v = n
	}
	if err != nil {
		return Token{}, errors.Errorf("%s: malformed numeric literal %q", pos, string(base)+digits)
	}
	return Token{Kind: TokNumber, Text: string(base) + digits, IVal: int32(v), Pos: pos}, nil
}

// lexString reads a double-quoted string, applying escapes and
// "{sym}" interpolation (EQU values rendered decimal, EQUS substituted
// verbatim), unless NoExpand is set.
func (l *Lexer) lexString(pos symbol.Pos) (Token, error) {
	var b strings.Builder
	for {
		c, ok := l.nextByte()
		if !ok {
			return Token{}, errors.Errorf("%s: unterminated string", pos)
		}
		if c == '"' {
			break
		}
		if c == '\\' {
			e, ok := l.nextByte()
			if !ok {
				return Token{}, errors.Errorf("%s: unterminated escape", pos)
			}
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '"', '\\', '@', '{', '}':
				b.WriteByte(e)
			case '1', '2', '3', '4', '5', '6', '7', '8', '9':
				if f := l.ctx.top(); f != nil {
					idx := int(e - '1')
					if f.kind == frameMacro && idx < len(f.macroArgs) {
						b.WriteString(f.macroArgs[idx])
					}
				}
			default:
				b.WriteByte(e)
			}
			continue
		}
		if c == '{' && !l.NoExpand {
			name, err := l.readBraced()
			if err != nil {
				return Token{}, err
			}
			v, err := l.interpolate(name, pos)
			if err != nil {
				return Token{}, err
			}
			b.WriteString(v)
			continue
		}
		b.WriteByte(c)
	}
	return Token{Kind: TokString, Text: b.String(), Pos: pos}, nil
}

func (l *Lexer) readBraced() (string, error) {
	var b strings.Builder
	for {
		c, ok := l.nextByte()
		if !ok {
			return "", errors.New("unterminated {interpolation}")
		}
		if c == '}' {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

func (l *Lexer) interpolate(name string, pos symbol.Pos) (string, error) {
	s, ok := l.tbl.Lookup(name)
	if !ok {
		return "", errors.Errorf("%s: {%s} references undefined symbol", pos, name)
	}
	switch s.Kind {
	case symbol.EQUS:
		return s.String, nil
	case symbol.EQU, symbol.VAR, symbol.BUILTIN:
		return strconv.Itoa(int(s.Value)), nil
	default:
		return "", errors.Errorf("%s: {%s} cannot be interpolated (kind %s)", pos, name, s.Kind)
	}
}

func (l *Lexer) lexOperator(pos symbol.Pos, first byte) (Token, error) {
	two := func(second byte, tok string) (Token, bool) {
		c, ok := l.peekByte()
		if ok && c == second {
			l.nextByte()
			return Token{Kind: TokOp, Text: tok, Pos: pos}, true
		}
		return Token{}, false
	}
	switch first {
	case '<':
		if t, ok := two('<', "<<"); ok {
			return t, nil
		}
		if t, ok := two('=', "<="); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: "<", Pos: pos}, nil
	case '>':
		if t, ok := two('>', ">>"); ok {
			if c, ok := l.peekByte(); ok && c == '>' {
				l.nextByte()
				return Token{Kind: TokOp, Text: ">>>", Pos: pos}, nil
			}
			return t, nil
		}
		if t, ok := two('=', ">="); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: ">", Pos: pos}, nil
	case '=':
		if t, ok := two('=', "=="); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: "=", Pos: pos}, nil
	case '!':
		if t, ok := two('=', "!="); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: "!", Pos: pos}, nil
	case '&':
		if t, ok := two('&', "&&"); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: "&", Pos: pos}, nil
	case '|':
		if t, ok := two('|', "||"); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: "|", Pos: pos}, nil
	case '*':
		if t, ok := two('*', "**"); ok {
			return t, nil
		}
		return Token{Kind: TokOp, Text: "*", Pos: pos}, nil
	default:
		if unicode.IsSpace(rune(first)) {
			return l.Next()
		}
		return Token{Kind: TokOp, Text: string(first), Pos: pos}, nil
	}
}
