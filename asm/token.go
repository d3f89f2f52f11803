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

import "github.com/kkpan11/rgbds/symbol"

// TokKind classifies one lexical token (spec.md §4.1).
type TokKind int

const (
	TokEOF TokKind = iota
	TokNewline
	TokIdent      // Global or dotted.local identifier, mnemonic, directive, or register name
	TokLocalIdent // leading '.'
	TokLabel      // identifier immediately followed by ':' or '::' with no intervening space
	TokAnon       // ':' used standalone as an anonymous label definition
	TokAnonRef    // ":+"/":++"/":-"/":--"
	TokNumber
	TokString
	TokOp // operators and punctuation, Text holds the exact spelling
)

// Token is one lexed unit with its source position.
type Token struct {
	Kind  TokKind
	Text  string
	IVal  int32 // for TokNumber
	Pos   symbol.Pos
	Anon  bool // TokAnonRef: true for forward (+), false for backward (-)
	Count int  // TokAnonRef: number of '+'/'-' signs after the ':'
}
