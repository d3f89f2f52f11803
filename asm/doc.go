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

// Package asm implements the assembler front-end: a lexer driving a
// file-inclusion context stack (INCLUDE/MACRO/REPT/FOR frames), a
// directive-and-instruction parser, and the glue wiring both into the
// symbol, rpn, and section packages. Assemble is the package's single
// entry point; it returns an *objfile.Object ready for objfile.Write or
// for the linker to merge.
//
// The grammar is driven line-by-line rather than by an LALR table: each
// line begins with an optional label, followed by a directive or
// instruction mnemonic and its operands. Conditional assembly
// (IF/ELIF/ELSE/ENDC) and body capture (MACRO/ENDM, REPT/ENDR, FOR/ENDR)
// are implemented as lexer-mode switches consulted between tokens, per
// the teacher's single-pass, no-backtracking style.
package asm
