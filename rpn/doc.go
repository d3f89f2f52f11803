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

// Package rpn builds, folds, and serializes the expressions used by the
// assembler and linker cores. Every expression compiled by the parser
// becomes a Node tree that can be partially evaluated immediately
// (constant folding, never changing the observable value) and, for the
// parts that aren't yet known, serialized to the postfix opcode stream
// defined by the object file format so that the linker can finish the
// job once every section has a concrete address.
//
// Supported RPN opcodes (one byte, some followed by operands):
//
//	ADD SUB MUL DIV MOD NEG EXP                    arithmetic
//	OR AND XOR NOT                                 bitwise
//	LOGAND LOGOR LOGNOT                            logical
//	LOGEQ LOGNE LOGGT LOGLT LOGGE LOGLE             comparison
//	SHL SHR USHR                                    shifts
//	BANK_SYM BANK_SECT BANK_SELF SIZEOF_SECT STARTOF_SECT   intrinsics
//	HRAM_CHECK RST_CHECK                            deferred range checks
//	CONST SYM                                       leaves
//
// Integer arithmetic is modulo 2^32 two's complement; HIGH/LOW mask to 8
// bits; division/modulo by zero is an error. Fixed-point arithmetic
// (FDIV, FMUL, FMOD, POW, LOG, the trig family, and rounding) is always
// evaluated immediately against constant Q(n).(32-n) operands — see
// fixed.go — it has no RPN opcode of its own because the grammar
// requires its operands to already be constant.
package rpn
