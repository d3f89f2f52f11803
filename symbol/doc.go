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

// Package symbol implements the two-tier symbol table shared by the
// assembler and the linker: global labels, their local (".name")
// children, anonymous labels, and the EQU/VAR/EQUS/MACRO/REF constant
// kinds, along with the redefinition and PURGE rules that govern them.
//
// Name resolution:
//
//	GlobalLabel::          establishes a new scope
//	.local                 resolves to "GlobalLabel.local"
//	@                      an anonymous label, referenced by :+ / :++ / :- / :--
//
// Redefinition rules:
//
//	EQU    write-once, never redefinable
//	VAR    freely reassignable ("=")
//	EQUS   write-once unless REDEF is used
//	LABEL  write-once
//	MACRO  write-once unless REDEF is used
//
// PURGE removes a symbol by name; it is rejected for names referenced by
// an unresolved patch, a macro currently expanding, or a builtin.
package symbol
