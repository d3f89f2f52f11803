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

// Package section implements the section data model (typed, optionally
// banked memory regions with NORMAL/UNION/FRAGMENT semantics) and the
// Builder that the assembler front-end drives while it emits bytes: the
// PUSHS/POPS active-section stack, LOAD blocks, UNION/NEXTU/ENDU
// alternation, ALIGN/DS padding, and the relocatable byte-emission
// primitives that create Patches.
package section
