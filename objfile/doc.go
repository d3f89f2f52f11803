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

// Package objfile reads and writes the binary object module format that
// is the interchange contract between the assembler and the linker:
// magic "RGB9", a file-name table, a node table for diagnostic call
// chains, symbols, sections with their patches, and assertions. All
// multi-byte fields are little-endian.
package objfile
