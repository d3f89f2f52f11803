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

// Package linker combines one or more object modules into a final ROM
// image, a symbol file, and a memory map: it assigns concrete (bank,
// org) addresses to every floating section via a deterministic
// first-fit-descending placement algorithm, resolves every patch's RPN
// expression against the fully placed address space, and emits the
// three output files by walking section types in their documented
// order.
package linker
