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

package asm_test

import (
	"fmt"
	"strings"

	"github.com/kkpan11/rgbds/asm"
)

// ExampleAssemble assembles a tiny fixed-origin ROM0 section and reports
// the resulting section layout, mirroring how rgbasm itself is driven
// from a file argument.
func ExampleAssemble() {
	src := `
SECTION "header", ROM0[$0100]
	nop
	jp Start

Start:
	ld sp, $FFFE
	call Init
	jr Start
`
	obj, _, err := asm.Assemble("main.asm", strings.NewReader(src), asm.Options{})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, sec := range obj.Sections {
		fmt.Printf("%s: %d bytes\n", sec.Name, len(sec.Data))
	}
	// Output:
	// header: 12 bytes
}
