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

package rpn

import "github.com/pkg/errors"

// CheckNBit verifies that the constant value v fits in n bits (signed or
// unsigned range), as rpn_CheckNBit does for immediate operands.
func CheckNBit(v int32, n uint) error {
	lo := -(int64(1) << (n - 1))
	hi := (int64(1) << n) - 1
	if int64(v) < lo || int64(v) > hi {
		return errors.Errorf("value %d does not fit in %d bit(s) (range %d..%d)", v, n, lo, hi)
	}
	return nil
}

// EvalHRAM validates that v, once ORed with $FF00, lands in the high-page
// window $FF00-$FFFE, and returns the ORed value. Used both for
// constant folding (CheckHRAM) and by the linker when resolving a
// deferred HRAM_CHECK opcode.
func EvalHRAM(v int32) (int32, error) {
	addr := uint32(v) | 0xFF00
	if addr < 0xFF00 || addr > 0xFFFE {
		return 0, errors.Errorf("address $%04X is not in HRAM ($FF00-$FFFE)", uint16(v))
	}
	return int32(addr), nil
}

// EvalRST validates that v is one of the eight legal RST vectors.
func EvalRST(v int32) error {
	switch v {
	case 0x00, 0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38:
		return nil
	default:
		return errors.Errorf("$%02X is not a valid RST vector", uint8(v))
	}
}

// CheckJRTarget computes the signed displacement for a PC-relative
// branch (JR) from origin (the address of the byte after the operand
// byte, i.e. patchAddr+1 where patchAddr is the operand's address) to
// target, and verifies it fits in an int8.
func CheckJRTarget(target, origin int32) (int8, error) {
	d := target - origin
	if d < -128 || d > 127 {
		return 0, errors.Errorf("jump distance %d is out of range for JR (-128..127)", d)
	}
	return int8(d), nil
}
