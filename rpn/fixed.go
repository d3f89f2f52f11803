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

import (
	"math"

	"github.com/pkg/errors"
)

// DefaultPrecision is the Q(n).(32-n) precision used when a fixed-point
// intrinsic is not given an explicit precision argument.
const DefaultPrecision = 16

// CheckPrecision validates that q is a legal fixed-point precision.
func CheckPrecision(q int32) error {
	if q < 1 || q > 31 {
		return errors.Errorf("fixed-point precision %d out of range (1..31)", q)
	}
	return nil
}

func toFloat(v int32, q int32) float64 {
	return float64(v) / float64(int64(1)<<uint(q))
}

func fromFloat(f float64, q int32) int32 {
	return int32(math.Round(f * float64(int64(1)<<uint(q))))
}

// FMul multiplies two Q(q) fixed-point values.
func FMul(a, b, q int32) int32 {
	return int32((int64(a)*int64(b) + int64(1)<<uint(q-1)) >> uint(q))
}

// FDiv divides two Q(q) fixed-point values.
func FDiv(a, b, q int32) (int32, error) {
	if b == 0 {
		return 0, errors.New("fixed-point division by zero")
	}
	return int32((int64(a) << uint(q)) / int64(b)), nil
}

// FMod computes the fixed-point remainder of a/b in Q(q).
func FMod(a, b, q int32) (int32, error) {
	if b == 0 {
		return 0, errors.New("fixed-point modulo by zero")
	}
	d, err := FDiv(a, b, q)
	if err != nil {
		return 0, err
	}
	return a - FMul(d, b, q), nil
}

// Pow raises a to the power b, both Q(q), computed in float64 with
// math.Pow and rounded back to Q(q).
func Pow(a, b, q int32) int32 {
	return fromFloat(math.Pow(toFloat(a, q), toFloat(b, q)), q)
}

// Log computes the base-b logarithm of a, both Q(q).
func Log(a, b, q int32) (int32, error) {
	fa, fb := toFloat(a, q), toFloat(b, q)
	if fa <= 0 || fb <= 0 || fb == 1 {
		return 0, errors.Errorf("LOG(%v, %v) undefined", fa, fb)
	}
	return fromFloat(math.Log(fa)/math.Log(fb), q), nil
}

// turnsToRadians converts a Q(q) value in turns (full circle = 1.0) to
// radians for use with the math package's trig functions.
func turnsToRadians(v, q int32) float64 { return toFloat(v, q) * 2 * math.Pi }

func radiansToTurns(r float64, q int32) int32 { return fromFloat(r/(2*math.Pi), q) }

func Sin(v, q int32) int32  { return fromFloat(math.Sin(turnsToRadians(v, q)), q) }
func Cos(v, q int32) int32  { return fromFloat(math.Cos(turnsToRadians(v, q)), q) }
func Tan(v, q int32) int32  { return fromFloat(math.Tan(turnsToRadians(v, q)), q) }
func Asin(v, q int32) int32 { return radiansToTurns(math.Asin(toFloat(v, q)), q) }
func Acos(v, q int32) int32 { return radiansToTurns(math.Acos(toFloat(v, q)), q) }
func Atan(v, q int32) int32 { return radiansToTurns(math.Atan(toFloat(v, q)), q) }
func Atan2(y, x, q int32) int32 {
	return radiansToTurns(math.Atan2(toFloat(y, q), toFloat(x, q)), q)
}

func Round(v, q int32) int32 { return fromFloat(math.Round(toFloat(v, q)), q) }
func Ceil(v, q int32) int32  { return fromFloat(math.Ceil(toFloat(v, q)), q) }
func Floor(v, q int32) int32 { return fromFloat(math.Floor(toFloat(v, q)), q) }
