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

// Package ngi holds small internal helpers shared by the linker's
// emission stages.
package ngi

import (
	"io"

	"github.com/pkg/errors"
)

// ErrWriter wraps a writer to track the first io error across many
// writes, so a bank-emission loop writing one byte at a time (padding,
// overlay bytes, section data) can check the accumulated error once at
// the end instead of after every call.
type ErrWriter struct {
	w   io.Writer
	Err error
}

func (w *ErrWriter) Write(p []byte) (n int, err error) {
	if w.Err != nil {
		return 0, w.Err
	}
	n, err = w.w.Write(p)
	if err != nil {
		w.Err = errors.Wrap(err, "write failed")
	}
	return n, w.Err
}

// WriteByte writes a single byte, keeping io.ByteWriter compatibility
// for callers like bufio.Writer.WriteByte.
func (w *ErrWriter) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// NewErrWriter returns a new ErrWriter.
func NewErrWriter(w io.Writer) *ErrWriter {
	return &ErrWriter{w, nil}
}
