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

package asm

import "github.com/pkg/errors"

// condState is one level of the IF/ELIF/ELSE/ENDC state machine (spec.md
// §4.2).
type condState int

const (
	condPick condState = iota
	condRun
	condSkipToElif
	condSkipToEndc
	condSawElse
)

// condStack tracks nested IF levels.
type condStack struct {
	levels []condState
}

// active reports whether the innermost (and thus every enclosing) level
// is currently taking its branch.
func (c *condStack) active() bool {
	for _, s := range c.levels {
		if s != condRun && s != condSawElse {
			return false
		}
	}
	return true
}

func (c *condStack) pushIf(taken bool) {
	s := condSkipToElif
	if taken {
		s = condRun
	}
	c.levels = append(c.levels, s)
}

func (c *condStack) elif(taken bool) error {
	if len(c.levels) == 0 {
		return errors.New("ELIF without matching IF")
	}
	top := c.levels[len(c.levels)-1]
	switch top {
	case condSkipToElif:
		if taken {
			c.levels[len(c.levels)-1] = condRun
		}
	case condRun:
		c.levels[len(c.levels)-1] = condSkipToEndc
	case condSawElse:
		return errors.New("ELIF after ELSE")
	}
	return nil
}

func (c *condStack) els() error {
	if len(c.levels) == 0 {
		return errors.New("ELSE without matching IF")
	}
	top := c.levels[len(c.levels)-1]
	switch top {
	case condSkipToElif:
		c.levels[len(c.levels)-1] = condSawElse
	case condRun:
		c.levels[len(c.levels)-1] = condSkipToEndc
	case condSawElse:
		return errors.New("ELSE after ELSE")
	}
	return nil
}

func (c *condStack) endc() error {
	if len(c.levels) == 0 {
		return errors.New("ENDC without matching IF")
	}
	c.levels = c.levels[:len(c.levels)-1]
	return nil
}
