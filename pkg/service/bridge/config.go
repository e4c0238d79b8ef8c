// Copyright 2026 Ewout Prangsma
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
//
// Author Ewout Prangsma
//

package bridge

import (
	"fmt"

	"github.com/pkg/errors"
)

// Mode of a GPIO line.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// OutputType selects how an output line is driven.
type OutputType uint8

const (
	// PushPull actively drives both high and low levels.
	PushPull OutputType = iota
	// OpenDrain only actively drives the low level.
	OpenDrain
)

func (t OutputType) String() string {
	switch t {
	case PushPull:
		return "push-pull"
	case OpenDrain:
		return "open-drain"
	default:
		return fmt.Sprintf("output-type(%d)", uint8(t))
	}
}

// Speed is the slew rate of an output line.
// Values match the STM32F4 OSPEEDR encoding.
type Speed uint8

const (
	Speed2MHz   Speed = iota // Low
	Speed25MHz               // Medium
	Speed50MHz               // Fast
	Speed100MHz              // High
)

func (s Speed) String() string {
	switch s {
	case Speed2MHz:
		return "2MHz"
	case Speed25MHz:
		return "25MHz"
	case Speed50MHz:
		return "50MHz"
	case Speed100MHz:
		return "100MHz"
	default:
		return fmt.Sprintf("speed(%d)", uint8(s))
	}
}

// Pull resistor setting of a line.
// Values match the STM32F4 PUPDR encoding.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "pull-up"
	case PullDown:
		return "pull-down"
	default:
		return fmt.Sprintf("pull(%d)", uint8(p))
	}
}

// LineConfig describes the electrical configuration of a single line.
// It is passed by value to API.Output.
type LineConfig struct {
	Mode       Mode
	OutputType OutputType
	Speed      Speed
	Pull       Pull
}

// Validate the configuration.
func (c LineConfig) Validate() error {
	if c.Mode != ModeOutput {
		return errors.Wrapf(InvalidConfigError, "mode must be %s, got %s", ModeOutput, c.Mode)
	}
	if c.OutputType > OpenDrain {
		return errors.Wrapf(InvalidConfigError, "unknown output type %s", c.OutputType)
	}
	if c.Speed > Speed100MHz {
		return errors.Wrapf(InvalidConfigError, "unknown speed %s", c.Speed)
	}
	if c.Pull > PullDown {
		return errors.Wrapf(InvalidConfigError, "unknown pull %s", c.Pull)
	}
	return nil
}

func (c LineConfig) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Mode, c.OutputType, c.Speed, c.Pull)
}
