//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package bridge

import (
	"context"
)

// API of the bridge, the hardware (or simulation of it) that provides
// the GPIO lines the worker drives.
type API interface {
	// Name of the bridge type (virtual|sysfs|cdev|periph|mqtt)
	Name() string
	// Output configures the line with given pin number as output
	// using the given electrical configuration.
	// The line is driven low once configured.
	Output(ctx context.Context, pinNumber int, cfg LineConfig) (OutputLine, error)
	// Close releases all lines handed out by this bridge.
	Close() error
}

// OutputLine is a capability to drive a single output line.
type OutputLine interface {
	// Drive the line to its high level
	SetHigh() error
	// Drive the line to its low level
	SetLow() error
	// ReadLevel reads the currently commanded output level back
	// from the hardware (true=high).
	ReadLevel() (bool, error)
	// Close releases the line. The level is not changed.
	Close() error
}

// Bridge type names
const (
	TypeVirtual = "virtual"
	TypeSysfs   = "sysfs"
	TypeCdev    = "cdev"
	TypePeriph  = "periph"
	TypeMQTT    = "mqtt"
)
