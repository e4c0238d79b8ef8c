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

import "github.com/pkg/errors"

var (
	// InvalidConfigError is returned when a line configuration cannot be used.
	InvalidConfigError = errors.New("invalid line config")
	IsInvalidConfig    = isErrorFunc(InvalidConfigError)
	// InvalidPinError is returned for pin numbers a bridge does not have.
	InvalidPinError = errors.New("invalid pin")
	IsInvalidPin    = isErrorFunc(InvalidPinError)
	// PinInUseError is returned when a pin has already been handed out.
	PinInUseError = errors.New("pin in use")
	IsPinInUse    = isErrorFunc(PinInUseError)
	// LineClosedError is returned when using a line after Close.
	LineClosedError = errors.New("line closed")
	IsLineClosed    = isErrorFunc(LineClosedError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
