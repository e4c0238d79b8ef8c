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
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
)

const (
	virtualPinCount = 16
)

// Registers is a snapshot of the simulated GPIO port.
// Field layout follows the STM32F4 GPIO port registers.
type Registers struct {
	// ClockEnabled is the port bit of RCC AHB1ENR
	ClockEnabled bool
	MODER        uint32 // 2 bits per pin, 01=output
	OTYPER       uint32 // 1 bit per pin, 0=push-pull
	OSPEEDR      uint32 // 2 bits per pin, 10=50MHz
	PUPDR        uint32 // 2 bits per pin, 10=pull-down
	ODR          uint32 // 1 bit per pin
}

// Field returns the value of the field of given width for the given pin.
func Field(reg uint32, pin, width int) uint32 {
	mask := uint32(1)<<width - 1
	return (reg >> (pin * width)) & mask
}

func setField(reg *uint32, pin, width int, value uint32) {
	mask := (uint32(1)<<width - 1) << (pin * width)
	*reg = (*reg &^ mask) | ((value << (pin * width)) & mask)
}

// VirtualBridge simulates a single GPIO port of a microcontroller.
// It is used when no hardware is available and in tests.
type VirtualBridge struct {
	mutex       sync.Mutex
	regs        Registers
	lines       map[int]*virtualLine
	outputError error
}

var (
	_ API = &VirtualBridge{}
)

// NewVirtualBridge implements the bridge for a virtual worker.
// All registers start at their reset value (zero).
func NewVirtualBridge() *VirtualBridge {
	return &VirtualBridge{
		lines: make(map[int]*virtualLine),
	}
}

// Name of the bridge type
func (b *VirtualBridge) Name() string {
	return TypeVirtual
}

// FailOutput makes all following Output calls fail with the given error.
// Pass nil to restore normal behavior.
func (b *VirtualBridge) FailOutput(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.outputError = err
}

// SetClock gates the port clock, like clearing or setting the port bit
// of RCC AHB1ENR. Writes are ignored while the clock is disabled.
func (b *VirtualBridge) SetClock(enabled bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.regs.ClockEnabled = enabled
}

// Registers returns a snapshot of the port registers.
func (b *VirtualBridge) Registers() Registers {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.regs
}

// Output initializes a GPIO output line with the given pin number.
func (b *VirtualBridge) Output(ctx context.Context, pinNumber int, cfg LineConfig) (OutputLine, error) {
	if pinNumber < 0 || pinNumber >= virtualPinCount {
		return nil, errors.Wrapf(InvalidPinError, "pin %d out of range [0..%d]", pinNumber, virtualPinCount-1)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.outputError != nil {
		countConfigureError(TypeVirtual)
		return nil, errors.Wrapf(b.outputError, "configure pin %d failed", pinNumber)
	}
	if _, found := b.lines[pinNumber]; found {
		return nil, errors.Wrapf(PinInUseError, "pin %d", pinNumber)
	}

	// Enable port clock, then configure like the vendor HAL does.
	b.regs.ClockEnabled = true
	setField(&b.regs.ODR, pinNumber, 1, 0)
	setField(&b.regs.OSPEEDR, pinNumber, 2, uint32(cfg.Speed))
	setField(&b.regs.OTYPER, pinNumber, 1, uint32(cfg.OutputType))
	setField(&b.regs.PUPDR, pinNumber, 2, uint32(cfg.Pull))
	setField(&b.regs.MODER, pinNumber, 2, uint32(cfg.Mode))

	l := &virtualLine{bridge: b, pin: pinNumber}
	b.lines[pinNumber] = l
	outputConfiguredTotal.WithLabelValues(TypeVirtual).Inc()
	return l, nil
}

// Close releases all lines and disables the port clock.
func (b *VirtualBridge) Close() error {
	b.mutex.Lock()
	lines := make([]*virtualLine, 0, len(b.lines))
	for _, l := range b.lines {
		lines = append(lines, l)
	}
	b.mutex.Unlock()

	var ae aerr.AggregateError
	for _, l := range lines {
		ae.Add(l.Close())
	}

	b.mutex.Lock()
	if len(b.lines) == 0 {
		b.regs.ClockEnabled = false
	}
	b.mutex.Unlock()
	return ae.AsError()
}

// writeODR sets the output data bit of the given pin.
// Writes are ignored while the port clock is disabled.
func (b *VirtualBridge) writeODR(pin int, high bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if !b.regs.ClockEnabled {
		return
	}
	var v uint32
	if high {
		v = 1
	}
	setField(&b.regs.ODR, pin, 1, v)
}

func (b *VirtualBridge) readODR(pin int) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return Field(b.regs.ODR, pin, 1) == 1
}

func (b *VirtualBridge) release(pin int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.lines, pin)
}

type virtualLine struct {
	mutex  sync.Mutex
	bridge *VirtualBridge
	pin    int
	closed bool
}

func (l *virtualLine) write(high bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return countWrite(TypeVirtual, high, errors.Wrapf(LineClosedError, "pin %d", l.pin))
	}
	l.bridge.writeODR(l.pin, high)
	return countWrite(TypeVirtual, high, nil)
}

// Drive the line to its high level
func (l *virtualLine) SetHigh() error {
	return l.write(true)
}

// Drive the line to its low level
func (l *virtualLine) SetLow() error {
	return l.write(false)
}

// ReadLevel returns the output data bit of the line.
func (l *virtualLine) ReadLevel() (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		err := errors.Wrapf(LineClosedError, "pin %d", l.pin)
		countRead(TypeVirtual, err)
		return false, err
	}
	countRead(TypeVirtual, nil)
	return l.bridge.readODR(l.pin), nil
}

// Close releases the line.
func (l *virtualLine) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !l.closed {
		l.closed = true
		l.bridge.release(l.pin)
	}
	return nil
}
