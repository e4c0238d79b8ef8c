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

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// sysfsPin is an exported sysfs pin that is written and read back.
type sysfsPin interface {
	gpio.OutputPin
	gpio.InputPin
}

type sysfsBridge struct {
	mutex      sync.Mutex
	log        zerolog.Logger
	openOutput func(pinNumber int, activeLow bool, initialValue bool) (sysfsPin, error)
	lines      map[int]*sysfsLine
}

// NewSysfsBridge implements the bridge for Linux boards using the
// (legacy) sysfs GPIO interface.
func NewSysfsBridge(log zerolog.Logger) API {
	return &sysfsBridge{
		log:        log.With().Str("component", "sysfs-bridge").Logger(),
		openOutput: openSysfsOutput,
		lines:      make(map[int]*sysfsLine),
	}
}

// openSysfsOutput exports the pin as output.
func openSysfsOutput(pinNumber int, activeLow bool, initialValue bool) (sysfsPin, error) {
	pin, err := gpio.Output(pinNumber, activeLow, initialValue)
	if err != nil {
		return nil, err
	}
	rw, ok := pin.(sysfsPin)
	if !ok {
		return nil, errors.Errorf("sysfs pin %d cannot be read back", pinNumber)
	}
	return rw, nil
}

// Name of the bridge type
func (p *sysfsBridge) Name() string {
	return TypeSysfs
}

// Output initializes a GPIO output pin with the given pin number.
// The line is opened active-high with an initial value of low.
func (p *sysfsBridge) Output(ctx context.Context, pinNumber int, cfg LineConfig) (OutputLine, error) {
	if pinNumber < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputType != PushPull {
		return nil, errors.Wrapf(InvalidConfigError, "sysfs supports push-pull outputs only, got %s", cfg.OutputType)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, found := p.lines[pinNumber]; found {
		return nil, errors.Wrapf(PinInUseError, "pin %d", pinNumber)
	}
	log := p.log.With().Int("pin", pinNumber).Logger()
	if cfg.Pull != PullNone {
		log.Warn().Str("pull", cfg.Pull.String()).Msg("sysfs cannot configure pull resistor; relying on board default")
	}
	log.Debug().Str("speed", cfg.Speed.String()).Msg("sysfs cannot configure slew rate")

	activeLow := false
	initialValue := false
	pin, err := p.openOutput(pinNumber, activeLow, initialValue)
	if err != nil {
		countConfigureError(TypeSysfs)
		return nil, errors.Wrapf(err, "Output[%d] failed", pinNumber)
	}
	l := &sysfsLine{
		bridge: p,
		pin:    pin,
		number: pinNumber,
	}
	p.lines[pinNumber] = l
	outputConfiguredTotal.WithLabelValues(TypeSysfs).Inc()
	return l, nil
}

// Close releases all lines.
func (p *sysfsBridge) Close() error {
	p.mutex.Lock()
	lines := make([]*sysfsLine, 0, len(p.lines))
	for _, l := range p.lines {
		lines = append(lines, l)
	}
	p.mutex.Unlock()

	var ae aerr.AggregateError
	for _, l := range lines {
		ae.Add(l.Close())
	}
	return ae.AsError()
}

func (p *sysfsBridge) release(pinNumber int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.lines, pinNumber)
}

type sysfsLine struct {
	mutex  sync.Mutex
	bridge *sysfsBridge
	pin    sysfsPin
	number int
}

func (l *sysfsLine) write(high bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pin == nil {
		return countWrite(TypeSysfs, high, errors.Wrapf(LineClosedError, "pin %d", l.number))
	}
	if err := l.pin.Write(high); err != nil {
		return countWrite(TypeSysfs, high, errors.Wrap(err, "Write failed"))
	}
	return countWrite(TypeSysfs, high, nil)
}

// Drive the line to its high level
func (l *sysfsLine) SetHigh() error {
	return l.write(true)
}

// Drive the line to its low level
func (l *sysfsLine) SetLow() error {
	return l.write(false)
}

// ReadLevel reads the value of the exported pin.
func (l *sysfsLine) ReadLevel() (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pin == nil {
		err := errors.Wrapf(LineClosedError, "pin %d", l.number)
		countRead(TypeSysfs, err)
		return false, err
	}
	value, err := l.pin.Read()
	countRead(TypeSysfs, err)
	if err != nil {
		return false, errors.Wrap(err, "Read failed")
	}
	return value, nil
}

// Close releases the line. The pin stays exported so its level is kept.
func (l *sysfsLine) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pin != nil {
		l.pin = nil
		l.bridge.release(l.number)
	}
	return nil
}
