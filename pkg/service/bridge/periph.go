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
	"context"
	"fmt"
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type periphBridge struct {
	mutex  sync.Mutex
	log    zerolog.Logger
	byName func(name string) gpio.PinIO
	lines  map[int]*periphLine
}

// NewPeriphBridge implements the bridge using the periph.io host drivers.
func NewPeriphBridge(log zerolog.Logger) (API, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host.Init failed")
	}
	return newPeriphBridge(gpioreg.ByName, log), nil
}

func newPeriphBridge(byName func(name string) gpio.PinIO, log zerolog.Logger) *periphBridge {
	return &periphBridge{
		log:    log.With().Str("component", "periph-bridge").Logger(),
		byName: byName,
		lines:  make(map[int]*periphLine),
	}
}

// Name of the bridge type
func (p *periphBridge) Name() string {
	return TypePeriph
}

func periphPull(pull Pull) gpio.Pull {
	switch pull {
	case PullUp:
		return gpio.PullUp
	case PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

// Output configures the pin named GPIO<pinNumber> as output.
// The pull resistor is latched by configuring the pin as input first.
func (p *periphBridge) Output(ctx context.Context, pinNumber int, cfg LineConfig) (OutputLine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputType != PushPull {
		return nil, errors.Wrapf(InvalidConfigError, "periph supports push-pull outputs only, got %s", cfg.OutputType)
	}
	name := fmt.Sprintf("GPIO%d", pinNumber)
	pin := p.byName(name)
	if pin == nil {
		return nil, errors.Wrapf(InvalidPinError, "pin %s not found", name)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, found := p.lines[pinNumber]; found {
		return nil, errors.Wrapf(PinInUseError, "pin %s", name)
	}
	p.log.Debug().
		Str("pin", name).
		Str("speed", cfg.Speed.String()).
		Msg("periph cannot configure slew rate")
	if err := pin.In(periphPull(cfg.Pull), gpio.NoEdge); err != nil {
		countConfigureError(TypePeriph)
		return nil, errors.Wrapf(err, "In[%s] failed", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		countConfigureError(TypePeriph)
		return nil, errors.Wrapf(err, "Out[%s] failed", name)
	}
	l := &periphLine{
		bridge: p,
		pin:    pin,
		number: pinNumber,
	}
	p.lines[pinNumber] = l
	outputConfiguredTotal.WithLabelValues(TypePeriph).Inc()
	return l, nil
}

// Close releases all lines.
func (p *periphBridge) Close() error {
	p.mutex.Lock()
	lines := make([]*periphLine, 0, len(p.lines))
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

func (p *periphBridge) release(pinNumber int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.lines, pinNumber)
}

type periphLine struct {
	mutex  sync.Mutex
	bridge *periphBridge
	pin    gpio.PinIO
	number int
}

func (l *periphLine) write(high bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pin == nil {
		return countWrite(TypePeriph, high, errors.Wrapf(LineClosedError, "pin %d", l.number))
	}
	level := gpio.Low
	if high {
		level = gpio.High
	}
	if err := l.pin.Out(level); err != nil {
		return countWrite(TypePeriph, high, errors.Wrap(err, "Out failed"))
	}
	return countWrite(TypePeriph, high, nil)
}

// Drive the line to its high level
func (l *periphLine) SetHigh() error {
	return l.write(true)
}

// Drive the line to its low level
func (l *periphLine) SetLow() error {
	return l.write(false)
}

// ReadLevel returns the level of the pin.
func (l *periphLine) ReadLevel() (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pin == nil {
		err := errors.Wrapf(LineClosedError, "pin %d", l.number)
		countRead(TypePeriph, err)
		return false, err
	}
	countRead(TypePeriph, nil)
	return bool(l.pin.Read()), nil
}

// Close releases the line without halting the pin, so its level is kept.
func (l *periphLine) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.pin != nil {
		l.pin = nil
		l.bridge.release(l.number)
	}
	return nil
}
