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
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

const (
	// DefaultChip is the GPIO character device used when none is configured.
	DefaultChip  = "gpiochip0"
	cdevConsumer = "contactor-worker"
)

// cdevRequest is the part of *gpiocdev.Line we use.
type cdevRequest interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

type cdevBridge struct {
	mutex       sync.Mutex
	log         zerolog.Logger
	chip        string
	requestLine func(chip string, offset int, options ...gpiocdev.LineReqOption) (cdevRequest, error)
	lines       map[int]*cdevLine
}

// NewCharDevBridge implements the bridge for Linux boards using the
// GPIO character device of the given chip.
func NewCharDevBridge(chip string, log zerolog.Logger) API {
	if chip == "" {
		chip = DefaultChip
	}
	return &cdevBridge{
		log:  log.With().Str("component", "cdev-bridge").Str("chip", chip).Logger(),
		chip: chip,
		requestLine: func(chip string, offset int, options ...gpiocdev.LineReqOption) (cdevRequest, error) {
			return gpiocdev.RequestLine(chip, offset, options...)
		},
		lines: make(map[int]*cdevLine),
	}
}

// Name of the bridge type
func (p *cdevBridge) Name() string {
	return TypeCdev
}

// cdevOptions translates the line config into line request options.
func cdevOptions(cfg LineConfig) []gpiocdev.LineReqOption {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer(cdevConsumer),
		gpiocdev.AsOutput(0),
	}
	switch cfg.OutputType {
	case PushPull:
		opts = append(opts, gpiocdev.AsPushPull)
	case OpenDrain:
		opts = append(opts, gpiocdev.AsOpenDrain)
	}
	switch cfg.Pull {
	case PullNone:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}
	return opts
}

// Output requests the line with given offset as output, initially low.
func (p *cdevBridge) Output(ctx context.Context, pinNumber int, cfg LineConfig) (OutputLine, error) {
	if pinNumber < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, found := p.lines[pinNumber]; found {
		return nil, errors.Wrapf(PinInUseError, "pin %d", pinNumber)
	}
	p.log.Debug().
		Int("pin", pinNumber).
		Str("speed", cfg.Speed.String()).
		Msg("character device cannot configure slew rate")
	req, err := p.requestLine(p.chip, pinNumber, cdevOptions(cfg)...)
	if err != nil {
		countConfigureError(TypeCdev)
		return nil, errors.Wrapf(err, "RequestLine[%s:%d] failed", p.chip, pinNumber)
	}
	l := &cdevLine{
		bridge: p,
		req:    req,
		number: pinNumber,
	}
	p.lines[pinNumber] = l
	outputConfiguredTotal.WithLabelValues(TypeCdev).Inc()
	return l, nil
}

// Close releases all lines.
func (p *cdevBridge) Close() error {
	p.mutex.Lock()
	lines := make([]*cdevLine, 0, len(p.lines))
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

func (p *cdevBridge) release(pinNumber int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.lines, pinNumber)
}

type cdevLine struct {
	mutex  sync.Mutex
	bridge *cdevBridge
	req    cdevRequest
	number int
}

func (l *cdevLine) write(high bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.req == nil {
		return countWrite(TypeCdev, high, errors.Wrapf(LineClosedError, "pin %d", l.number))
	}
	value := 0
	if high {
		value = 1
	}
	if err := l.req.SetValue(value); err != nil {
		return countWrite(TypeCdev, high, errors.Wrap(err, "SetValue failed"))
	}
	return countWrite(TypeCdev, high, nil)
}

// Drive the line to its high level
func (l *cdevLine) SetHigh() error {
	return l.write(true)
}

// Drive the line to its low level
func (l *cdevLine) SetLow() error {
	return l.write(false)
}

// ReadLevel returns the value of the requested output line.
func (l *cdevLine) ReadLevel() (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.req == nil {
		err := errors.Wrapf(LineClosedError, "pin %d", l.number)
		countRead(TypeCdev, err)
		return false, err
	}
	value, err := l.req.Value()
	countRead(TypeCdev, err)
	if err != nil {
		return false, errors.Wrap(err, "Value failed")
	}
	return value != 0, nil
}

// Close releases the line request.
// The level after release is up to the GPIO driver.
func (l *cdevLine) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.req == nil {
		return nil
	}
	req := l.req
	l.req = nil
	l.bridge.release(l.number)
	if err := req.Close(); err != nil {
		return errors.Wrapf(err, "Close[%d] failed", l.number)
	}
	return nil
}
