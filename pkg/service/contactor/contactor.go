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

package contactor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/ContactorWorker/pkg/metrics"
	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
)

const (
	// DefaultPin is the line the contactor is wired to (PA6 on the BMS board).
	DefaultPin = 6
)

// Config for a contactor.
type Config struct {
	// Pin number of the output line
	Pin int
}

// Contactor drives the output line that closes (on) or opens (off)
// the battery contactor.
// All operations are serialized, so a contactor can be used from
// multiple goroutines.
type Contactor struct {
	mutex      sync.Mutex
	log        zerolog.Logger
	api        bridge.API
	pin        int
	line       bridge.OutputLine
	closed     bool
	lastChange time.Time
}

// New creates a contactor for the given config.
// The line is not touched until Init is called.
func New(cfg Config, api bridge.API, log zerolog.Logger) (*Contactor, error) {
	if api == nil {
		return nil, errors.Wrap(InvalidArgumentError, "bridge missing")
	}
	if cfg.Pin < 0 {
		return nil, errors.Wrapf(InvalidArgumentError, "pin %d", cfg.Pin)
	}
	return &Contactor{
		log: log.With().
			Str("component", "contactor").
			Str("bridge", api.Name()).
			Int("pin", cfg.Pin).
			Logger(),
		api: api,
		pin: cfg.Pin,
	}, nil
}

// Init configures the line as push-pull output, 50MHz, pulled down,
// and verifies that it reads back low.
// It must be called exactly once before any other operation.
func (c *Contactor) Init(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.line != nil || c.closed {
		return maskAny(AlreadyInitializedError)
	}
	cfg := bridge.LineConfig{
		Mode:       bridge.ModeOutput,
		OutputType: bridge.PushPull,
		Speed:      bridge.Speed50MHz,
		Pull:       bridge.PullDown,
	}
	line, err := c.api.Output(ctx, c.pin, cfg)
	if err != nil {
		initFailuresTotal.Inc()
		c.log.Error().Err(err).Str("config", cfg.String()).Msg("Failed to configure contactor line")
		return errors.Wrap(err, "configure contactor line failed")
	}
	high, err := line.ReadLevel()
	if err == nil && high {
		err = errors.New("line reads high after configuration")
	}
	if err != nil {
		initFailuresTotal.Inc()
		c.log.Error().Err(err).Msg("Contactor line verification failed")
		if cerr := line.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("Failed to release contactor line")
		}
		return errors.Wrap(err, "verify contactor line failed")
	}
	c.line = line
	c.lastChange = time.Now()
	contactorStateGauge.Set(0)
	c.log.Info().Str("config", cfg.String()).Msg("Contactor initialized")
	return nil
}

// On closes the contactor by driving the line high.
func (c *Contactor) On(ctx context.Context) error {
	return c.set(true)
}

// Off opens the contactor by driving the line low.
func (c *Contactor) Off(ctx context.Context) error {
	return c.set(false)
}

func (c *Contactor) set(on bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	requestsTotal.WithLabelValues(stateLabel(on)).Inc()
	if c.line == nil {
		return maskAny(NotInitializedError)
	}
	var err error
	if on {
		err = c.line.SetHigh()
	} else {
		err = c.line.SetLow()
	}
	if err != nil {
		c.log.Warn().Err(err).Bool("on", on).Msg("Failed to set contactor line")
		return maskAny(err)
	}
	c.lastChange = time.Now()
	contactorStateGauge.Set(metrics.BoolToFloat(on))
	c.log.Debug().Bool("on", on).Msg("Contactor set")
	return nil
}

// Flag reads the commanded level of the line back from the hardware.
// Returns true when the contactor is on.
func (c *Contactor) Flag(ctx context.Context) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.line == nil {
		return false, maskAny(NotInitializedError)
	}
	high, err := c.line.ReadLevel()
	if err != nil {
		return false, maskAny(err)
	}
	return high, nil
}

// FlagBit returns Flag as 1 (on) or 0 (off).
func (c *Contactor) FlagBit(ctx context.Context) (uint32, error) {
	on, err := c.Flag(ctx)
	if err != nil {
		return 0, err
	}
	if on {
		return 1, nil
	}
	return 0, nil
}

// LastChange returns the time of the last successful Init, On or Off.
// Returns the zero time before Init.
func (c *Contactor) LastChange() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastChange
}

// Close brings the contactor back to a safe state (off) and releases
// the line. Close on a contactor that was never initialized is a no-op.
func (c *Contactor) Close(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.line == nil {
		c.closed = true
		return nil
	}
	line := c.line
	c.line = nil
	c.closed = true
	offErr := line.SetLow()
	if offErr == nil {
		contactorStateGauge.Set(0)
	} else {
		c.log.Error().Err(offErr).Msg("Failed to open contactor while closing")
	}
	if err := line.Close(); err != nil {
		return errors.Wrap(err, "release contactor line failed")
	}
	return maskAny(offErr)
}
