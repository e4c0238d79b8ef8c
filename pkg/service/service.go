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

package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
	"github.com/binkynet/ContactorWorker/pkg/service/contactor"
)

type Service interface {
	// Run the worker until the given context is cancelled.
	Run(ctx context.Context) error
	// Contactor driven by this worker
	Contactor() *contactor.Contactor
	// Time the service was created
	StartedAt() time.Time
}

type Config struct {
	ProgramVersion string
	// Pin number of the contactor line
	Pin int
	// Close the contactor directly after initialization
	OnAtStart bool
}

// HealthReporter is informed whether the contactor is under control.
type HealthReporter interface {
	SetServing(serving bool)
}

type Dependencies struct {
	Logger zerolog.Logger
	Bridge bridge.API
	// Health is optional
	Health HealthReporter
}

type service struct {
	Config
	Dependencies

	contactor *contactor.Contactor
	startedAt time.Time
}

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	if deps.Bridge == nil {
		return nil, errors.New("Bridge missing")
	}
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	c, err := contactor.New(contactor.Config{Pin: conf.Pin}, deps.Bridge, deps.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create contactor")
	}
	return &service{
		Config:       conf,
		Dependencies: deps,
		contactor:    c,
		startedAt:    time.Now(),
	}, nil
}

// Contactor driven by this worker
func (s *service) Contactor() *contactor.Contactor {
	return s.contactor
}

// Time the service was created
func (s *service) StartedAt() time.Time {
	return s.startedAt
}

// Run initializes the contactor, then waits until the given context
// is cancelled, after which the contactor is opened and the bridge released.
func (s *service) Run(ctx context.Context) error {
	log := s.Logger.With().Str("version", s.ProgramVersion).Logger()
	defer func() {
		if err := s.Bridge.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close bridge")
		}
	}()

	startTimeGauge.Set(float64(s.startedAt.Unix()))
	if err := s.contactor.Init(ctx); err != nil {
		runFailuresTotal.Inc()
		log.Error().Err(err).Msg("Contactor initialization failed")
		return errors.Wrap(err, "Contactor initialization failed")
	}
	s.setServing(true)
	defer s.setServing(false)
	if s.OnAtStart {
		if err := s.contactor.On(ctx); err != nil {
			runFailuresTotal.Inc()
			log.Error().Err(err).Msg("Failed to close contactor at start")
			if cerr := s.contactor.Close(context.Background()); cerr != nil {
				log.Error().Err(cerr).Msg("Failed to bring contactor to safe state")
			}
			return errors.Wrap(err, "Failed to close contactor at start")
		}
		log.Info().Msg("Contactor closed at start")
	}

	log.Info().Msg("Worker running")
	<-ctx.Done()

	log.Info().Msg("Opening contactor")
	if err := s.contactor.Close(context.Background()); err != nil {
		runFailuresTotal.Inc()
		log.Error().Err(err).Msg("Failed to bring contactor to safe state")
		return errors.Wrap(err, "Failed to bring contactor to safe state")
	}
	return nil
}

func (s *service) setServing(serving bool) {
	if s.Health != nil {
		s.Health.SetServing(serving)
	}
}
