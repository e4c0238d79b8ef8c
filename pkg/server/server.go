// Copyright 2023 Ewout Prangsma
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

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/binkynet/ContactorWorker/pkg/service/contactor"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
	// Port to listen on for GRPC (health) requests
	GRPCPort int
}

// Contactor is the part of the contactor the server controls.
type Contactor interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
	Flag(ctx context.Context) (bool, error)
	LastChange() time.Time
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log       zerolog.Logger
	contactor Contactor
	health    *Health
	router    *echo.Echo
}

// Status of the contactor as reported by the API.
type Status struct {
	On         bool   `json:"on"`
	Flag       uint32 `json:"flag"`
	LastChange string `json:"last_change,omitempty"`
}

// New configures a new Server.
// When h is nil, the server creates its own Health.
func New(cfg Config, log zerolog.Logger, c Contactor, h *Health) (*Server, error) {
	if c == nil {
		return nil, errors.New("contactor missing")
	}
	if h == nil {
		h = NewHealth()
	}
	s := &Server{
		Config:    cfg,
		log:       log.With().Str("component", "server").Logger(),
		contactor: c,
		health:    h,
	}
	s.router = s.newRouter()
	return s, nil
}

func (s *Server) newRouter() *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true
	r.HTTPErrorHandler = s.errorHandler
	r.GET("/health", healthHandler)
	r.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	r.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	api := r.Group("/api/v1")
	api.GET("/contactor", s.handleGetContactor)
	api.PUT("/contactor/on", s.handleSetContactor(true))
	api.PUT("/contactor/off", s.handleSetContactor(false))
	return r
}

func (s *Server) newGRPCServer() *grpc.Server {
	grpcSrv := grpc.NewServer(
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_prometheus.StreamServerInterceptor,
			grpc_recovery.StreamServerInterceptor(),
		)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_prometheus.UnaryServerInterceptor,
			grpc_recovery.UnaryServerInterceptor(),
		)),
	)
	healthpb.RegisterHealthServer(grpcSrv, s.health.srv)
	// Register reflection service on gRPC server.
	reflection.Register(grpcSrv)
	grpc_prometheus.Register(grpcSrv)
	return grpcSrv
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: time.Second * 10,
	}

	grpcAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.GRPCPort))
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		httpLis.Close()
		return errors.Wrapf(err, "failed to listen on address %s", grpcAddr)
	}
	grpcSrv := s.newGRPCServer()

	serveErrors := make(chan error, 2)
	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErrors <- errors.Wrap(err, "failed to serve HTTP server")
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()
	log.Debug().Str("address", grpcAddr).Msg("Serving GRPC")
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			serveErrors <- errors.Wrap(err, "failed to serve GRPC server")
		}
		log.Debug().Str("address", grpcAddr).Msg("Done Serving GRPC")
	}()

	// Wait until context closed
	var result error
	select {
	case <-ctx.Done():
	case result = <-serveErrors:
	}

	log.Info().Msg("Closing servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && result == nil {
		result = errors.Wrap(err, "HTTP shutdown failed")
	}
	// Health watchers keep streams open, so do not wait for them forever.
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	return result
}

func (s *Server) status(ctx context.Context) (Status, error) {
	on, err := s.contactor.Flag(ctx)
	if err != nil {
		return Status{}, err
	}
	result := Status{On: on}
	if on {
		result.Flag = 1
	}
	if t := s.contactor.LastChange(); !t.IsZero() {
		result.LastChange = humanize.Time(t)
	}
	return result, nil
}

func (s *Server) handleGetContactor(c echo.Context) error {
	status, err := s.status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleSetContactor(on bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		s.log.Info().Bool("on", on).Str("remote", c.RealIP()).Msg("Contactor request")
		var err error
		if on {
			err = s.contactor.On(ctx)
		} else {
			err = s.contactor.Off(ctx)
		}
		if err != nil {
			return err
		}
		status, err := s.status(ctx)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, status)
	}
}

// errorHandler maps contactor errors onto HTTP status codes.
func (s *Server) errorHandler(err error, c echo.Context) {
	if he, ok := err.(*echo.HTTPError); ok {
		c.Echo().DefaultHTTPErrorHandler(he, c)
		return
	}
	code := http.StatusInternalServerError
	if contactor.IsNotInitialized(err) {
		code = http.StatusServiceUnavailable
	}
	s.log.Warn().Err(err).Int("code", code).Str("path", c.Path()).Msg("Request failed")
	c.Echo().DefaultHTTPErrorHandler(echo.NewHTTPError(code, errors.Cause(err).Error()), c)
}

func healthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
