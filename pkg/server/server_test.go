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

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
	"github.com/binkynet/ContactorWorker/pkg/service/contactor"
)

func newTestServer(t *testing.T, initialize bool) (*Server, *contactor.Contactor) {
	t.Helper()
	c, err := contactor.New(contactor.Config{Pin: contactor.DefaultPin}, bridge.NewVirtualBridge(), zerolog.Nop())
	require.NoError(t, err)
	if initialize {
		require.NoError(t, c.Init(context.Background()))
	}
	s, err := New(Config{Host: "127.0.0.1"}, zerolog.Nop(), c, nil)
	require.NoError(t, err)
	return s, c
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) Status {
	t.Helper()
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contactor_worker_contactor_state")
}

func TestContactorAPI(t *testing.T) {
	s, c := newTestServer(t, true)

	rec := do(t, s, http.MethodGet, "/api/v1/contactor")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeStatus(t, rec)
	assert.False(t, status.On)
	assert.Equal(t, uint32(0), status.Flag)
	assert.NotEmpty(t, status.LastChange)

	rec = do(t, s, http.MethodPut, "/api/v1/contactor/on")
	require.Equal(t, http.StatusOK, rec.Code)
	status = decodeStatus(t, rec)
	assert.True(t, status.On)
	assert.Equal(t, uint32(1), status.Flag)
	on, err := c.Flag(context.Background())
	require.NoError(t, err)
	assert.True(t, on)

	rec = do(t, s, http.MethodPut, "/api/v1/contactor/off")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeStatus(t, rec).On)

	rec = do(t, s, http.MethodPost, "/api/v1/contactor/on")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestContactorAPINotInitialized(t *testing.T) {
	s, _ := newTestServer(t, false)

	rec := do(t, s, http.MethodGet, "/api/v1/contactor")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, s, http.MethodPut, "/api/v1/contactor/on")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type brokenContactor struct{}

func (brokenContactor) On(ctx context.Context) error { return errors.New("line gone") }
func (brokenContactor) Off(ctx context.Context) error { return errors.New("line gone") }
func (brokenContactor) Flag(ctx context.Context) (bool, error) { return false, errors.New("line gone") }
func (brokenContactor) LastChange() time.Time { return time.Time{} }

func TestContactorAPIInternalError(t *testing.T) {
	s, err := New(Config{}, zerolog.Nop(), brokenContactor{}, nil)
	require.NoError(t, err)
	rec := do(t, s, http.MethodPut, "/api/v1/contactor/off")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "line gone")
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("server did not stop")
	}
}

func TestGRPCHealth(t *testing.T) {
	ctx := context.Background()
	c, err := contactor.New(contactor.Config{Pin: contactor.DefaultPin}, bridge.NewVirtualBridge(), zerolog.Nop())
	require.NoError(t, err)
	h := NewHealth()
	s, err := New(Config{Host: "127.0.0.1"}, zerolog.Nop(), c, h)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	grpcSrv := s.newGRPCServer()
	go grpcSrv.Serve(lis)
	defer grpcSrv.Stop()

	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(HealthService))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	h.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(HealthService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))

	h.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(HealthService))

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
