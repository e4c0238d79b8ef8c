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
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// HealthService is the gRPC health service name of the contactor.
	HealthService = "contactor"
)

// Health reports through the gRPC health protocol whether the
// contactor line is initialized and under control of the worker.
type Health struct {
	srv *health.Server
}

// NewHealth creates a Health that reports NOT_SERVING until SetServing(true).
func NewHealth() *Health {
	h := &Health{srv: health.NewServer()}
	h.SetServing(false)
	return h
}

// SetServing updates the status of both the overall server ("")
// and the contactor service.
func (h *Health) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(HealthService, status)
}
