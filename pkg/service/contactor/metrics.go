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
	"github.com/binkynet/ContactorWorker/pkg/metrics"
)

const (
	subSystem = "contactor"
)

var (
	// Commanded state of the contactor
	contactorStateGauge = metrics.MustRegisterGauge(subSystem,
		"state",
		"Commanded state of the contactor (0=OFF, 1=ON)")
	// Number of On/Off requests
	requestsTotal = metrics.MustRegisterCounterVec(subSystem,
		"requests_total",
		"Number of contactor requests",
		"state")
	// Number of failed initializations
	initFailuresTotal = metrics.MustRegisterCounter(subSystem,
		"init_failures_total",
		"Number of failed contactor initializations")
)

func stateLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
