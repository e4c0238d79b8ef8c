//    Copyright 2023 Ewout Prangsma
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
	"github.com/binkynet/ContactorWorker/pkg/metrics"
)

const (
	subSystem = "bridge"
)

var (
	// Total number of lines configured as output
	outputConfiguredTotal = metrics.MustRegisterCounterVec(subSystem,
		"output_configured_total",
		"Total number of lines configured as output",
		"bridge")
	// Total number of line writes
	lineWritesTotal = metrics.MustRegisterCounterVec(subSystem,
		"line_writes_total",
		"Total number of line writes",
		"bridge", "level")
	// Total number of line reads
	lineReadsTotal = metrics.MustRegisterCounterVec(subSystem,
		"line_reads_total",
		"Total number of line read-backs",
		"bridge")
	// Total number of failed line operations
	lineErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"line_errors_total",
		"Total number of failed line operations",
		"bridge", "op")
)

func levelLabel(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

// countWrite records a write of the given level and its outcome.
func countWrite(bridge string, high bool, err error) error {
	lineWritesTotal.WithLabelValues(bridge, levelLabel(high)).Inc()
	if err != nil {
		lineErrorsTotal.WithLabelValues(bridge, "write").Inc()
	}
	return err
}

// countRead records a read-back and its outcome.
func countRead(bridge string, err error) {
	lineReadsTotal.WithLabelValues(bridge).Inc()
	if err != nil {
		lineErrorsTotal.WithLabelValues(bridge, "read").Inc()
	}
}

// countConfigureError records a failure to configure a line.
func countConfigureError(bridge string) {
	lineErrorsTotal.WithLabelValues(bridge, "configure").Inc()
}
