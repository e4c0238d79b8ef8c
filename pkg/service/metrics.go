//    Copyright 2021 Ewout Prangsma
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
	"github.com/binkynet/ContactorWorker/pkg/metrics"
)

const (
	subSystem = "service"
)

var (
	// Unix time the worker started running
	startTimeGauge = metrics.MustRegisterGauge(subSystem,
		"start_time_seconds",
		"Unix time the worker started running")
	// Total number of failed worker runs
	runFailuresTotal = metrics.MustRegisterCounter(subSystem,
		"run_failures_total",
		"Total number of worker runs that ended with an error")
)
