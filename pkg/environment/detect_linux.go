//    Copyright 2018 Ewout Prangsma
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

package environment

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
)

const (
	devRoot   = "/dev"
	sysfsRoot = "/sys/class/gpio"
)

// AutoDetectBridgeType detects the default bridge type based on the environment.
func AutoDetectBridgeType(log zerolog.Logger) string {
	return detectBridgeType(log, devRoot, sysfsRoot)
}

func detectBridgeType(log zerolog.Logger, devRoot, sysfsRoot string) string {
	var name unix.Utsname
	if err := unix.Uname(&name); err == nil {
		log = log.With().Str("release", unix.ByteSliceToString(name.Release[:])).Logger()
	}
	if unix.Access(filepath.Join(devRoot, bridge.DefaultChip), unix.R_OK|unix.W_OK) == nil {
		log.Debug().Msg("Detected GPIO character device")
		return bridge.TypeCdev
	}
	if unix.Access(filepath.Join(sysfsRoot, "export"), unix.W_OK) == nil {
		log.Debug().Msg("Detected sysfs GPIO")
		return bridge.TypeSysfs
	}
	log.Info().Msg("No GPIO hardware detected, using virtual bridge")
	return bridge.TypeVirtual
}
