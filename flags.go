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

package main

import (
	"github.com/spf13/pflag"

	"github.com/binkynet/ContactorWorker/pkg/config"
)

// mergeFlags returns the file configuration with all explicitly set
// flags applied on top of it.
func mergeFlags(fileCfg, flagCfg config.Config, fs *pflag.FlagSet) config.Config {
	result := fileCfg
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("level", func() { result.Log.Level = flagCfg.Log.Level })
	set("log-file", func() { result.Log.File = flagCfg.Log.File })
	set("bridge", func() { result.Bridge.Type = flagCfg.Bridge.Type })
	set("pin", func() { result.Bridge.Pin = flagCfg.Bridge.Pin })
	set("chip", func() { result.Bridge.Chip = flagCfg.Bridge.Chip })
	set("mqtt-host", func() { result.Bridge.MQTT.Host = flagCfg.Bridge.MQTT.Host })
	set("mqtt-port", func() { result.Bridge.MQTT.Port = flagCfg.Bridge.MQTT.Port })
	set("mqtt-user", func() { result.Bridge.MQTT.UserName = flagCfg.Bridge.MQTT.UserName })
	set("mqtt-password", func() { result.Bridge.MQTT.Password = flagCfg.Bridge.MQTT.Password })
	set("mqtt-client-id", func() { result.Bridge.MQTT.ClientID = flagCfg.Bridge.MQTT.ClientID })
	set("mqtt-topic-prefix", func() { result.Bridge.MQTT.TopicPrefix = flagCfg.Bridge.MQTT.TopicPrefix })
	set("host", func() { result.Server.Host = flagCfg.Server.Host })
	set("port", func() { result.Server.Port = flagCfg.Server.Port })
	set("grpc-port", func() { result.Server.GRPCPort = flagCfg.Server.GRPCPort })
	set("on-at-start", func() { result.OnAtStart = flagCfg.OnAtStart })
	return result
}
