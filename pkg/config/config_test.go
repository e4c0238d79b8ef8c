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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BridgeAuto, cfg.Bridge.Type)
	assert.Equal(t, 6, cfg.Bridge.Pin)
	assert.False(t, cfg.OnAtStart)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	content := `
log:
  level: debug
bridge:
  type: mqtt
  pin: 12
  mqtt:
    host: broker.local
    topic_prefix: /bms/pack1/
server:
  port: 8080
  grpc_port: 8081
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "mqtt", cfg.Bridge.Type)
	assert.Equal(t, 12, cfg.Bridge.Pin)
	assert.Equal(t, "broker.local", cfg.Bridge.MQTT.Host)
	assert.Equal(t, 1883, cfg.Bridge.MQTT.Port, "default kept")
	assert.Equal(t, "/bms/pack1/", cfg.Bridge.MQTT.TopicPrefix)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Server.GRPCPort)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "default kept")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge: [unclosed"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Type = "gpio-over-carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bridge.Pin = -2
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.GRPCPort = cfg.Server.Port
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bridge.Type = "mqtt"
	cfg.Bridge.MQTT.Host = ""
	assert.Error(t, cfg.Validate())
}
