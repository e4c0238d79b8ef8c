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
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/ContactorWorker/pkg/config"
	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
)

func TestMergeFlags(t *testing.T) {
	defaults := config.Default()
	var flagCfg config.Config
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.IntVar(&flagCfg.Bridge.Pin, "pin", defaults.Bridge.Pin, "")
	fs.IntVar(&flagCfg.Server.Port, "port", defaults.Server.Port, "")
	fs.IntVar(&flagCfg.Server.GRPCPort, "grpc-port", defaults.Server.GRPCPort, "")
	fs.BoolVar(&flagCfg.OnAtStart, "on-at-start", false, "")
	require.NoError(t, fs.Parse([]string{"--pin=9", "--on-at-start", "--grpc-port=9100"}))

	fileCfg := config.Default()
	fileCfg.Bridge.Pin = 4
	fileCfg.Server.Port = 9000

	merged := mergeFlags(fileCfg, flagCfg, fs)
	assert.Equal(t, 9, merged.Bridge.Pin, "flag wins over file")
	assert.Equal(t, 9000, merged.Server.Port, "file wins over default flag")
	assert.Equal(t, 9100, merged.Server.GRPCPort)
	assert.True(t, merged.OnAtStart)
}

func TestNewBridge(t *testing.T) {
	br, err := newBridge(config.BridgeConfig{Type: bridge.TypeVirtual}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, bridge.TypeVirtual, br.Name())

	br, err = newBridge(config.BridgeConfig{Type: bridge.TypeCdev}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, bridge.TypeCdev, br.Name())

	_, err = newBridge(config.BridgeConfig{Type: "nope"}, zerolog.Nop())
	assert.Error(t, err)
}
