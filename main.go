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
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/ContactorWorker/pkg/config"
	"github.com/binkynet/ContactorWorker/pkg/environment"
	"github.com/binkynet/ContactorWorker/pkg/logging"
	"github.com/binkynet/ContactorWorker/pkg/server"
	"github.com/binkynet/ContactorWorker/pkg/service"
	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
)

const (
	projectName = "BinkyNet Contactor Worker"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	defaults := config.Default()
	var configPath string
	var cfg config.Config
	pflag.StringVar(&configPath, "config", "", "Path of YAML configuration file")
	pflag.StringVarP(&cfg.Log.Level, "level", "l", defaults.Log.Level, "Set log level")
	pflag.StringVar(&cfg.Log.File, "log-file", defaults.Log.File, "Append logs to this file as well")
	pflag.StringVarP(&cfg.Bridge.Type, "bridge", "b", defaults.Bridge.Type, "Type of bridge to use (auto|virtual|sysfs|cdev|periph|mqtt)")
	pflag.IntVar(&cfg.Bridge.Pin, "pin", defaults.Bridge.Pin, "Pin number of the contactor line")
	pflag.StringVar(&cfg.Bridge.Chip, "chip", defaults.Bridge.Chip, "GPIO character device (cdev bridge)")
	pflag.StringVar(&cfg.Bridge.MQTT.Host, "mqtt-host", defaults.Bridge.MQTT.Host, "Host of the MQTT broker (mqtt bridge)")
	pflag.IntVar(&cfg.Bridge.MQTT.Port, "mqtt-port", defaults.Bridge.MQTT.Port, "Port of the MQTT broker (mqtt bridge)")
	pflag.StringVar(&cfg.Bridge.MQTT.UserName, "mqtt-user", defaults.Bridge.MQTT.UserName, "User name for the MQTT broker")
	pflag.StringVar(&cfg.Bridge.MQTT.Password, "mqtt-password", defaults.Bridge.MQTT.Password, "Password for the MQTT broker")
	pflag.StringVar(&cfg.Bridge.MQTT.ClientID, "mqtt-client-id", defaults.Bridge.MQTT.ClientID, "MQTT client ID")
	pflag.StringVar(&cfg.Bridge.MQTT.TopicPrefix, "mqtt-topic-prefix", defaults.Bridge.MQTT.TopicPrefix, "Prefix of the MQTT pin topics")
	pflag.StringVar(&cfg.Server.Host, "host", defaults.Server.Host, "Host address the HTTP server will listen on")
	pflag.IntVar(&cfg.Server.Port, "port", defaults.Server.Port, "Port the HTTP server will listen on")
	pflag.IntVar(&cfg.Server.GRPCPort, "grpc-port", defaults.Server.GRPCPort, "Port the GRPC health server will listen on")
	pflag.BoolVar(&cfg.OnAtStart, "on-at-start", defaults.OnAtStart, "Close the contactor directly after initialization")
	pflag.Parse()

	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			Exitf("%v\n", err)
		}
		cfg = mergeFlags(fileCfg, cfg, pflag.CommandLine)
	}
	if err := cfg.Validate(); err != nil {
		Exitf("Invalid configuration: %v\n", err)
	}

	out, err := logging.OpenOutput(cfg.Log.File)
	if err != nil {
		Exitf("%v\n", err)
	}
	defer out.Close()
	logger, err := logging.NewLogger(out, cfg.Log.Level)
	if err != nil {
		Exitf("%v\n", err)
	}

	br, err := newBridge(cfg.Bridge, logger)
	if err != nil {
		Exitf("Failed to initialize bridge: %v\n", err)
	}
	logger.Info().Str("bridge", br.Name()).Int("pin", cfg.Bridge.Pin).Msg("Using bridge")

	health := server.NewHealth()
	svc, err := service.NewService(service.Config{
		ProgramVersion: projectVersion,
		Pin:            cfg.Bridge.Pin,
		OnAtStart:      cfg.OnAtStart,
	}, service.Dependencies{
		Logger: logger,
		Bridge: br,
		Health: health,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	httpServer, err := server.New(server.Config{
		Host:     cfg.Server.Host,
		HTTPPort: cfg.Server.Port,
		GRPCPort: cfg.Server.GRPCPort,
	}, logger, svc.Contactor(), health)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if err := g.Wait(); err != nil {
		out.Close()
		Exitf("Service run failed: %v\n", err)
	}
}

// newBridge creates the bridge of the configured type.
func newBridge(cfg config.BridgeConfig, log zerolog.Logger) (bridge.API, error) {
	bridgeType := cfg.Type
	if bridgeType == config.BridgeAuto {
		bridgeType = environment.AutoDetectBridgeType(log)
	}
	switch bridgeType {
	case bridge.TypeVirtual:
		return bridge.NewVirtualBridge(), nil
	case bridge.TypeSysfs:
		return bridge.NewSysfsBridge(log), nil
	case bridge.TypeCdev:
		return bridge.NewCharDevBridge(cfg.Chip, log), nil
	case bridge.TypePeriph:
		br, err := bridge.NewPeriphBridge(log)
		if err != nil {
			return nil, maskAny(err)
		}
		return br, nil
	case bridge.TypeMQTT:
		br, err := bridge.NewMQTTBridge(bridge.MQTTConfig{
			Host:        cfg.MQTT.Host,
			Port:        cfg.MQTT.Port,
			UserName:    cfg.MQTT.UserName,
			Password:    cfg.MQTT.Password,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, log)
		if err != nil {
			return nil, maskAny(err)
		}
		return br, nil
	default:
		return nil, errors.Errorf("Unknown bridge type '%s'", bridgeType)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
