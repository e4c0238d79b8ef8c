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

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/binkynet/ContactorWorker/pkg/service/bridge"
	"github.com/binkynet/ContactorWorker/pkg/service/contactor"
)

const (
	// BridgeAuto selects the bridge based on the detected hardware.
	BridgeAuto = "auto"

	defaultServerPort = 7130
	defaultGRPCPort   = 7131
	defaultMQTTPort   = 1883
)

// Config of the worker, as loaded from an (optional) YAML file.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Bridge BridgeConfig `yaml:"bridge"`
	Server ServerConfig `yaml:"server"`
	// OnAtStart closes the contactor directly after initialization
	OnAtStart bool `yaml:"on_at_start"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type BridgeConfig struct {
	Type string `yaml:"type"`
	Pin  int    `yaml:"pin"`
	// GPIO character device (cdev bridge)
	Chip string     `yaml:"chip"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UserName    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Bridge: BridgeConfig{
			Type: BridgeAuto,
			Pin:  contactor.DefaultPin,
			Chip: bridge.DefaultChip,
			MQTT: MQTTConfig{
				Host:        "localhost",
				Port:        defaultMQTTPort,
				ClientID:    "contactor-worker",
				TopicPrefix: "/bms/contactor/",
			},
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     defaultServerPort,
			GRPCPort: defaultGRPCPort,
		},
	}
}

// Load reads the YAML file at the given path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config file '%s'", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config file '%s'", path)
	}
	return cfg, nil
}

// Validate the configuration.
func (c Config) Validate() error {
	switch c.Bridge.Type {
	case BridgeAuto, bridge.TypeVirtual, bridge.TypeSysfs, bridge.TypeCdev, bridge.TypePeriph:
	case bridge.TypeMQTT:
		if c.Bridge.MQTT.Host == "" {
			return errors.New("mqtt host missing")
		}
		if c.Bridge.MQTT.Port <= 0 || c.Bridge.MQTT.Port > 65535 {
			return errors.Errorf("invalid mqtt port %d", c.Bridge.MQTT.Port)
		}
	default:
		return errors.Errorf("unknown bridge type '%s' (auto|virtual|sysfs|cdev|periph|mqtt)", c.Bridge.Type)
	}
	if c.Bridge.Pin < 0 {
		return errors.Errorf("invalid pin %d", c.Bridge.Pin)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return errors.Errorf("invalid grpc port %d", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort == c.Server.Port {
		return errors.Errorf("http and grpc cannot share port %d", c.Server.Port)
	}
	return nil
}
