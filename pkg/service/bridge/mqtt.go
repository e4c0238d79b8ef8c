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

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	mqttPublishTimeout = time.Millisecond * 200
	mqttConnectTimeout = time.Second * 5
	mqttQos            = 1
)

// MQTTConfig holds the settings of the MQTT bridge.
type MQTTConfig struct {
	Host     string
	Port     int
	UserName string
	Password string
	ClientID string
	// TopicPrefix all pin topics are placed under, e.g. "/bms/contactor/"
	TopicPrefix string
}

type mqttBridge struct {
	mutex       sync.Mutex
	log         zerolog.Logger
	config      MQTTConfig
	topicPrefix string
	client      mqttapi.Client
	lines       map[int]*mqttLine
}

// line config as published on the config topic of a pin
type mqttLineConfig struct {
	Mode       string `json:"mode"`
	OutputType string `json:"output_type"`
	Speed      string `json:"speed"`
	Pull       string `json:"pull"`
}

// NewMQTTBridge implements the bridge for a remote IO node that is
// controlled through an MQTT broker.
func NewMQTTBridge(cfg MQTTConfig, log zerolog.Logger) (API, error) {
	b := newMQTTBridge(cfg, log)
	opts := defaultMQTTClientOptions(cfg)
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		topic := b.topicPrefix + "#"
		if token := c.Subscribe(topic, mqttQos, b.onMessage); token.Wait() && token.Error() != nil {
			b.log.Error().Err(token.Error()).Msgf("failed to subscribe to '%s'", topic)
			return
		}
		b.log.Debug().Msgf("Subscribed to MQTT topic '%s'", topic)
	})
	client := mqttapi.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0)
		return nil, errors.New("timeout connecting to mqtt")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, errors.Wrap(err, "failed to connect to mqtt")
	}
	b.client = client
	return b, nil
}

func newMQTTBridge(cfg MQTTConfig, log zerolog.Logger) *mqttBridge {
	return &mqttBridge{
		log:         log.With().Str("component", "mqtt-bridge").Logger(),
		config:      cfg,
		topicPrefix: strings.TrimSuffix(cfg.TopicPrefix, "/") + "/",
		lines:       make(map[int]*mqttLine),
	}
}

// defaultMQTTClientOptions prepares the client options for the given config.
func defaultMQTTClientOptions(cfg MQTTConfig) *mqttapi.ClientOptions {
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))).
		SetClientID(cfg.ClientID)
	if cfg.UserName != "" {
		opts.SetUsername(cfg.UserName)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	return opts
}

// Name of the bridge type
func (b *mqttBridge) Name() string {
	return TypeMQTT
}

func (b *mqttBridge) pinTopic(pinNumber int, suffix string) string {
	return fmt.Sprintf("%spin%d/%s", b.topicPrefix, pinNumber, suffix)
}

// Output publishes the line configuration and an initial low command.
// The level of the returned line is the level last commanded by it.
func (b *mqttBridge) Output(ctx context.Context, pinNumber int, cfg LineConfig) (OutputLine, error) {
	if pinNumber < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, found := b.lines[pinNumber]; found {
		return nil, errors.Wrapf(PinInUseError, "pin %d", pinNumber)
	}
	payload, err := json.Marshal(mqttLineConfig{
		Mode:       cfg.Mode.String(),
		OutputType: cfg.OutputType.String(),
		Speed:      cfg.Speed.String(),
		Pull:       cfg.Pull.String(),
	})
	if err != nil {
		return nil, maskAny(err)
	}
	if err := b.publish(b.pinTopic(pinNumber, "config"), payload); err != nil {
		countConfigureError(TypeMQTT)
		return nil, err
	}
	if err := b.publish(b.pinTopic(pinNumber, "command"), formatBool(false)); err != nil {
		countConfigureError(TypeMQTT)
		return nil, err
	}
	l := &mqttLine{bridge: b, number: pinNumber, level: false}
	b.lines[pinNumber] = l
	outputConfiguredTotal.WithLabelValues(TypeMQTT).Inc()
	return l, nil
}

// publish a retained message and wait for delivery.
func (b *mqttBridge) publish(topic string, payload interface{}) error {
	if b.client == nil {
		return errors.Errorf("not connected, cannot publish to '%s'", topic)
	}
	retain := true
	token := b.client.Publish(topic, mqttQos, retain, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Errorf("failed to deliver MQTT message to '%s' in time", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to '%s' failed", topic)
	}
	return nil
}

// Receive state messages.
// The state reported by the IO node is only compared with the commanded level.
func (b *mqttBridge) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	topic := strings.TrimPrefix(msg.Topic(), b.topicPrefix)
	if !strings.HasPrefix(topic, "pin") || !strings.HasSuffix(topic, "/state") {
		// Not a state message
		return
	}
	pinNumber, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(topic, "pin"), "/state"))
	if err != nil {
		b.log.Debug().Str("topic", msg.Topic()).Msg("ignoring state message with invalid pin")
		return
	}
	reported, err := parseBool(string(msg.Payload()))
	if err != nil {
		b.log.Warn().Err(err).Int("pin", pinNumber).Msg("invalid state reported by IO node")
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l, found := b.lines[pinNumber]; found && l.level != reported {
		b.log.Warn().
			Int("pin", pinNumber).
			Bool("commanded", l.level).
			Bool("reported", reported).
			Msg("IO node reports a level different from the commanded level")
	}
}

// Close releases all lines and disconnects from the broker.
func (b *mqttBridge) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, l := range b.lines {
		l.closed = true
	}
	b.lines = make(map[int]*mqttLine)
	if b.client != nil {
		b.client.Disconnect(250)
		b.client = nil
	}
	return nil
}

type mqttLine struct {
	bridge *mqttBridge
	number int
	level  bool
	closed bool
}

func (l *mqttLine) write(high bool) error {
	b := l.bridge
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l.closed {
		return countWrite(TypeMQTT, high, errors.Wrapf(LineClosedError, "pin %d", l.number))
	}
	if err := b.publish(b.pinTopic(l.number, "command"), formatBool(high)); err != nil {
		return countWrite(TypeMQTT, high, err)
	}
	l.level = high
	return countWrite(TypeMQTT, high, nil)
}

// Drive the line to its high level
func (l *mqttLine) SetHigh() error {
	return l.write(true)
}

// Drive the line to its low level
func (l *mqttLine) SetLow() error {
	return l.write(false)
}

// ReadLevel returns the level last commanded on the line.
func (l *mqttLine) ReadLevel() (bool, error) {
	b := l.bridge
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l.closed {
		err := errors.Wrapf(LineClosedError, "pin %d", l.number)
		countRead(TypeMQTT, err)
		return false, err
	}
	countRead(TypeMQTT, nil)
	return l.level, nil
}

// Close releases the line.
func (l *mqttLine) Close() error {
	b := l.bridge
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if !l.closed {
		l.closed = true
		delete(b.lines, l.number)
	}
	return nil
}

// Parse a string into a bool
func parseBool(str string) (bool, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	switch str {
	case "1", "t", "true", "on", "yes":
		return true, nil
	case "0", "f", "false", "off", "no":
		return false, nil
	}
	return false, errors.Errorf("invalid bool value '%s'", str)
}

// format a bool as string
func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
