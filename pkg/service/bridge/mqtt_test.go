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
	"net"
	"sync"
	"testing"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool { return false }
func (m fakeMessage) Qos() byte { return mqttQos }
func (m fakeMessage) Retained() bool { return true }
func (m fakeMessage) Topic() string { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte { return []byte(m.payload) }
func (m fakeMessage) Ack() {}

func TestMQTTTopics(t *testing.T) {
	b := newMQTTBridge(MQTTConfig{TopicPrefix: "/bms/contactor"}, zerolog.Nop())
	assert.Equal(t, TypeMQTT, b.Name())
	assert.Equal(t, "/bms/contactor/pin6/command", b.pinTopic(6, "command"))
	assert.Equal(t, "/bms/contactor/pin6/state", b.pinTopic(6, "state"))
}

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeClient records published messages.
type fakeClient struct {
	mqttapi.Client
	mutex      sync.Mutex
	published  map[string]string
	publishErr error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqttapi.Token {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.publishErr != nil {
		return fakeToken{err: c.publishErr}
	}
	if c.published == nil {
		c.published = make(map[string]string)
	}
	switch p := payload.(type) {
	case string:
		c.published[topic] = p
	case []byte:
		c.published[topic] = string(p)
	}
	return fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {}

func newConnectedMQTTBridge(client *fakeClient) *mqttBridge {
	b := newMQTTBridge(MQTTConfig{TopicPrefix: "/bms/contactor/"}, zerolog.Nop())
	b.client = client
	return b
}

func TestMQTTLineReportsCommandedLevel(t *testing.T) {
	client := &fakeClient{}
	b := newConnectedMQTTBridge(client)

	l, err := b.Output(context.Background(), 6, contactorLineConfig)
	require.NoError(t, err)
	assert.Equal(t, "0", client.published["/bms/contactor/pin6/command"])
	assert.Contains(t, client.published["/bms/contactor/pin6/config"], `"pull":"pull-down"`)

	high, err := l.ReadLevel()
	require.NoError(t, err)
	assert.False(t, high, "low after configuration")

	require.NoError(t, l.SetHigh())
	assert.Equal(t, "1", client.published["/bms/contactor/pin6/command"])
	high, err = l.ReadLevel()
	require.NoError(t, err)
	assert.True(t, high, "high after SetHigh")

	require.NoError(t, l.SetLow())
	high, err = l.ReadLevel()
	require.NoError(t, err)
	assert.False(t, high, "low after SetLow")

	require.NoError(t, b.Close())
	_, err = l.ReadLevel()
	assert.True(t, IsLineClosed(err))
}

func TestMQTTStateMessagesDoNotChangeLevel(t *testing.T) {
	client := &fakeClient{}
	b := newConnectedMQTTBridge(client)

	// Retained state of an earlier run
	b.onMessage(nil, fakeMessage{topic: "/bms/contactor/pin6/state", payload: "1"})

	l, err := b.Output(context.Background(), 6, contactorLineConfig)
	require.NoError(t, err)
	high, err := l.ReadLevel()
	require.NoError(t, err)
	assert.False(t, high)

	b.onMessage(nil, fakeMessage{topic: "/bms/contactor/pin6/state", payload: "1"})
	b.onMessage(nil, fakeMessage{topic: "/bms/contactor/pin6/state", payload: "garbage"})
	b.onMessage(nil, fakeMessage{topic: "/bms/contactor/pin6/command", payload: "1"})
	b.onMessage(nil, fakeMessage{topic: "/bms/contactor/pinX/state", payload: "1"})
	require.NoError(t, l.SetLow())
	high, err = l.ReadLevel()
	require.NoError(t, err)
	assert.False(t, high)
}

func TestMQTTFailedPublishKeepsLevel(t *testing.T) {
	client := &fakeClient{}
	b := newConnectedMQTTBridge(client)

	l, err := b.Output(context.Background(), 6, contactorLineConfig)
	require.NoError(t, err)

	client.publishErr = errors.New("broker gone")
	assert.Error(t, l.SetHigh())
	high, err := l.ReadLevel()
	require.NoError(t, err)
	assert.False(t, high)

	client.publishErr = nil
	require.NoError(t, l.SetHigh())
	high, err = l.ReadLevel()
	require.NoError(t, err)
	assert.True(t, high)
}

func TestNewMQTTBridgeConnectFailure(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	_, err = NewMQTTBridge(MQTTConfig{
		Host:        "127.0.0.1",
		Port:        port,
		ClientID:    "contactor-test",
		TopicPrefix: "/bms/contactor/",
	}, zerolog.Nop())
	assert.Error(t, err)
}

func TestMQTTOutputWithoutConnection(t *testing.T) {
	b := newMQTTBridge(MQTTConfig{TopicPrefix: "/bms"}, zerolog.Nop())
	_, err := b.Output(context.Background(), 6, contactorLineConfig)
	assert.Error(t, err)
	_, err = b.Output(context.Background(), 6, LineConfig{})
	assert.True(t, IsInvalidConfig(err))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "ON", " yes "} {
		v, err := parseBool(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"0", "false", "off", "No"} {
		v, err := parseBool(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := parseBool("maybe")
	assert.Error(t, err)
	assert.Equal(t, "1", formatBool(true))
	assert.Equal(t, "0", formatBool(false))
}
