// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"io"
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func baseSettings() heatpump.Settings {
	return heatpump.Settings{
		Power: "ON", Mode: "HEAT", Fan: "AUTO", Vane: "AUTO", WideVane: "|",
		Temperature: 21, RoomTemperature: 19,
	}
}

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes and subscriptions. Methods it does not
// override panic through the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu         syncutil.Mutex
	publishes  []published
	subscribed map[string]mqtt.MessageHandler
	publishErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return doneToken{err: c.publishErr}
	}
	c.publishes = append(c.publishes, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[topic] = cb
	return doneToken{}
}

func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	cb := c.subscribed[topic]
	c.mu.Unlock()
	cb(c, fakeMessage{topic: topic, payload: payload})
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.publishes...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return true }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
