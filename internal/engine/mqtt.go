// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const defaultApplyTimeout = 10 * time.Second

// MQTTOptions configure an MQTT engine
type MQTTOptions struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	TopicPrefix  string // state on <prefix>/state, commands to <prefix>/set
	QoS          byte
	ApplyTimeout time.Duration // pending clears after this without a matching state
	PollInterval time.Duration
	Clock        emulator.Clock
	Logger       logrus.FieldLogger
}

// StateTopic is where the controller publishes its settings
func (o MQTTOptions) StateTopic() string { return o.TopicPrefix + "/state" }

// SetTopic is where wanted settings are published
func (o MQTTOptions) SetTopic() string { return o.TopicPrefix + "/set" }

// MQTT bridges a controller that speaks JSON settings over MQTT
type MQTT struct {
	client mqtt.Client
	opts   MQTTOptions
	log    logrus.FieldLogger
	wake   chan struct{}

	mu        syncutil.Mutex
	current   heatpump.Settings
	reported  bool
	wanted    heatpump.Settings
	wantedAt  time.Time
	pending   bool
	published bool
	timeouts  uint64
}

// DialMQTT connects to the broker and subscribes to the state topic. An
// unreachable broker is logged and retried in the background.
func DialMQTT(opts MQTTOptions) *MQTT {
	m := newMQTT(opts)

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetOnConnectHandler(m.onConnect)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.WithError(err).Warn("connection lost")
	})

	m.client = mqtt.NewClient(co)
	if token := m.client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		m.log.WithError(token.Error()).Warn("could not connect, will retry in background")
	}
	return m
}

// NewMQTT wraps an existing client. The caller subscribes via OnConnect or
// connects a client whose handler calls it.
func NewMQTT(client mqtt.Client, opts MQTTOptions) *MQTT {
	m := newMQTT(opts)
	m.client = client
	return m
}

func newMQTT(opts MQTTOptions) *MQTT {
	if opts.Clock == nil {
		opts.Clock = emulator.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = defaultApplyTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &MQTT{
		opts: opts,
		log:  opts.Logger.WithFields(logrus.Fields{"engine": "mqtt", "broker": opts.Broker}),
		wake: make(chan struct{}, 1),
	}
}

// OnConnect subscribes to the state topic
func (m *MQTT) OnConnect(c mqtt.Client) { m.onConnect(c) }

func (m *MQTT) onConnect(c mqtt.Client) {
	m.log.WithField("topic", m.opts.StateTopic()).Info("connected, subscribing")
	token := c.Subscribe(m.opts.StateTopic(), m.opts.QoS, m.handleState)
	go func() {
		if token.Wait() && token.Error() != nil {
			m.log.WithError(token.Error()).Error("subscribe failed")
		}
	}()
	// resend anything wanted while disconnected
	m.mu.Lock()
	m.published = false
	m.mu.Unlock()
	m.notify()
}

func (m *MQTT) handleState(_ mqtt.Client, msg mqtt.Message) {
	var in heatpump.Settings
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		m.log.WithError(err).WithField("payload", string(msg.Payload())).Warn("invalid state message")
		return
	}
	if !in.Complete() {
		m.log.WithField("settings", in.String()).Warn("incomplete state message")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = in
	m.reported = true
	if m.pending && in.Matches(m.wanted) {
		m.pending = false
		m.log.WithField("settings", in.String()).Info("applied")
	}
	m.log.WithField("settings", in.String()).Debug("state")
}

// Current implements emulator.Engine
func (m *MQTT) Current() (heatpump.Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.reported
}

// Want implements emulator.Engine
func (m *MQTT) Want(in heatpump.Settings) {
	m.mu.Lock()
	m.wanted = in
	m.wantedAt = m.opts.Clock.Now()
	m.pending = true
	m.published = false
	m.mu.Unlock()
	m.notify()
}

// Pending implements emulator.Engine
func (m *MQTT) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expire(m.opts.Clock.Now())
	return m.pending
}

// Timeouts returns how many wanted settings were never confirmed
func (m *MQTT) Timeouts() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeouts
}

// Run publishes wanted settings until ctx is done, then disconnects
func (m *MQTT) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if m.client != nil && m.client.IsConnected() {
				m.client.Disconnect(250)
			}
			return ctx.Err()
		case <-ticker.C:
		case <-m.wake:
		}
		if err := m.flush(); err != nil {
			m.log.WithError(err).Warn("publish failed")
		}
	}
}

// flush publishes the wanted settings once per Want
func (m *MQTT) flush() error {
	m.mu.Lock()
	m.expire(m.opts.Clock.Now())
	if !m.pending || m.published {
		m.mu.Unlock()
		return nil
	}
	wanted := m.wanted
	m.mu.Unlock()

	payload, err := json.Marshal(wanted)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	token := m.client.Publish(m.opts.SetTopic(), m.opts.QoS, false, payload)
	if !token.WaitTimeout(m.opts.ApplyTimeout) {
		return fmt.Errorf("publish to %s timed out", m.opts.SetTopic())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.opts.SetTopic(), err)
	}

	m.mu.Lock()
	if m.pending && m.wanted == wanted {
		m.published = true
	}
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"topic": m.opts.SetTopic(), "settings": wanted.String()}).Debug("published")
	return nil
}

// expire drops a pending push the controller never confirmed. Caller holds mu.
func (m *MQTT) expire(now time.Time) {
	if m.pending && now.Sub(m.wantedAt) >= m.opts.ApplyTimeout {
		m.pending = false
		m.timeouts++
		m.log.WithField("settings", m.wanted.String()).Warn("controller did not confirm settings")
	}
}

func (m *MQTT) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
