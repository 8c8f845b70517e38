// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry mirrors value-store readings onto an MQTT broker
// for logging, learning, or remote-monitoring consumers outside the
// autopilot process itself.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/cypilot/internal/store"
)

// Mirror periodically snapshots every named store value to a single
// retained MQTT message per value, and forwards any "<prefix>/set/<name>"
// message it receives back into the store as a write.
type Mirror struct {
	st           *store.Store
	client       mqtt.Client
	topicPrefix  string
	publishEvery time.Duration
}

// New connects to broker and returns a Mirror that will publish under
// topicPrefix once Run is called. clientID must be unique per process
// sharing the broker (telemetry and any console subscriber dial the
// same broker).
func New(st *store.Store, broker, clientID, topicPrefix string, publishEvery time.Duration) (*Mirror, error) {
	m := &Mirror{st: st, topicPrefix: topicPrefix, publishEvery: publishEvery}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("telemetry: connected to MQTT broker at %s", broker)

	setTopic := topicPrefix + "/set/+"
	token := m.client.Subscribe(setTopic, 0, m.handleSet)
	token.Wait()
	if token.Error() != nil {
		m.client.Disconnect(250)
		return nil, token.Error()
	}
	log.Printf("telemetry: subscribed to %s", setTopic)

	return m, nil
}

// handleSet applies an incoming "<prefix>/set/<name>" message to the
// matching store value, the way a remote panel or SignalK client asks
// the autopilot to change a setting.
func (m *Mirror) handleSet(_ mqtt.Client, msg mqtt.Message) {
	name := msg.Topic()[len(m.topicPrefix)+len("/set/"):]
	v := m.st.Lookup(name)
	if v == nil {
		log.Printf("telemetry: set for unknown value %q", name)
		return
	}
	var raw any
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.Printf("telemetry: set %q: invalid payload: %v", name, err)
		return
	}
	v.Set(raw)
}

// Run publishes a retained MQTT message per registered store value
// every publishEvery until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.publishEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.client.Disconnect(250)
			return ctx.Err()
		case <-ticker.C:
			m.publishAll()
		}
	}
}

func (m *Mirror) publishAll() {
	for _, name := range m.st.Names() {
		v := m.st.Lookup(name)
		if v == nil {
			continue
		}
		payload, err := json.Marshal(v.Get())
		if err != nil {
			log.Printf("telemetry: marshal %q: %v", name, err)
			continue
		}
		topic := m.topicPrefix + "/" + name
		if token := m.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("telemetry: publish %q: %v", topic, token.Error())
		}
	}
}
