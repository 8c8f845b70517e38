// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"testing"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (f fakeMessage) Duplicate() bool   { return false }
func (f fakeMessage) Qos() byte         { return 0 }
func (f fakeMessage) Retained() bool    { return false }
func (f fakeMessage) Topic() string     { return f.topic }
func (f fakeMessage) MessageID() uint16 { return 0 }
func (f fakeMessage) Payload() []byte   { return f.payload }
func (f fakeMessage) Ack()              {}

func TestHandleSetAppliesKnownValue(t *testing.T) {
	st := store.New()
	v := values.NewPlain("ap.heading_command", 0.0)
	st.Register(v)

	m := &Mirror{st: st, topicPrefix: "cypilot"}
	m.handleSet(nil, fakeMessage{topic: "cypilot/set/ap.heading_command", payload: []byte("42.5")})

	if got := v.Get(); got != 42.5 {
		t.Fatalf("value = %v, want 42.5", got)
	}
}

func TestHandleSetUnknownValueIsIgnored(t *testing.T) {
	st := store.New()
	m := &Mirror{st: st, topicPrefix: "cypilot"}
	// Must not panic even though "nope" was never registered.
	m.handleSet(nil, fakeMessage{topic: "cypilot/set/nope", payload: []byte("1")})
}
