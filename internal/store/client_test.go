// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"testing"
	"time"
)

func TestClientHandleLineDispatchesUpdates(t *testing.T) {
	c := NewClient("localhost:0")

	c.handleLine(`ap.heading=12.5`)
	c.handleLine(`ap.mode="compass"`)
	c.handleLine(`error=value already held: ap.mode`)
	c.handleLine("not a wire line")

	want := []Update{
		{Name: "ap.heading", Value: 12.5},
		{Name: "ap.mode", Value: "compass"},
	}
	for _, w := range want {
		select {
		case u := <-c.Updates():
			if u != w {
				t.Fatalf("update = %+v, want %+v", u, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing update %+v", w)
		}
	}
	select {
	case u := <-c.Updates():
		t.Fatalf("error/garbage lines must not surface as updates, got %+v", u)
	default:
	}
}

func TestClientNotConnectedByDefault(t *testing.T) {
	c := NewClient("localhost:0")
	if c.Connected() {
		t.Fatal("a client that never dialed must not report connected")
	}
	if err := c.Set("ap.mode", "gps"); err == nil {
		t.Fatal("Set before connecting should error")
	}
	if err := c.Watch("ap.mode", 0); err == nil {
		t.Fatal("Watch before connecting should error")
	}
}
