// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package signalk

import (
	"testing"

	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/values"
)

func TestSnapshotIncludesRegisteredValue(t *testing.T) {
	st := store.New()
	heading := values.NewPlain("imu.heading", 123.4)
	st.Register(heading)

	s := New(st, 0)
	d := s.snapshot()
	if len(d.Updates) != 1 {
		t.Fatalf("expected one update batch, got %d", len(d.Updates))
	}

	var found bool
	for _, v := range d.Updates[0].Values {
		if v.Path == "navigation.headingMagnetic" {
			found = true
			if v.Value != 123.4 {
				t.Errorf("heading value = %v, want 123.4", v.Value)
			}
		}
	}
	if !found {
		t.Fatal("navigation.headingMagnetic missing from snapshot")
	}
}

func TestStoreNameForKnownAndUnknownPaths(t *testing.T) {
	if name, ok := storeNameFor("steering.autopilot.state"); !ok || name != "ap.enabled" {
		t.Fatalf("storeNameFor(steering.autopilot.state) = %q, %v", name, ok)
	}
	if _, ok := storeNameFor("not.a.real.path"); ok {
		t.Fatal("expected unknown path to miss")
	}
}
