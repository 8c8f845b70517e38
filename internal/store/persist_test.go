// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relabs-tech/cypilot/internal/values"
)

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cypilot.conf")

	s := New()
	gain := values.NewRangeSetting("ap.pilot.simple.P", 1, 0, 5, "")
	mode := values.NewEnumSetting("ap.mode", "compass", []string{"compass", "gps", "wind"})
	transient := values.NewProperty("ap.heading_command", 90.0)
	s.Register(gain)
	s.Register(mode)
	s.Register(transient)

	gain.Set(3.2)
	mode.Set("gps")

	p := NewPersistence(s, path)
	if err := p.Store(); err != nil {
		t.Fatalf("Store: %v", err)
	}

	s2 := New()
	gain2 := values.NewRangeSetting("ap.pilot.simple.P", 1, 0, 5, "")
	mode2 := values.NewEnumSetting("ap.mode", "compass", []string{"compass", "gps", "wind"})
	s2.Register(gain2)
	s2.Register(mode2)

	if err := NewPersistence(s2, path).Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := gain2.Get(); got != 3.2 {
		t.Fatalf("ap.pilot.simple.P after round-trip = %v, want 3.2", got)
	}
	if got := mode2.Get(); got != "gps" {
		t.Fatalf("ap.mode after round-trip = %v, want gps", got)
	}
}

func TestPersistenceFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cypilot.conf")
	if err := os.WriteFile(path+".bak", []byte("ap.mode=\"wind\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	mode := values.NewEnumSetting("ap.mode", "compass", []string{"compass", "gps", "wind"})
	s.Register(mode)

	if err := NewPersistence(s, path).Load(); err != nil {
		t.Fatalf("Load with only a backup present: %v", err)
	}
	if got := mode.Get(); got != "wind" {
		t.Fatalf("ap.mode from backup = %v, want wind", got)
	}
}

func TestPersistenceSkipsNonPersistentValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cypilot.conf")

	s := New()
	s.Register(values.NewProperty("ap.heading_command", 90.0))
	if err := NewPersistence(s, path).Store(); err != nil {
		t.Fatalf("Store: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("snapshot should be empty, got %q", data)
	}
}
