// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package nmeabridge

import (
	"testing"

	"github.com/relabs-tech/cypilot/internal/fusion"
	"github.com/relabs-tech/cypilot/internal/store"
)

func newTestSensors(t *testing.T) *fusion.Sensors {
	t.Helper()
	dir := t.TempDir()
	st := store.New()
	return fusion.NewSensors(st, dir+"/cypilot_sensors.conf")
}

func TestChecksumOK(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"$IIVWR,120.0,L,12.3,N,,,,*hh", false},
		{"$IIRSA,4.1,A,,*hh", false},
	}
	for _, c := range cases {
		if got := checksumOK(c.line); got != c.want {
			t.Errorf("checksumOK(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestParseMWV(t *testing.T) {
	sensors := newTestSensors(t)
	b := New(sensors, "/dev/ttyUSB0")

	line := "$WIMWV,045.0,R,012.3,N,A*hh"
	b.handle(withValidChecksum(line))

	if got := sensors.Wind.Source(); got != "serial" {
		t.Fatalf("wind source = %q, want serial", got)
	}
	if got, _ := sensors.Wind.Direction.Get().(float64); got != 45.0 {
		t.Fatalf("wind direction = %v, want 45", got)
	}
}

func TestParseRSA(t *testing.T) {
	sensors := newTestSensors(t)
	b := New(sensors, "/dev/ttyUSB2")

	line := "$IIRSA,-4.1,A,,*hh"
	b.handle(withValidChecksum(line))

	if got, _ := sensors.Rudder.Angle.Get().(float64); got != -4.1 {
		t.Fatalf("rudder angle = %v, want -4.1", got)
	}
}

func TestParseVHW(t *testing.T) {
	sensors := newTestSensors(t)
	b := New(sensors, "/dev/ttyUSB4")

	line := "$IIVHW,,T,,M,5.2,N,9.6,K*hh"
	b.handle(withValidChecksum(line))

	if got, _ := sensors.SOW.Speed.Get().(float64); got != 5.2 {
		t.Fatalf("sow speed = %v, want 5.2", got)
	}
}

// withValidChecksum recomputes and appends a real *hh checksum so
// handle()'s checksumOK gate accepts the sentence.
func withValidChecksum(line string) string {
	star := -1
	for i, c := range line {
		if c == '*' {
			star = i
			break
		}
	}
	body := line[1:star]
	var cksum byte
	for i := 0; i < len(body); i++ {
		cksum ^= body[i]
	}
	return line[:star+1] + hex(cksum)
}

func hex(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}
