// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/relabs-tech/cypilot/internal/values"
)

func newTestConn(t *testing.T) (*Conn, *bufio.Reader) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return newConn(server), bufio.NewReader(client)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	done := make(chan string, 1)
	go func() {
		line, _ := r.ReadString('\n')
		done <- line
	}()
	select {
	case line := <-done:
		return line
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a line")
		return ""
	}
}

func TestRegisterLookupNames(t *testing.T) {
	s := New()
	s.Register(values.NewPlain("ap.heading", 90.0))
	s.Register(values.NewPlain("ap.mode", "compass"))

	if v := s.Lookup("ap.heading"); v == nil || v.Get() != 90.0 {
		t.Fatalf("Lookup(ap.heading) = %v", v)
	}
	if v := s.Lookup("missing"); v != nil {
		t.Fatalf("Lookup(missing) should be nil, got %v", v)
	}

	names := s.Names()
	if len(names) != 2 || names[0] != "ap.heading" || names[1] != "ap.mode" {
		t.Fatalf("Names() = %v, want sorted [ap.heading ap.mode]", names)
	}
}

func TestSetRejectsUnknownAndReadOnly(t *testing.T) {
	s := New()
	s.Register(values.NewSensorValue("gps.lat"))
	s.Register(values.NewProperty("ap.pilot", "simple"))

	if err := s.Set("nope", 1.0); err == nil {
		t.Fatal("Set of unknown value should error")
	}
	if err := s.Set("gps.lat", 1.0); err == nil {
		t.Fatal("Set of read-only value should error")
	}
	if err := s.Set("ap.pilot", "gps"); err != nil {
		t.Fatalf("Set of writable value should succeed, got %v", err)
	}
	if s.Lookup("ap.pilot").Get() != "gps" {
		t.Fatalf("ap.pilot = %v, want gps", s.Lookup("ap.pilot").Get())
	}
}

func TestHandleLineWritesKnownWritableValue(t *testing.T) {
	s := New()
	s.Register(values.NewProperty("ap.pilot", "simple"))
	conn, _ := newTestConn(t)

	s.handleLine(conn, `ap.pilot="gps"`)

	if s.Lookup("ap.pilot").Get() != "gps" {
		t.Fatalf("ap.pilot = %v, want gps", s.Lookup("ap.pilot").Get())
	}
}

func TestHandleLineErrorsOnUnknownValue(t *testing.T) {
	s := New()
	conn, r := newTestConn(t)

	go s.handleLine(conn, "nope=1")

	line := readLine(t, r)
	if line != "error=invalid unknown value: nope\n" {
		t.Fatalf("got %q", line)
	}
}

func TestHandleWatchContinuousFiresImmediately(t *testing.T) {
	s := New()
	s.Register(values.NewPlain("ap.mode", "compass"))
	conn, r := newTestConn(t)

	go s.handleWatch(conn, `{"ap.mode":true}`)

	line := readLine(t, r)
	if line != "ap.mode=\"compass\"\n" {
		t.Fatalf("got %q", line)
	}
	if !conn.hasWatch("ap.mode") {
		t.Fatal("continuous watch should be registered")
	}
}

func TestHandleWatchFalseClearsWatch(t *testing.T) {
	s := New()
	s.Register(values.NewPlain("ap.mode", "compass"))
	conn, r := newTestConn(t)
	go io.Copy(io.Discard, r)

	s.handleWatch(conn, `{"ap.mode":true}`)
	s.handleWatch(conn, `{"ap.mode":false}`)

	if conn.hasWatch("ap.mode") {
		t.Fatal("watch should have been cleared")
	}
}

func TestPeriodicWatchSnapshotsThenDeliversOnChange(t *testing.T) {
	s := New()
	v := values.NewPlain("ap.mode", "compass")
	s.Register(v)
	conn, r := newTestConn(t)

	go s.handleWatch(conn, `{"ap.mode":0.01}`)
	if line := readLine(t, r); line != "ap.mode=\"compass\"\n" {
		t.Fatalf("initial snapshot = %q, want the current payload", line)
	}

	v.Set("gps")
	time.Sleep(20 * time.Millisecond)
	go s.firePendingWatches()

	line := readLine(t, r)
	if line != "ap.mode=\"gps\"\n" {
		t.Fatalf("got %q, want the new payload on the periodic fire", line)
	}
}

func TestContinuousWatchFiresOnEverySubsequentPublish(t *testing.T) {
	s := New()
	v := values.NewPlain("ap.mode", "compass")
	s.Register(v)
	conn, r := newTestConn(t)
	s.addConn(conn)

	go s.handleWatch(conn, `{"ap.mode":true}`)
	readLine(t, r) // initial send on registration

	go v.Set("gps")

	line := readLine(t, r)
	if line != "ap.mode=\"gps\"\n" {
		t.Fatalf("got %q, want the continuous watch to re-fire on the next publish", line)
	}
}

func TestValuesRegisterClaimsOwnershipAndForwardsWrites(t *testing.T) {
	s := New()
	owner, ownerR := newTestConn(t)
	writer, _ := newTestConn(t)

	s.handleLine(owner, `values={"custom.flag":{"writable":true}}`)

	go s.handleLine(writer, `custom.flag=true`)

	line := readLine(t, ownerR)
	if line != "custom.flag=true\n" {
		t.Fatalf("owner should receive the forwarded write verbatim, got %q", line)
	}
	if s.Lookup("custom.flag").Get() != nil {
		t.Fatal("a forwarded write must not be applied until the owner validates and re-sends it")
	}
}

func TestValuesRegisterRejectsAlreadyHeldName(t *testing.T) {
	s := New()
	first, _ := newTestConn(t)
	second, secondR := newTestConn(t)

	s.handleLine(first, `values={"custom.flag":{"writable":true}}`)
	go s.handleLine(second, `values={"custom.flag":{"writable":true}}`)

	line := readLine(t, secondR)
	if line != "error=value already held: custom.flag\n" {
		t.Fatalf("got %q", line)
	}
}

func TestConnEvictionTracksOldest(t *testing.T) {
	s := New()
	a, _ := newTestConn(t)
	time.Sleep(time.Millisecond)
	b, _ := newTestConn(t)

	s.addConn(a)
	s.addConn(b)
	if s.connCount() != 2 {
		t.Fatalf("connCount() = %d, want 2", s.connCount())
	}
	if s.oldestConn() != a {
		t.Fatal("oldestConn() should be the first-opened connection")
	}

	s.removeConn(a)
	if s.connCount() != 1 {
		t.Fatalf("connCount() = %d, want 1", s.connCount())
	}
}
