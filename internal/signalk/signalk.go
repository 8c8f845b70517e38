// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package signalk exposes a SignalK delta-protocol websocket endpoint
// so chartplotters and instrument displays can read cypilot's state
// and issue PUT requests to change it (heading command, enable),
// the same role the original fills with a custom NMEA/MQTT bridge, but
// speaking the protocol the wider marine-electronics ecosystem expects.
package signalk

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/cypilot/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// path maps one SignalK delta path to the store value name that backs
// it, in both directions.
type path struct {
	signalk string
	store   string
}

// paths is the subset of the SignalK vessel tree cypilot understands.
// Extending coverage only means appending a row here.
var paths = []path{
	{"navigation.position.latitude", "gps.lat"},
	{"navigation.position.longitude", "gps.lon"},
	{"navigation.speedOverGround", "gps.speed"},
	{"navigation.courseOverGroundTrue", "gps.track"},
	{"navigation.headingMagnetic", "imu.heading"},
	{"environment.wind.angleApparent", "ap.wind_angle_smoothed"},
	{"environment.wind.speedApparent", "ap.wind_speed_smoothed"},
	{"environment.wind.angleTrueGround", "ap.true_wind_angle"},
	{"steering.rudderAngle", "rudder.angle"},
	{"steering.autopilot.state", "ap.enabled"},
	{"steering.autopilot.target.headingMagnetic", "ap.heading_command"},
}

func storeNameFor(signalkPath string) (string, bool) {
	for _, p := range paths {
		if p.signalk == signalkPath {
			return p.store, true
		}
	}
	return "", false
}

// delta is the SignalK wire format for a batch of value updates.
type delta struct {
	Context string   `json:"context"`
	Updates []update `json:"updates"`
}

type update struct {
	Source    source   `json:"source"`
	Timestamp string   `json:"timestamp"`
	Values    []value  `json:"values"`
}

type source struct {
	Label string `json:"label"`
}

type value struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// putRequest is an inbound SignalK PUT, the protocol's way of asking
// to change a value.
type putRequest struct {
	RequestID string `json:"requestId"`
	Context   string `json:"context"`
	Put       struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	} `json:"put"`
}

type putResponse struct {
	RequestID string `json:"requestId"`
	State     string `json:"state"`
	StatusCode int    `json:"statusCode"`
}

// Server serves the SignalK websocket endpoint backed by st.
type Server struct {
	st           *store.Store
	publishEvery time.Duration
}

// New returns a Server that snapshots st onto every connected client
// every publishEvery.
func New(st *store.Store, publishEvery time.Duration) *Server {
	return &Server{st: st, publishEvery: publishEvery}
}

// HandleWS upgrades r to a websocket and runs the delta push loop and
// PUT read loop for the connection's lifetime.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("signalk: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, done)
}

// writePump pushes one delta snapshot per tick until readPump signals
// the connection is gone.
func (s *Server) writePump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.publishEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				log.Printf("signalk: write error: %v", err)
				return
			}
		}
	}
}

// snapshot builds one delta covering every path whose backing store
// value is currently registered.
func (s *Server) snapshot() delta {
	var values []value
	for _, p := range paths {
		v := s.st.Lookup(p.store)
		if v == nil {
			continue
		}
		got := v.Get()
		if got == nil || got == false {
			continue
		}
		values = append(values, value{Path: p.signalk, Value: got})
	}
	return delta{
		Context: "vessels.self",
		Updates: []update{{
			Source:    source{Label: "cypilot"},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Values:    values,
		}},
	}
}

// readPump applies inbound PUT requests until the connection closes.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		var req putRequest
		if err := conn.ReadJSON(&req); err != nil {
			log.Printf("signalk: read error: %v", err)
			return
		}
		s.handlePut(conn, req)
	}
}

func (s *Server) handlePut(conn *websocket.Conn, req putRequest) {
	name, ok := storeNameFor(req.Put.Path)
	if !ok {
		s.respond(conn, req.RequestID, http.StatusNotFound)
		return
	}
	v := s.st.Lookup(name)
	if v == nil {
		s.respond(conn, req.RequestID, http.StatusNotFound)
		return
	}
	v.Set(req.Put.Value)
	s.respond(conn, req.RequestID, http.StatusOK)
}

func (s *Server) respond(conn *websocket.Conn, requestID string, status int) {
	state := "COMPLETED"
	if status != http.StatusOK {
		state = "FAILED"
	}
	if err := conn.WriteJSON(putResponse{RequestID: requestID, State: state, StatusCode: status}); err != nil {
		log.Printf("signalk: response write error: %v", err)
	}
}
