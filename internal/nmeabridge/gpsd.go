// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package nmeabridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/relabs-tech/cypilot/internal/fusion"
)

// gpsdSource is the priority-table key gpsd readings report under.
const gpsdSource = "gpsd"

// gpsdWatch is sent immediately after connecting to switch gpsd into
// streaming JSON report mode.
const gpsdWatch = `?WATCH={"enable":true,"json":true};` + "\n"

// gpsdReport is the subset of gpsd's TPV ("Time-Position-Velocity")
// class report cypilot needs; other classes (VERSION, DEVICES, SKY,
// ...) are decoded into the same struct and ignored by Class.
type gpsdReport struct {
	Class  string  `json:"class"`
	Mode   int     `json:"mode"`
	Device string  `json:"device"`
	Track  float64 `json:"track"`
	Speed  float64 `json:"speed"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// GPSD connects to a local gpsd daemon's JSON socket and forwards its
// 3D fixes (mode 3) as "gps" readings, letting a u-blox/gpsd-managed
// receiver compete with any serial NMEA talker under fusion's
// priority arbitration.
type GPSD struct {
	sensors *fusion.Sensors
	addr    string
}

// NewGPSD returns a GPSD bridge that dials addr (typically
// "127.0.0.1:2947").
func NewGPSD(sensors *fusion.Sensors, addr string) *GPSD {
	return &GPSD{sensors: sensors, addr: addr}
}

// Run connects to gpsd and streams fixes until ctx is cancelled or the
// connection drops. Like Bridge.Run, reconnection is the caller's job.
func (g *GPSD) Run(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("nmeabridge: gpsd dial %s: %w", g.addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(gpsdWatch)); err != nil {
		return fmt.Errorf("nmeabridge: gpsd watch: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var report gpsdReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" || report.Mode != 3 {
			continue
		}
		g.sensors.Write("gps", fusion.Reading{
			Device: report.Device,
			Fields: map[string]any{
				"track": report.Track,
				"speed": report.Speed * 1.94384,
				"lat":   report.Lat,
				"lon":   report.Lon,
			},
		}, gpsdSource)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("nmeabridge: gpsd connection closed")
}
