// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package nmeabridge reads NMEA0183 sentences off a serial port and
// feeds them into internal/fusion as arbitrated sensor readings. GPS
// sentences (RMC/GGA/VTG) are decoded with go-nmea; the autopilot's
// own wind/rudder/apb/sow sentences (MWV/VWR/RSA/APB/VHW/LWY) are not
// meaningfully covered by a generic NMEA library, so they are decoded
// by hand the same way the original bridge does.
package nmeabridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/cypilot/internal/fusion"
)

// source is the priority-table key this bridge reports under; it
// always arrives over a physical serial link.
const source = "serial"

// Bridge decodes NMEA0183 sentences from one serial port and writes
// the readings they carry into sensors, tagged with device so the
// fusion priority arbitration can tell multiple serial talkers apart.
type Bridge struct {
	sensors *fusion.Sensors
	device  string
}

// New returns a Bridge that dispatches into sensors, tagging every
// reading with device (typically the serial port path).
func New(sensors *fusion.Sensors, device string) *Bridge {
	return &Bridge{sensors: sensors, device: device}
}

// Run opens portName at baud and decodes sentences until ctx is done
// or the port returns a read error. It never reconnects itself; the
// caller (a supervisor goroutine) is expected to call Run again after
// a backoff if the link drops.
func (b *Bridge) Run(ctx context.Context, portName string, baud int) error {
	options := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(options)
	if err != nil {
		return fmt.Errorf("nmeabridge: open %s: %w", portName, err)
	}
	defer port.Close()
	log.Printf("nmeabridge: %s opened at %d baud", portName, baud)

	return b.decode(ctx, port)
}

// decode reads newline-terminated sentences from r and dispatches
// them until ctx is cancelled or the reader errors out.
func (b *Bridge) decode(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if line == "" {
				return err
			}
			// fall through: handle the partial final line, then return err
		}
		b.handle(strings.TrimSpace(line))
		if err != nil {
			return err
		}
	}
}

// handle decodes one sentence and dispatches it to internal/fusion.
func (b *Bridge) handle(line string) {
	if !strings.HasPrefix(line, "$") {
		return
	}

	if reading, name, ok := b.parseHandRolled(line); ok {
		b.sensors.Write(name, reading, source)
		return
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != "A" {
			return
		}
		fields := map[string]any{
			"speed": m.Speed,
			"lat":   m.Latitude,
			"lon":   m.Longitude,
			"track": m.Course,
		}
		b.sensors.Write("gps", fusion.Reading{Device: b.device, Fields: fields}, source)

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == "0" || m.FixQuality == "" {
			return
		}
		b.sensors.Write("gps", fusion.Reading{
			Device: b.device,
			Fields: map[string]any{"lat": m.Latitude, "lon": m.Longitude},
		}, source)

	case nmea.TypeVTG:
		m := sentence.(nmea.VTG)
		b.sensors.Write("gps", fusion.Reading{
			Device: b.device,
			Fields: map[string]any{"speed": m.GroundSpeedKnots, "track": m.TrueTrack},
		}, source)
	}
}

// parseHandRolled decodes the cypilot-specific sentence types go-nmea
// does not usefully cover: wind (MWV/VWR), rudder (RSA), autopilot
// remote (APB), and speed/leeway through water (VHW/LWY). It returns
// ok=false for anything else, letting the go-nmea path have a turn.
func (b *Bridge) parseHandRolled(line string) (fusion.Reading, string, bool) {
	if len(line) < 6 {
		return fusion.Reading{}, "", false
	}
	if !checksumOK(line) {
		return fusion.Reading{}, "", false
	}

	sentenceType := line[3:6]
	switch sentenceType {
	case "VWR":
		return b.parseVWR(line)
	case "MWV":
		return b.parseMWV(line)
	case "RSA":
		return b.parseRSA(line)
	case "APB":
		return b.parseAPB(line)
	case "VHW":
		return b.parseVHW(line)
	case "LWY":
		return b.parseLWY(line)
	}
	return fusion.Reading{}, "", false
}

func (b *Bridge) parseVWR(line string) (fusion.Reading, string, bool) {
	data := strings.Split(line, ",")
	if len(data) < 4 {
		return fusion.Reading{}, "", false
	}
	angle, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	if data[2] == "L" && angle > 0 {
		angle = 360 - angle
	}
	speed, err := strconv.ParseFloat(data[3], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	return fusion.Reading{Device: b.device, Fields: map[string]any{
		"direction": angle, "speed": speed,
	}}, "wind", true
}

func (b *Bridge) parseMWV(line string) (fusion.Reading, string, bool) {
	data := strings.Split(line, ",")
	if len(data) < 5 {
		return fusion.Reading{}, "", false
	}
	direction, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	speed, err := strconv.ParseFloat(data[3], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	switch data[4] {
	case "K":
		speed *= 0.53995
	case "M":
		speed *= 1.94384
	}
	return fusion.Reading{Device: b.device, Fields: map[string]any{
		"direction": direction, "speed": speed,
	}}, "wind", true
}

func (b *Bridge) parseRSA(line string) (fusion.Reading, string, bool) {
	data := strings.Split(line, ",")
	if len(data) < 2 {
		return fusion.Reading{}, "", false
	}
	angle, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	return fusion.Reading{Device: b.device, Fields: map[string]any{"angle": angle}}, "rudder", true
}

func (b *Bridge) parseAPB(line string) (fusion.Reading, string, bool) {
	body := line[7 : len(line)-3]
	data := strings.Split(body, ",")
	if len(data) < 14 {
		return fusion.Reading{}, "", false
	}
	isgp := line[1:3]
	mode := "gps"
	if isgp != "GP" {
		if data[13] == "M" {
			mode = "compass"
		}
	}
	track, err := strconv.ParseFloat(data[12], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	xte, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	if xte > 0.15 {
		xte = 0.15
	}
	if data[3] == "L" {
		xte = -xte
	}
	return fusion.Reading{Device: b.device, Fields: map[string]any{
		"mode": mode, "track": track, "xte": xte, "isgp": isgp,
	}}, "apb", true
}

func (b *Bridge) parseVHW(line string) (fusion.Reading, string, bool) {
	data := strings.Split(line, ",")
	if len(data) < 6 {
		return fusion.Reading{}, "", false
	}
	speed, err := strconv.ParseFloat(data[5], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	return fusion.Reading{Device: b.device, Fields: map[string]any{"speed": speed}}, "sow", true
}

func (b *Bridge) parseLWY(line string) (fusion.Reading, string, bool) {
	data := strings.Split(line, ",")
	if len(data) < 3 || data[1] != "A" {
		return fusion.Reading{}, "", false
	}
	leeway, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return fusion.Reading{}, "", false
	}
	return fusion.Reading{Device: b.device, Fields: map[string]any{"leeway": leeway}}, "sow", true
}

// checksumOK verifies the trailing *hh checksum against the XOR of
// every byte between '$' and '*'.
func checksumOK(line string) bool {
	star := strings.LastIndexByte(line, '*')
	if star < 1 || star+3 > len(line) {
		return false
	}
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return false
	}
	var got byte
	for i := 1; i < star; i++ {
		got ^= line[i]
	}
	return got == byte(want)
}
