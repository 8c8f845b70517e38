// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package supervisor wires every subsystem (value store, sensor
// fusion, servo, IMU, tack state machine, pilots, the autopilot loop
// itself, and the optional NMEA/gpsd/telemetry/SignalK/panel/RC
// bridges) into one running process and owns their goroutine
// lifecycles under a single context, replacing the original's
// signal-handler-driven tree of independent subprocesses.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/cypilot/internal/autopilot"
	"github.com/relabs-tech/cypilot/internal/config"
	"github.com/relabs-tech/cypilot/internal/fusion"
	"github.com/relabs-tech/cypilot/internal/imu"
	"github.com/relabs-tech/cypilot/internal/nmeabridge"
	"github.com/relabs-tech/cypilot/internal/panel"
	"github.com/relabs-tech/cypilot/internal/pilot"
	"github.com/relabs-tech/cypilot/internal/rc"
	"github.com/relabs-tech/cypilot/internal/servo"
	"github.com/relabs-tech/cypilot/internal/signalk"
	"github.com/relabs-tech/cypilot/internal/store"
	"github.com/relabs-tech/cypilot/internal/tack"
	"github.com/relabs-tech/cypilot/internal/telemetry"
)

// Supervisor owns every constructed subsystem and the goroutines that
// drive them.
type Supervisor struct {
	cfg *config.Config

	Store      *store.Store
	Persist    *store.Persistence
	Server     *store.Server
	Sensors    *fusion.Sensors
	Servo      *servo.Servo
	BoatIMU    *imu.BoatIMU
	Tack       *tack.Tack
	Autopilot  *autopilot.Autopilot
	RC         *rc.Controller
	Panel      *panel.Panel
	SignalK    *signalk.Server
	Telemetry  *telemetry.Mirror

	iterationPeriod time.Duration
}

// New constructs every subsystem named in cfg. Subsystems with no
// configuration (no MQTT broker, no panel address, no SignalK listen
// address) are simply left nil; Run skips them.
func New(cfg *config.Config) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg, iterationPeriod: iterationPeriod(cfg.IMURate)}

	s.Store = store.New()

	if cfg.StorePersistPath != "" {
		s.Persist = store.NewPersistence(s.Store, cfg.StorePersistPath)
		if err := s.Persist.Load(); err != nil {
			log.Printf("supervisor: persisted store load: %v", err)
		}
	}
	s.Server = store.NewServer(s.Store, cfg.StorePort)

	s.Sensors = fusion.NewSensors(s.Store, cfg.SourcePriorityPath)

	s.Servo = servo.New(s.Store, s.Sensors.Rudder, servo.ProbeSerial(cfg.ServoSerialPort, uint(cfg.ServoBaudRate)))

	device, err := s.openIMUDevice()
	if err != nil {
		return nil, err
	}
	s.BoatIMU = imu.NewBoatIMU(s.Store, device, cfg.DeviationTablePath)

	s.Tack = tack.New(s.Store)

	pilots := map[string]autopilot.Pilot{}
	simple := pilot.NewSimplePilot(s.Store)
	pilots["simple"] = simple

	s.Autopilot = autopilot.New(s.Store, s.BoatIMU, s.Sensors, s.Servo, s.Tack, pilots, "simple")

	s.RC = rc.New(s.Store, rc.None{})

	if cfg.PanelI2CAddr != 0 {
		p, err := s.openPanel()
		if err != nil {
			log.Printf("supervisor: panel init failed, continuing without it: %v", err)
		} else {
			s.Panel = p
		}
	}

	if cfg.SignalKURL != "" {
		s.SignalK = signalk.New(s.Store, time.Duration(cfg.SignalKInterval)*time.Millisecond)
	}

	if cfg.MQTTBroker != "" {
		mirror, err := telemetry.New(s.Store, cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopicPrefix,
			time.Duration(cfg.MQTTPublishInterval)*time.Millisecond)
		if err != nil {
			log.Printf("supervisor: telemetry connect failed, continuing without it: %v", err)
		} else {
			s.Telemetry = mirror
		}
	}

	return s, nil
}

func iterationPeriod(rateHz int) time.Duration {
	if rateHz <= 0 {
		rateHz = 10
	}
	return time.Second / time.Duration(rateHz)
}

func (s *Supervisor) openIMUDevice() (imu.Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("supervisor: periph host init: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("supervisor: open i2c bus: %w", err)
	}
	return imu.NewI2CDevice(bus), nil
}

func (s *Supervisor) openPanel() (*panel.Panel, error) {
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("supervisor: open i2c bus for panel: %w", err)
	}
	return panel.New(s.Store, bus, s.cfg.PanelI2CAddr)
}

// Run starts every constructed subsystem and blocks until ctx is
// cancelled, then waits for each goroutine to unwind.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	if s.Persist != nil {
		wg.Add(1)
		go func() { defer wg.Done(); s.Persist.Run(ctx) }()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Server.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("supervisor: store server: %v", err)
		}
	}()

	if s.cfg.GPSSerialPort != "" {
		s.runReconnecting(ctx, &wg, "gps-nmea", func() error {
			return nmeabridge.New(s.Sensors, s.cfg.GPSSerialPort).Run(ctx, s.cfg.GPSSerialPort, s.cfg.GPSBaudRate)
		})
	}
	if s.cfg.NMEASerialPort != "" {
		s.runReconnecting(ctx, &wg, "nmea", func() error {
			return nmeabridge.New(s.Sensors, s.cfg.NMEASerialPort).Run(ctx, s.cfg.NMEASerialPort, s.cfg.NMEABaudRate)
		})
	}
	if s.cfg.GPSDAddr != "" {
		s.runReconnecting(ctx, &wg, "gpsd", func() error {
			return nmeabridge.NewGPSD(s.Sensors, s.cfg.GPSDAddr).Run(ctx)
		})
	}

	if s.Telemetry != nil {
		wg.Add(1)
		go func() { defer wg.Done(); s.Telemetry.Run(ctx) }()
	}

	if s.SignalK != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mux := http.NewServeMux()
			mux.HandleFunc("/signalk/v1/stream", s.SignalK.HandleWS)
			srv := &http.Server{Addr: s.cfg.SignalKURL, Handler: mux}
			go func() { <-ctx.Done(); srv.Close() }()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("supervisor: signalk server: %v", err)
			}
		}()
	}

	if s.Panel != nil {
		wg.Add(1)
		go func() { defer wg.Done(); s.Panel.Run(stop) }()
	}

	wg.Add(1)
	go func() { defer wg.Done(); s.runAutopilotLoop(ctx) }()

	<-ctx.Done()
	wg.Wait()
	s.Autopilot.Close()
	return ctx.Err()
}

// runReconnecting starts fn in its own goroutine, redialing after
// backoffDelay whenever it returns a non-context error, mirroring the
// original's per-producer restart-on-disconnect behavior.
func (s *Supervisor) runReconnecting(ctx context.Context, wg *sync.WaitGroup, name string, fn func() error) {
	const backoffDelay = 3 * time.Second
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if err := fn(); err != nil && ctx.Err() == nil {
				log.Printf("supervisor: %s: %v, reconnecting in %s", name, err, backoffDelay)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffDelay):
			}
		}
	}()
}

// runAutopilotLoop ticks the autopilot iteration and RC poll at the
// IMU's configured rate until ctx is cancelled.
func (s *Supervisor) runAutopilotLoop(ctx context.Context) {
	ticker := time.NewTicker(s.iterationPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RC.Poll()
			if err := s.Autopilot.Iteration(); err != nil {
				log.Printf("supervisor: autopilot iteration: %v", err)
			}
		}
	}
}
