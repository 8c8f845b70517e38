// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cypilot_config.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
# comment
SERVO_SERIAL_PORT=/dev/ttyUSB0
SERVO_BAUD_RATE=19200
DEVIATION_TABLE_PATH=/etc/cypilot/deviation.json
SOURCE_PRIORITY_PATH=/etc/cypilot/sensors.conf
GPSD_ADDR=localhost:2947
IMU_RATE=20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServoBaudRate != 19200 {
		t.Errorf("ServoBaudRate = %d, want 19200 (overridden)", cfg.ServoBaudRate)
	}
	if cfg.GPSBaudRate != 115200 {
		t.Errorf("GPSBaudRate = %d, want default 115200", cfg.GPSBaudRate)
	}
	if cfg.GPSDAddr != "localhost:2947" {
		t.Errorf("GPSDAddr = %q, want localhost:2947", cfg.GPSDAddr)
	}
	if cfg.IMURate != 20 {
		t.Errorf("IMURate = %d, want 20", cfg.IMURate)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "BOGUS_KEY=1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject an unknown config key")
	}
}

func TestLoadRejectsInvalidIMURate(t *testing.T) {
	path := writeConfig(t, `
SERVO_SERIAL_PORT=/dev/ttyUSB0
SERVO_BAUD_RATE=19200
DEVIATION_TABLE_PATH=/etc/cypilot/deviation.json
SOURCE_PRIORITY_PATH=/etc/cypilot/sensors.conf
IMU_RATE=15
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject IMU_RATE values other than 10 or 20")
	}
}

func TestValidateRequiresServoAndPaths(t *testing.T) {
	path := writeConfig(t, "STORE_PORT=23322\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail validate() when SERVO_SERIAL_PORT is missing")
	}
}

func TestInitGlobalOnlyAppliesOnce(t *testing.T) {
	first := writeConfig(t, `
SERVO_SERIAL_PORT=/dev/ttyUSB0
SERVO_BAUD_RATE=19200
DEVIATION_TABLE_PATH=/etc/cypilot/deviation.json
SOURCE_PRIORITY_PATH=/etc/cypilot/sensors.conf
`)
	if err := InitGlobal(first); err != nil {
		t.Fatalf("InitGlobal: %v", err)
	}
	if Get() == nil {
		t.Fatal("Get() should return the initialized config")
	}

	second := writeConfig(t, "BOGUS_KEY=1\n")
	if err := InitGlobal(second); err != nil {
		t.Fatalf("second InitGlobal call should be a no-op, got error: %v", err)
	}
	if Get().ServoSerialPort != "/dev/ttyUSB0" {
		t.Fatalf("InitGlobal should not re-run; ServoSerialPort = %q", Get().ServoSerialPort)
	}
}
