// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT telemetry bridge
	MQTTBroker          string
	MQTTClientID        string
	MQTTTopicPrefix     string
	MQTTPublishInterval int // milliseconds

	// Value store
	StoreHost            string
	StorePort            int
	StorePersistPath     string
	StorePersistInterval int // seconds

	// Servo controller link
	ServoSerialPort string
	ServoBaudRate   int

	// GPS / NMEA0183 talker
	GPSSerialPort string
	GPSBaudRate   int
	GPSDAddr      string // "host:port" of a running gpsd, empty disables it

	// Secondary NMEA0183 talker (wind, depth, APB autopilot remote)
	NMEASerialPort string
	NMEABaudRate   int

	// BNO08x orientation sensor
	IMUI2CBus  int
	IMUI2CAddr uint16
	IMURate    int // Hz, 10 or 20

	// Compass heading deviation table and sensor-priority file
	DeviationTablePath string
	SourcePriorityPath string

	// Helm panel (buttons + display)
	PanelI2CBus  int
	PanelI2CAddr uint16

	// Wireless remote control receiver
	RCSerialPort string
	RCBaudRate   int

	// SignalK bridge
	SignalKURL      string
	SignalKInterval int // milliseconds

	// Timing
	ConsoleLogInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{
		StoreHost:            "localhost",
		StorePort:            23322,
		StorePersistInterval: 10,
		MQTTTopicPrefix:      "cypilot",
		MQTTPublishInterval:  1000,
		ServoBaudRate:        38400,
		GPSBaudRate:          115200,
		NMEABaudRate:         4800,
		IMURate:              10,
		SignalKInterval:      1000,
		ConsoleLogInterval:   1000,
	}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value
	case "MQTT_PUBLISH_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PUBLISH_INTERVAL %q: %w", value, err)
		}
		c.MQTTPublishInterval = v

	// Value store
	case "STORE_HOST":
		c.StoreHost = value
	case "STORE_PORT":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STORE_PORT %q: %w", value, err)
		}
		c.StorePort = v
	case "STORE_PERSIST_PATH":
		c.StorePersistPath = value
	case "STORE_PERSIST_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STORE_PERSIST_INTERVAL %q: %w", value, err)
		}
		c.StorePersistInterval = v

	// Servo
	case "SERVO_SERIAL_PORT":
		c.ServoSerialPort = value
	case "SERVO_BAUD_RATE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERVO_BAUD_RATE %q: %w", value, err)
		}
		c.ServoBaudRate = v

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = v
	case "GPSD_ADDR":
		c.GPSDAddr = value

	// Secondary NMEA talker
	case "NMEA_SERIAL_PORT":
		c.NMEASerialPort = value
	case "NMEA_BAUD_RATE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NMEA_BAUD_RATE %q: %w", value, err)
		}
		c.NMEABaudRate = v

	// IMU
	case "IMU_I2C_BUS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_BUS %q: %w", value, err)
		}
		c.IMUI2CBus = v
	case "IMU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_ADDR %q: %w", value, err)
		}
		c.IMUI2CAddr = uint16(addr)
	case "IMU_RATE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_RATE %q: %w", value, err)
		}
		if v != 10 && v != 20 {
			return fmt.Errorf("IMU_RATE must be 10 or 20, got %d", v)
		}
		c.IMURate = v
	case "DEVIATION_TABLE_PATH":
		c.DeviationTablePath = value
	case "SOURCE_PRIORITY_PATH":
		c.SourcePriorityPath = value

	// Panel
	case "PANEL_I2C_BUS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PANEL_I2C_BUS %q: %w", value, err)
		}
		c.PanelI2CBus = v
	case "PANEL_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid PANEL_I2C_ADDR %q: %w", value, err)
		}
		c.PanelI2CAddr = uint16(addr)

	// Remote control
	case "RC_SERIAL_PORT":
		c.RCSerialPort = value
	case "RC_BAUD_RATE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RC_BAUD_RATE %q: %w", value, err)
		}
		c.RCBaudRate = v

	// SignalK
	case "SIGNALK_URL":
		c.SignalKURL = value
	case "SIGNALK_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SIGNALK_INTERVAL %q: %w", value, err)
		}
		c.SignalKInterval = v

	// Timing
	case "CONSOLE_LOG_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = v

	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.StorePort == 0 {
		return fmt.Errorf("STORE_PORT is required")
	}
	if c.ServoSerialPort == "" {
		return fmt.Errorf("SERVO_SERIAL_PORT is required")
	}
	if c.ServoBaudRate == 0 {
		return fmt.Errorf("SERVO_BAUD_RATE is required")
	}
	if c.DeviationTablePath == "" {
		return fmt.Errorf("DEVIATION_TABLE_PATH is required")
	}
	if c.SourcePriorityPath == "" {
		return fmt.Errorf("SOURCE_PRIORITY_PATH is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
