// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion arbitrates between competing producers of the same
// measurement (gps, wind, rudder, apb, sow): each named sensor accepts
// data only from the source holding the lowest-priority-number slot,
// falls back to "none" after an 8-second silence, and only switches
// devices at the same priority when the previous device goes quiet.
package fusion

import (
	"encoding/json"
	"log"
	"os"
)

// DefaultSourcePriority favors low-latency/high-trust sources: lower
// numbers win. Persisted to cypilot_sensors.conf so an installer can
// reorder sources (e.g. to prefer "tcp" NMEA over onboard "serial").
var DefaultSourcePriority = map[string]int{
	"gpsd": 1, "servo": 1, "ble": 1,
	"serial": 2, "tcp": 3, "signalk": 4, "none": 5,
}

type sourcePriorityFile struct {
	Priority map[string]int `json:"priority"`
}

// LoadSourcePriority reads path's {"priority": {...}} table, writing
// DefaultSourcePriority to path if it is missing or unreadable.
func LoadSourcePriority(path string) map[string]int {
	data, err := os.ReadFile(path)
	if err == nil {
		var f sourcePriorityFile
		if err := json.Unmarshal(data, &f); err == nil && len(f.Priority) > 0 {
			return f.Priority
		}
	}
	log.Printf("fusion: failed to read sensor source file %s, writing defaults", path)
	body, _ := json.MarshalIndent(sourcePriorityFile{Priority: DefaultSourcePriority}, "", "    ")
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		log.Printf("fusion: failed to write default sensor source file %s: %v", path, err)
	}
	return DefaultSourcePriority
}
