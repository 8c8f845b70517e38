// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package supervisor

import (
	"testing"
	"time"
)

func TestIterationPeriodDefaultsTo10Hz(t *testing.T) {
	if got := iterationPeriod(0); got != 100*time.Millisecond {
		t.Fatalf("iterationPeriod(0) = %v, want 100ms", got)
	}
	if got := iterationPeriod(-5); got != 100*time.Millisecond {
		t.Fatalf("iterationPeriod(-5) = %v, want 100ms", got)
	}
}

func TestIterationPeriodMatchesConfiguredRate(t *testing.T) {
	if got := iterationPeriod(20); got != 50*time.Millisecond {
		t.Fatalf("iterationPeriod(20) = %v, want 50ms", got)
	}
	if got := iterationPeriod(10); got != 100*time.Millisecond {
		t.Fatalf("iterationPeriod(10) = %v, want 100ms", got)
	}
}
