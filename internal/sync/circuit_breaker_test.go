// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

var errSimulated = errors.New("simulated API failure")

// runCalls executes n calls, failing the last failures of them. The trip
// check runs on a failure, so the final call must fail.
func runCalls(b *circuitBreaker[string], n, failures int) {
	for i := 0; i < n; i++ {
		_, _ = b.execute(func() (string, error) {
			if i >= n-failures {
				return "", errSimulated
			}
			return "ok", nil
		})
	}
}

func TestCircuitBreaker_Thresholds(t *testing.T) {
	tests := []struct {
		name     string
		calls    int
		failures int
		want     gobreaker.State
	}{
		{"opens at 70% over 10 requests", 10, 7, gobreaker.StateOpen},
		{"stays closed at 50%", 10, 5, gobreaker.StateClosed},
		{"needs 10 requests", 5, 5, gobreaker.StateClosed},
		{"opens at exactly 60%", 10, 6, gobreaker.StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newCircuitBreaker[string]("test-"+tt.name, zerolog.Nop())
			runCalls(b, tt.calls, tt.failures)
			if got := b.state(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpenRejectsWithoutRunning(t *testing.T) {
	b := newCircuitBreaker[string]("test-open", zerolog.Nop())
	runCalls(b, 10, 10)

	ran := false
	_, err := b.execute(func() (string, error) {
		ran = true
		return "should not execute", nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if ran {
		t.Error("open breaker must not run the call")
	}
	if !isBreakerRejection(err) || isBreakerRejection(errSimulated) {
		t.Error("isBreakerRejection misclassifies errors")
	}
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	b := newCircuitBreaker[string]("test-cancel", zerolog.Nop())
	for i := 0; i < 12; i++ {
		_, _ = b.execute(func() (string, error) { return "", context.Canceled })
	}
	if b.state() != gobreaker.StateClosed {
		t.Errorf("state = %v, cancelled calls must not open the breaker", b.state())
	}
}

func TestStateConversions(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		f     float64
		s     string
	}{
		{gobreaker.StateClosed, 0, "closed"},
		{gobreaker.StateHalfOpen, 1, "half-open"},
		{gobreaker.StateOpen, 2, "open"},
		{gobreaker.State(99), -1, "unknown"},
	}
	for _, tt := range tests {
		if got := stateToFloat(tt.state); got != tt.f {
			t.Errorf("stateToFloat(%v) = %v, want %v", tt.state, got, tt.f)
		}
		if got := stateToString(tt.state); got != tt.s {
			t.Errorf("stateToString(%v) = %q, want %q", tt.state, got, tt.s)
		}
	}
}
