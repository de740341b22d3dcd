// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package admission paces connection attempts across the whole fleet.
//
// Every connection runner — whether launching for the first time or
// reconnecting — must obtain clearance from the single shared
// Controller before dialing. The controller enforces a minimum spacing
// between any two clearances, and that spacing grows multiplicatively
// when the server shows signs of throttling. Without this gate, a
// fleet of independently-backing-off clients still arrives at the
// server as a burst and looks like an attack.
package admission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stampede-project/stampede/lib/clock"
)

// Signal is the strength of an observed throttling signal.
type Signal int

const (
	// SignalSoft is circumstantial evidence: an abrupt transport
	// reset. Grows the spacing by 1.5x.
	SignalSoft Signal = iota

	// SignalHard is explicit evidence: server text naming rate
	// limits or rejection. Grows the spacing by 2x.
	SignalHard
)

// String returns the signal name for logging.
func (s Signal) String() string {
	switch s {
	case SignalSoft:
		return "soft"
	case SignalHard:
		return "hard"
	default:
		return "unknown"
	}
}

// growth factors per signal strength.
const (
	softGrowthFactor = 1.5
	hardGrowthFactor = 2.0
)

// Config holds the Controller's tunables.
type Config struct {
	// InitialDelay is the starting minimum spacing between
	// clearances. Zero leaves attempts unpaced until the first
	// throttle signal.
	InitialDelay time.Duration

	// Ceiling bounds the spacing regardless of how many throttle
	// signals arrive. Required, must be >= InitialDelay.
	Ceiling time.Duration

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock

	// Logger is used for throttle adaptation warnings. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Controller is the process-wide connection admission gate. One
// instance is shared by all connection runners; all state is behind a
// single mutex so concurrent clearance requests observe a consistent,
// monotonically-applied delay.
type Controller struct {
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	delay     time.Duration
	ceiling   time.Duration
	lastGrant time.Time
}

// New creates a Controller from the given config.
func New(cfg Config) *Controller {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ceiling := cfg.Ceiling
	if ceiling < cfg.InitialDelay {
		ceiling = cfg.InitialDelay
	}
	return &Controller{
		clock:   clk,
		logger:  logger,
		delay:   cfg.InitialDelay,
		ceiling: ceiling,
	}
}

// AwaitClearance blocks until at least the current inter-attempt delay
// has elapsed since the last clearance granted to anyone, then records
// the grant and returns. Returns the context's error if it is
// cancelled while waiting.
//
// The wait is re-evaluated in a loop: the delay may have grown (a
// throttle signal arrived) or another waiter may have taken the slot
// while this caller slept.
func (c *Controller) AwaitClearance(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := c.clock.Now()
		var wait time.Duration
		if !c.lastGrant.IsZero() {
			wait = c.delay - now.Sub(c.lastGrant)
		}
		if wait <= 0 {
			c.lastGrant = now
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(wait):
		}
	}
}

// ReportThrottleSignal grows the inter-attempt delay in response to an
// observed throttling signal: 1.5x for soft signals, 2x for hard ones,
// clamped to the ceiling. Safe under concurrent calls; the delay never
// decreases.
func (c *Controller) ReportThrottleSignal(signal Signal) {
	factor := softGrowthFactor
	if signal == SignalHard {
		factor = hardGrowthFactor
	}

	c.mu.Lock()
	previous := c.delay
	if c.delay <= 0 {
		// An unpaced controller starts pacing at one second; a
		// multiplicative factor cannot lift zero.
		c.delay = time.Second
	} else {
		c.delay = time.Duration(float64(c.delay) * factor)
	}
	if c.delay > c.ceiling {
		c.delay = c.ceiling
	}
	current := c.delay
	c.mu.Unlock()

	c.logger.Warn("throttle signal, slowing fleet admission",
		"signal", signal,
		"previous_delay", previous,
		"current_delay", current,
		"ceiling", c.ceiling,
	)
}

// CurrentDelay returns the current inter-attempt spacing. Used by the
// supervisor's status report and by tests.
func (c *Controller) CurrentDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}
