// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stampede-project/stampede/console"
	"github.com/stampede-project/stampede/lib/clock"
)

// SupervisorConfig configures the fleet supervisor.
type SupervisorConfig struct {
	// Runners is the fleet, one per identity. The supervisor owns
	// their lifecycles.
	Runners []*Runner

	// Gate paces the launch ramp: every runner's first connection
	// attempt obtains clearance before its goroutine starts.
	// Required.
	Gate AdmissionGate

	// StatusInterval is how often fleet-wide state counts are
	// logged. Zero disables the report.
	StatusInterval time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Supervisor launches the fleet through the admission gate, reports
// its aggregate state, and waits for every runner to stop.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger
	clock  clock.Clock
}

// NewSupervisor creates a supervisor over the given runners.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, logger: cfg.Logger, clock: cfg.Clock}
}

// Run launches every runner, pacing launches through the admission
// gate so fleet startup is itself a paced ramp rather than a
// stampede, then blocks until all runners have stopped. Cancelling
// ctx stops the ramp and shuts the fleet down.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("launching fleet", "size", len(s.cfg.Runners))

	done := make(chan struct{})
	var reporter sync.WaitGroup
	if s.cfg.StatusInterval > 0 {
		reporter.Add(1)
		go func() {
			defer reporter.Done()
			s.reportLoop(ctx, done)
		}()
	}

	var wg sync.WaitGroup
	launched := 0
	for _, runner := range s.cfg.Runners {
		if err := s.cfg.Gate.AwaitClearance(ctx); err != nil {
			s.logger.Info("launch ramp interrupted",
				"launched", launched, "fleet", len(s.cfg.Runners))
			break
		}
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.Run(ctx, true)
		}(runner)
		launched++
	}
	if launched == len(s.cfg.Runners) {
		s.logger.Info("fleet fully launched", "size", launched)
	}

	wg.Wait()
	close(done)
	reporter.Wait()
	s.logStatus(ctx, "fleet stopped")
}

// Counts returns how many runners are in each state.
func (s *Supervisor) Counts() map[State]int {
	counts := make(map[State]int)
	for _, runner := range s.cfg.Runners {
		counts[runner.State()]++
	}
	return counts
}

func (s *Supervisor) reportLoop(ctx context.Context, done <-chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.logStatus(ctx, "fleet status")
		}
	}
}

func (s *Supervisor) logStatus(ctx context.Context, message string) {
	counts := s.Counts()
	attrs := []any{
		"active", counts[StateActive],
		"authenticating", counts[StateAuthenticating],
		"connecting", counts[StateConnecting],
		"reconnecting", counts[StateReconnecting],
		"disconnected", counts[StateDisconnected],
		"failed", counts[StateFailed],
		"idle", counts[StateIdle],
	}
	if pacer, ok := s.cfg.Gate.(interface{ CurrentDelay() time.Duration }); ok {
		attrs = append(attrs, "admission_delay", pacer.CurrentDelay())
	}
	s.logger.Log(ctx, console.LevelStatus, message, attrs...)
}
