// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/stampede-project/stampede/admission"
	"github.com/stampede-project/stampede/backoff"
	"github.com/stampede-project/stampede/behavior"
	"github.com/stampede-project/stampede/classify"
	"github.com/stampede-project/stampede/console"
	"github.com/stampede-project/stampede/credstore"
	"github.com/stampede-project/stampede/lib/clock"
	"github.com/stampede-project/stampede/session"
)

// AdmissionGate is the consumer side of the shared attempt gate.
// Satisfied by *admission.Controller.
type AdmissionGate interface {
	// AwaitClearance blocks until this caller may attempt a
	// connection, or ctx is done.
	AwaitClearance(ctx context.Context) error

	// ReportThrottleSignal tells the gate the server pushed back.
	ReportThrottleSignal(signal admission.Signal)
}

// RunnerConfig configures one identity's runner.
type RunnerConfig struct {
	Identity Identity

	// Dialer opens sessions to the server.
	Dialer session.Dialer

	// Gate paces connection attempts fleet-wide. Required.
	Gate AdmissionGate

	// Credentials persists registration results. Nil keeps nothing:
	// the runner registers afresh every session.
	Credentials *credstore.Store

	// Secret is the password this identity registers with when the
	// credential store has no entry for it.
	Secret string

	// Behaviors drives in-session activity while Active. Nil means
	// idle sessions.
	Behaviors behavior.Behaviors

	// Backoff schedules reconnection delays. Required. The runner
	// owns it exclusively.
	Backoff *backoff.Policy

	// MaxReconnectAttempts marks the runner failed after this many
	// consecutive reconnections without reaching Active. Zero means
	// retry forever.
	MaxReconnectAttempts int

	// MaxLoginRetries bounds credential resends within one session.
	MaxLoginRetries int

	// LoginRetryDelay is the pause before a credential resend.
	LoginRetryDelay time.Duration

	// ThrottleCooldownMin and ThrottleCooldownMax bound the extra
	// randomized pause taken after the server signals throttling,
	// before regular backoff resumes.
	ThrottleCooldownMin time.Duration
	ThrottleCooldownMax time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Rand seeds cooldown jitter. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Runner owns one identity's connection lifecycle. Each runner holds
// at most one live session at a time; Run drives the state machine
// until ctx is done or the reconnection budget is exhausted.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
	clock  clock.Clock
	rng    *rand.Rand

	mu    sync.Mutex
	state State
}

// NewRunner creates a runner in StateIdle.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Behaviors == nil {
		cfg.Behaviors = behavior.Noop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger.With("identity", cfg.Identity.Name),
		clock:  cfg.Clock,
		rng:    cfg.Rand,
	}
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(next State) {
	r.mu.Lock()
	previous := r.state
	r.state = next
	r.mu.Unlock()
	if previous != next {
		r.logger.Debug("state transition", "from", previous, "to", next)
	}
}

// Run drives the lifecycle until ctx is done or the runner fails
// permanently. If cleared is true the caller already obtained
// admission clearance for the first attempt (the supervisor does this
// when launching), so the first iteration skips the gate.
func (r *Runner) Run(ctx context.Context, cleared bool) {
	defer func() {
		if r.State() != StateFailed {
			r.setState(StateIdle)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if !cleared {
			if err := r.cfg.Gate.AwaitClearance(ctx); err != nil {
				return
			}
		}
		cleared = false

		r.setState(StateConnecting)
		outcome := r.runSession(ctx)
		r.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}

		if outcome.throttled {
			cooldown := r.throttleCooldown()
			r.logger.Warn("server throttling detected, cooling down", "cooldown", cooldown)
			if !r.wait(ctx, cooldown) {
				return
			}
		}

		if r.cfg.MaxReconnectAttempts > 0 && r.cfg.Backoff.Attempts() >= r.cfg.MaxReconnectAttempts {
			r.setState(StateFailed)
			r.logger.Error("reconnection budget exhausted, giving up",
				"attempts", r.cfg.Backoff.Attempts())
			return
		}

		r.setState(StateReconnecting)
		delay := r.cfg.Backoff.Next()
		r.logger.Info("reconnecting after backoff",
			"delay", delay, "attempt", r.cfg.Backoff.Attempts())
		if !r.wait(ctx, delay) {
			return
		}
	}
}

// sessionOutcome is what one session's lifetime tells the reconnect
// loop.
type sessionOutcome struct {
	// throttled is set when the server pushed back during this
	// session (throttle kick, throttle notice, or abrupt transport
	// reset).
	throttled bool
}

func (r *Runner) runSession(ctx context.Context) (outcome sessionOutcome) {
	sess, err := r.cfg.Dialer.Dial(ctx, r.cfg.Identity.Name)
	if err != nil {
		if classify.AbruptReset(err) {
			r.cfg.Gate.ReportThrottleSignal(admission.SignalSoft)
			outcome.throttled = true
		}
		r.logger.Warn("dial failed", "error", err)
		return outcome
	}

	events := sess.Events()
	defer func() {
		sess.Close()
		// The session buffers events; drain until the read loop
		// closes the channel so it never blocks on send.
		for range events {
		}
	}()

	var (
		active    behavior.Active
		confirmed bool
		exhausted bool
		resends   int
		retry     <-chan time.Time
	)
	defer func() {
		if active != nil {
			active.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return outcome

		case <-retry:
			retry = nil
			r.logger.Info("resending login", "resend", resends)
			if err := r.sendCredentials(ctx, sess, false); err != nil {
				r.logger.Warn("credential resend failed", "error", err)
				return outcome
			}

		case event, ok := <-events:
			if !ok {
				return outcome
			}
			switch event.Type {
			case session.Established:
				r.setState(StateAuthenticating)
				registering := !r.hasStoredSecret()
				if err := r.sendCredentials(ctx, sess, registering); err != nil {
					r.logger.Warn("sending credentials failed", "error", err)
					return outcome
				}
				if registering {
					r.storeSecret()
				}
				// Activation is optimistic: the auth result arrives
				// asynchronously as free text and is corrected in
				// place below.
				r.setState(StateActive)
				r.cfg.Backoff.Reset()
				resends = 0
				active = r.cfg.Behaviors.Start(sess)
				r.logger.Info("session active", "registered", registering)

			case session.InboundText:
				if classify.Throttle(event.Text) {
					r.cfg.Gate.ReportThrottleSignal(admission.SignalHard)
					outcome.throttled = true
				}
				switch classify.Auth(event.Text) {
				case classify.AuthSuccess:
					retry = nil
					resends = 0
					exhausted = false
					if !confirmed {
						confirmed = true
						r.logger.Log(ctx, console.LevelSuccess, "authentication confirmed")
					}

				case classify.AuthFailure:
					confirmed = false
					if retry != nil {
						break
					}
					if resends >= r.cfg.MaxLoginRetries {
						// Never force a disconnect over a rejected
						// login: the session stays up,
						// unauthenticated.
						if !exhausted {
							exhausted = true
							r.logger.Warn("login retries exhausted, continuing unauthenticated",
								"resends", resends)
						}
						break
					}
					resends++
					r.logger.Info("authentication rejected, will retry",
						"delay", r.cfg.LoginRetryDelay, "resend", resends)
					retry = r.clock.After(r.cfg.LoginRetryDelay)
				}

			case session.Kicked:
				if classify.Throttle(event.Text) {
					r.cfg.Gate.ReportThrottleSignal(admission.SignalHard)
					outcome.throttled = true
				}
				r.logger.Warn("kicked by server", "reason", event.Text)

			case session.TransportError:
				if classify.AbruptReset(event.Err) {
					r.cfg.Gate.ReportThrottleSignal(admission.SignalSoft)
					outcome.throttled = true
				}
				r.logger.Warn("transport error", "error", event.Err)

			case session.SessionEnd:
				r.logger.Info("session ended")
				return outcome
			}
		}
	}
}

// hasStoredSecret reports whether a registration from an earlier run
// (or session) exists for this identity.
func (r *Runner) hasStoredSecret() bool {
	if r.cfg.Credentials == nil {
		return false
	}
	_, ok := r.cfg.Credentials.Secret(r.cfg.Identity.Name)
	return ok
}

func (r *Runner) sendCredentials(ctx context.Context, sess session.Session, registering bool) error {
	if registering {
		return sess.SendText(ctx, "/register "+r.cfg.Secret)
	}
	secret := r.cfg.Secret
	if r.cfg.Credentials != nil {
		if stored, ok := r.cfg.Credentials.Secret(r.cfg.Identity.Name); ok {
			secret = stored
		}
	}
	return sess.SendText(ctx, "/login "+secret)
}

// storeSecret records the secret sent with a registration command.
// A persistence failure is logged and otherwise ignored: the store
// keeps the entry in memory for this run.
func (r *Runner) storeSecret() {
	if r.cfg.Credentials == nil {
		return
	}
	if err := r.cfg.Credentials.Put(r.cfg.Identity.Name, r.cfg.Secret); err != nil {
		r.logger.Warn("persisting registration failed", "error", err)
	}
}

// throttleCooldown picks a uniform duration in [min, max].
func (r *Runner) throttleCooldown() time.Duration {
	min, max := r.cfg.ThrottleCooldownMin, r.cfg.ThrottleCooldownMax
	if max <= min {
		return min
	}
	return min + time.Duration(r.rng.Int63n(int64(max-min)+1))
}

// wait blocks for d or until ctx is done; reports false on
// cancellation.
func (r *Runner) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(d):
		return true
	}
}
