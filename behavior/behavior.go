// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package behavior drives what an identity does while its session is
// active: scripted chatter and movement on a timer. The connection
// state machine only sees the Behaviors boundary — it starts the
// behaviors once on entering Active and stops them once on leaving, so
// no behavior timer can ever fire against a dead session handle.
package behavior

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/stampede-project/stampede/lib/clock"
	"github.com/stampede-project/stampede/session"
)

// Behaviors produces one Active behavior run per session.
type Behaviors interface {
	// Start begins idle behaviors against the session. The returned
	// Active must be stopped exactly once when the session leaves
	// the active state.
	Start(sess session.Session) Active
}

// Active is a running set of idle behaviors scoped to one session
// episode.
type Active interface {
	// Stop cancels all pending behavior timers. When Stop returns, no
	// further sends will be issued against the session.
	Stop()
}

// Noop returns a Behaviors that does nothing. Used when no script is
// configured and by fleet tests.
func Noop() Behaviors { return noop{} }

type noop struct{}

func (noop) Start(session.Session) Active { return noopActive{} }

type noopActive struct{}

func (noopActive) Stop() {}

// Scripted runs a chat/move script on fixed intervals, picking lines
// at random to keep a fleet of identical clients from chanting in
// unison.
type Scripted struct {
	script *Script
	clock  clock.Clock
	logger *slog.Logger
	rng    *rand.Rand
	rngMu  sync.Mutex
}

// NewScripted creates a Scripted behavior driver. clk may be nil for
// the real clock; rng may be nil for a time-seeded source.
func NewScripted(script *Script, clk clock.Clock, logger *slog.Logger, rng *rand.Rand) *Scripted {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scripted{script: script, clock: clk, logger: logger, rng: rng}
}

// Start launches the behavior loop for one session episode.
func (b *Scripted) Start(sess session.Session) Active {
	run := &scriptedRun{
		owner: b,
		sess:  sess,
		done:  make(chan struct{}),
	}
	run.wg.Add(1)
	go run.loop()
	return run
}

// pick returns a random element of lines. Callers guarantee lines is
// non-empty.
func (b *Scripted) pick(lines []string) string {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return lines[b.rng.Intn(len(lines))]
}

// scriptedRun is one Active episode of scripted behaviors.
type scriptedRun struct {
	owner *Scripted
	sess  session.Session
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// Stop cancels the loop and waits for it to exit, guaranteeing no send
// is in flight or pending when it returns. Idempotent.
func (r *scriptedRun) Stop() {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *scriptedRun) loop() {
	defer r.wg.Done()

	script := r.owner.script
	var chatTick, moveTick <-chan time.Time

	if len(script.Chat) > 0 && script.ChatInterval > 0 {
		ticker := r.owner.clock.NewTicker(script.ChatInterval)
		defer ticker.Stop()
		chatTick = ticker.C
	}
	if len(script.Moves) > 0 && script.MoveInterval > 0 {
		ticker := r.owner.clock.NewTicker(script.MoveInterval)
		defer ticker.Stop()
		moveTick = ticker.C
	}
	if chatTick == nil && moveTick == nil {
		<-r.done
		return
	}

	for {
		select {
		case <-r.done:
			return
		case <-chatTick:
			r.send(r.owner.pick(script.Chat))
		case <-moveTick:
			r.send(r.owner.pick(script.Moves))
		}
	}
}

// send issues one behavior line. Send failures are expected around
// disconnects and only logged at debug.
func (r *scriptedRun) send(line string) {
	if err := r.sess.SendText(context.Background(), line); err != nil {
		r.owner.logger.Debug("idle behavior send failed", "error", err)
	}
}
