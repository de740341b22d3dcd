// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package backoff computes per-identity reconnection delays:
// exponential growth with a ceiling, plus bounded random jitter to
// desynchronize reconnection storms when many identities lose their
// sessions at once.
//
// Each connection runner owns one Policy. This is deliberately
// separate from the fleet-wide admission spacing — backoff answers
// "when does THIS identity try again", admission answers "how close
// together may ANY two attempts land".
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy generates reconnection delays for one identity. Not safe for
// concurrent use — each runner owns its Policy exclusively.
type Policy struct {
	base    time.Duration
	ceiling time.Duration
	growth  float64

	// jitter is the magnitude of the random perturbation as a
	// fraction of base. Each delay gets a uniform offset in
	// [-base*jitter, +base*jitter].
	jitter float64

	attempts int
	rng      *rand.Rand
}

// New creates a Policy. Out-of-range parameters are clamped to safe
// defaults: base 1s, ceiling 5m, growth 2.0, jitter 0.1. rng may be
// nil, in which case a time-seeded source is used; tests pass a seeded
// source for determinism.
func New(base, ceiling time.Duration, growth, jitter float64, rng *rand.Rand) *Policy {
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = 5 * time.Minute
	}
	if growth <= 1 {
		growth = 2.0
	}
	if jitter < 0 || jitter > 1 {
		jitter = 0.1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Policy{
		base:    base,
		ceiling: ceiling,
		growth:  growth,
		jitter:  jitter,
		rng:     rng,
	}
}

// Next returns the delay before the next reconnection attempt and
// advances the attempt counter. The un-jittered value is
// min(base * growth^attempts, ceiling); jitter is applied after the
// clamp and the result never goes negative.
func (p *Policy) Next() time.Duration {
	delay := p.delayFor(p.attempts)
	p.attempts++

	if p.jitter > 0 {
		span := float64(p.base) * p.jitter
		offset := (p.rng.Float64()*2 - 1) * span
		delay += time.Duration(offset)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Attempts returns the number of Next calls since the last Reset.
func (p *Policy) Attempts() int { return p.attempts }

// Reset returns the policy to attempt zero. Called when the identity
// reaches a stable Active session — a good session forgives prior
// instability.
func (p *Policy) Reset() { p.attempts = 0 }

// delayFor computes the un-jittered delay for a given attempt number.
func (p *Policy) delayFor(attempt int) time.Duration {
	scaled := float64(p.base) * math.Pow(p.growth, float64(attempt))
	if scaled >= float64(p.ceiling) || math.IsInf(scaled, 1) {
		return p.ceiling
	}
	return time.Duration(scaled)
}
