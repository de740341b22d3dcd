// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestNextIsNonDecreasingUpToCeiling(t *testing.T) {
	policy := New(time.Second, time.Minute, 2.0, 0, nil)

	var previous time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		delay := policy.Next()
		if delay < previous {
			t.Fatalf("attempt %d: delay %v < previous %v", attempt, delay, previous)
		}
		if delay > time.Minute {
			t.Fatalf("attempt %d: delay %v exceeds ceiling", attempt, delay)
		}
		previous = delay
	}

	// Deep into the sequence the delay is pinned at the ceiling.
	if previous != time.Minute {
		t.Errorf("delay after 10 attempts = %v, want ceiling %v", previous, time.Minute)
	}
}

func TestNextGrowsExponentially(t *testing.T) {
	policy := New(time.Second, time.Hour, 2.0, 0, nil)

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, expected := range want {
		if got := policy.Next(); got != expected {
			t.Errorf("Next() #%d = %v, want %v", i, got, expected)
		}
	}
}

func TestResetReturnsToBase(t *testing.T) {
	policy := New(time.Second, time.Minute, 2.0, 0, nil)

	policy.Next()
	policy.Next()
	policy.Next()
	if got := policy.Attempts(); got != 3 {
		t.Fatalf("Attempts = %d, want 3", got)
	}

	policy.Reset()
	if got := policy.Attempts(); got != 0 {
		t.Fatalf("Attempts after Reset = %d, want 0", got)
	}
	if got := policy.Next(); got != time.Second {
		t.Errorf("Next after Reset = %v, want base %v", got, time.Second)
	}
}

func TestJitterStaysBounded(t *testing.T) {
	base := 10 * time.Second
	jitter := 0.2
	policy := New(base, time.Hour, 2.0, jitter, rand.New(rand.NewSource(1)))

	// First attempt: un-jittered value is exactly base, so the result
	// must land within base ± base*jitter.
	span := time.Duration(float64(base) * jitter)
	for i := 0; i < 100; i++ {
		policy.Reset()
		delay := policy.Next()
		if delay < base-span || delay > base+span {
			t.Fatalf("iteration %d: delay %v outside [%v, %v]", i, delay, base-span, base+span)
		}
	}
}

func TestJitterNeverNegative(t *testing.T) {
	// Base so small that negative jitter could underflow zero without
	// the clamp.
	policy := New(time.Nanosecond, time.Minute, 2.0, 1.0, rand.New(rand.NewSource(7)))
	for i := 0; i < 1000; i++ {
		policy.Reset()
		if delay := policy.Next(); delay < 0 {
			t.Fatalf("iteration %d: negative delay %v", i, delay)
		}
	}
}

func TestDefaultsForInvalidParameters(t *testing.T) {
	policy := New(0, 0, 0, -1, nil)
	if policy.base != time.Second {
		t.Errorf("base = %v, want 1s default", policy.base)
	}
	if policy.ceiling != 5*time.Minute {
		t.Errorf("ceiling = %v, want 5m default", policy.ceiling)
	}
	if policy.growth != 2.0 {
		t.Errorf("growth = %v, want 2.0 default", policy.growth)
	}
	if policy.jitter != 0.1 {
		t.Errorf("jitter = %v, want 0.1 default", policy.jitter)
	}
}
