// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The fleet's behavior is almost entirely timer-driven: admission
// pacing between connection attempts, exponential reconnect backoff,
// throttle cooldowns, login retry delays, idle-behavior tickers, and
// the supervisor's status interval. Running those against real time
// makes tests slow and flaky, so every component takes a Clock and
// tests drive a FakeClock deterministically with Advance.
package clock
