// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

// State is a runner's position in its connection lifecycle. Exactly
// one live session exists per runner, and only in the Authenticating
// and Active states.
type State int

const (
	// StateIdle means the runner has not started or has finished.
	StateIdle State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateAuthenticating means the transport is up and credentials
	// are being presented.
	StateAuthenticating

	// StateActive means credentials have been sent and the session
	// is doing its work. Entry is optimistic: authentication results
	// arrive asynchronously and are corrected in place.
	StateActive

	// StateDisconnected means the session ended and the runner is
	// deciding what to do next.
	StateDisconnected

	// StateReconnecting means the runner is waiting out its backoff
	// delay before the next attempt.
	StateReconnecting

	// StateFailed is terminal: the reconnection budget is exhausted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
