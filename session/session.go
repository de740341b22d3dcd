// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package session defines the narrow boundary between the connection
// state machine and the actual wire protocol. The state machine only
// ever opens sessions, sends text, and consumes the event stream — it
// treats every payload as an opaque string to be pattern-matched, so
// the protocol behind a Session can change without touching the fleet
// logic.
package session

import "context"

// EventType discriminates the events a live session emits.
type EventType int

const (
	// Established fires once when the transport-level session is up
	// and the identity announcement has been sent.
	Established EventType = iota

	// InboundText carries a text line from the server in Event.Text.
	InboundText

	// Kicked carries the server's kick reason in Event.Text. A
	// SessionEnd follows once the server closes the transport.
	Kicked

	// TransportError carries a read-side transport failure in
	// Event.Err. A SessionEnd follows.
	TransportError

	// SessionEnd is the final event before the event channel closes.
	SessionEnd
)

// String returns the event type name for logging.
func (t EventType) String() string {
	switch t {
	case Established:
		return "established"
	case InboundText:
		return "inbound_text"
	case Kicked:
		return "kicked"
	case TransportError:
		return "transport_error"
	case SessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}

// Event is one occurrence on a live session.
type Event struct {
	Type EventType

	// Text holds the payload for InboundText and the reason for
	// Kicked.
	Text string

	// Err holds the failure for TransportError.
	Err error
}

// Session is one live connection for one identity. Sessions are owned
// exclusively by their connection runner: the runner reads Events
// until the channel closes, and Close is safe to call at any time and
// more than once.
type Session interface {
	// SendText transmits a text command to the server.
	SendText(ctx context.Context, text string) error

	// Events returns the session's event stream. The channel closes
	// after SessionEnd is delivered.
	Events() <-chan Event

	// Close tears down the transport. The event stream drains and
	// closes shortly after.
	Close() error
}

// Dialer opens sessions. The fleet holds a single Dialer configured
// with the server address; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, identityName string) (Session, error)
}
