// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/stampede-project/stampede/lib/codec"
)

// Compile-time interface checks.
var (
	_ Dialer  = (*TCPDialer)(nil)
	_ Session = (*tcpSession)(nil)
)

// envelope is the wire frame: a CBOR map streamed over the TCP
// connection. Unknown types are ignored for forward compatibility.
type envelope struct {
	// Type is "hello", "text", or "kick".
	Type string `cbor:"type"`

	// Text is the identity name for hello, the payload for text, and
	// the reason for kick.
	Text string `cbor:"text,omitempty"`
}

// TCPDialer opens sessions over plain TCP with streamed CBOR
// envelopes. This is the development and same-LAN transport.
type TCPDialer struct {
	// Address is the server's host:port.
	Address string

	// Timeout bounds TCP connection establishment. Zero means only
	// the context deadline applies.
	Timeout time.Duration

	// Logger is used for session-level debug logging. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Dial opens a TCP connection, announces the identity with a hello
// envelope, and returns the live session. The Established event is the
// first event on the stream.
func (d *TCPDialer) Dial(ctx context.Context, identityName string) (Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("session: dialing %s: %w", d.Address, err)
	}

	s := &tcpSession{
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		events:  make(chan Event, 16),
		logger:  logger.With("identity", identityName, "remote", conn.RemoteAddr().String()),
	}

	if err := s.encode(envelope{Type: "hello", Text: identityName}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: announcing identity: %w", err)
	}

	s.events <- Event{Type: Established}
	go s.readLoop()
	return s, nil
}

// tcpSession is one live TCP connection. The read loop is the only
// sender on the events channel and closes it on exit.
type tcpSession struct {
	conn    net.Conn
	events  chan Event
	logger  *slog.Logger
	writeMu sync.Mutex
	encoder *codec.Encoder

	closeOnce sync.Once
	closeErr  error
}

// SendText transmits a text envelope. Fails once the connection is
// closed.
func (s *tcpSession) SendText(ctx context.Context, text string) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.encode(envelope{Type: "text", Text: text}); err != nil {
		return fmt.Errorf("session: sending text: %w", err)
	}
	return nil
}

func (s *tcpSession) encode(env envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.encoder.Encode(env)
}

// Events returns the session's event stream.
func (s *tcpSession) Events() <-chan Event {
	return s.events
}

// Close tears down the TCP connection. Idempotent. The read loop
// notices the closed socket and finishes the event stream.
func (s *tcpSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// readLoop decodes envelopes until the connection fails or closes,
// emits the corresponding events, and finishes the stream with
// SessionEnd before closing the channel.
func (s *tcpSession) readLoop() {
	defer close(s.events)
	decoder := codec.NewDecoder(s.conn)

	for {
		var env envelope
		if err := decoder.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				// Orderly shutdown from either side.
				s.events <- Event{Type: SessionEnd}
				return
			}
			s.logger.Debug("session read failed", "error", err)
			s.events <- Event{Type: TransportError, Err: err}
			s.events <- Event{Type: SessionEnd}
			return
		}

		switch env.Type {
		case "text":
			s.events <- Event{Type: InboundText, Text: env.Text}
		case "kick":
			s.events <- Event{Type: Kicked, Text: env.Text}
		default:
			// Unknown envelope types are skipped so newer servers
			// can add frames without breaking old fleets.
			s.logger.Debug("ignoring unknown envelope type", "type", env.Type)
		}
	}
}
