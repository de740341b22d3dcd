// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stampede-project/stampede/lib/codec"
	"github.com/stampede-project/stampede/lib/testutil"
)

// testServer is a single-connection CBOR envelope server for exercising
// the TCP session from the client side.
type testServer struct {
	listener net.Listener

	// conns delivers each accepted connection's decoder-side state.
	conns chan *serverConn
}

type serverConn struct {
	conn    net.Conn
	decoder *codec.Decoder
	encoder *codec.Encoder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &testServer{
		listener: listener,
		conns:    make(chan *serverConn, 4),
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			server.conns <- &serverConn{
				conn:    conn,
				decoder: codec.NewDecoder(conn),
				encoder: codec.NewEncoder(conn),
			}
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return server
}

func (s *testServer) address() string { return s.listener.Addr().String() }

func (c *serverConn) readEnvelope(t *testing.T) envelope {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env envelope
	if err := c.decoder.Decode(&env); err != nil {
		t.Fatalf("server decode: %v", err)
	}
	return env
}

func (c *serverConn) send(t *testing.T, env envelope) {
	t.Helper()
	if err := c.encoder.Encode(env); err != nil {
		t.Fatalf("server encode: %v", err)
	}
}

func dialTest(t *testing.T, server *testServer, identity string) (Session, *serverConn) {
	t.Helper()
	dialer := &TCPDialer{Address: server.address(), Timeout: 5 * time.Second}
	sess, err := dialer.Dial(context.Background(), identity)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	conn := testutil.RequireReceive(t, server.conns, 5*time.Second, "accepted connection")
	return sess, conn
}

func TestDialAnnouncesIdentityAndEstablishes(t *testing.T) {
	server := newTestServer(t)
	sess, conn := dialTest(t, server, "stampede-7")

	hello := conn.readEnvelope(t)
	if hello.Type != "hello" || hello.Text != "stampede-7" {
		t.Errorf("hello envelope = %+v, want hello/stampede-7", hello)
	}

	event := testutil.RequireReceive(t, sess.Events(), 5*time.Second, "established event")
	if event.Type != Established {
		t.Errorf("first event = %v, want Established", event.Type)
	}
}

func TestInboundTextAndKickEvents(t *testing.T) {
	server := newTestServer(t)
	sess, conn := dialTest(t, server, "stampede-0")
	conn.readEnvelope(t) // hello

	testutil.RequireReceive(t, sess.Events(), 5*time.Second, "established")

	conn.send(t, envelope{Type: "text", Text: "Welcome!"})
	event := testutil.RequireReceive(t, sess.Events(), 5*time.Second, "inbound text")
	if event.Type != InboundText || event.Text != "Welcome!" {
		t.Errorf("event = %+v, want InboundText Welcome!", event)
	}

	conn.send(t, envelope{Type: "kick", Text: "try again later"})
	event = testutil.RequireReceive(t, sess.Events(), 5*time.Second, "kick")
	if event.Type != Kicked || event.Text != "try again later" {
		t.Errorf("event = %+v, want Kicked try again later", event)
	}

	// Server closes after the kick; the stream must finish with
	// SessionEnd and then close.
	conn.conn.Close()
	event = testutil.RequireReceive(t, sess.Events(), 5*time.Second, "session end")
	if event.Type != SessionEnd {
		t.Errorf("event = %v, want SessionEnd", event.Type)
	}
	if _, open := <-sess.Events(); open {
		t.Error("event channel still open after SessionEnd")
	}
}

func TestSendTextReachesServer(t *testing.T) {
	server := newTestServer(t)
	sess, conn := dialTest(t, server, "stampede-0")
	conn.readEnvelope(t) // hello

	if err := sess.SendText(context.Background(), "/login hunter2"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	env := conn.readEnvelope(t)
	if env.Type != "text" || env.Text != "/login hunter2" {
		t.Errorf("server received %+v, want text //login hunter2", env)
	}
}

func TestUnknownEnvelopeTypesAreSkipped(t *testing.T) {
	server := newTestServer(t)
	sess, conn := dialTest(t, server, "stampede-0")
	conn.readEnvelope(t) // hello
	testutil.RequireReceive(t, sess.Events(), 5*time.Second, "established")

	conn.send(t, envelope{Type: "presence", Text: "whatever"})
	conn.send(t, envelope{Type: "text", Text: "after"})

	event := testutil.RequireReceive(t, sess.Events(), 5*time.Second, "text after unknown envelope")
	if event.Type != InboundText || event.Text != "after" {
		t.Errorf("event = %+v, want the text envelope following the unknown one", event)
	}
}

func TestCloseIsIdempotentAndEndsStream(t *testing.T) {
	server := newTestServer(t)
	sess, conn := dialTest(t, server, "stampede-0")
	conn.readEnvelope(t) // hello
	testutil.RequireReceive(t, sess.Events(), 5*time.Second, "established")

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sess.Close() // second close must not panic

	for event := range sess.Events() {
		if event.Type == SessionEnd {
			return
		}
	}
	t.Fatal("stream closed without a SessionEnd event")
}

func TestDialFailureReturnsError(t *testing.T) {
	// Grab a port and close it so the dial is refused.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()

	dialer := &TCPDialer{Address: address, Timeout: time.Second}
	if _, err := dialer.Dial(context.Background(), "stampede-0"); err == nil {
		t.Fatal("Dial to a closed port succeeded")
	}
}
