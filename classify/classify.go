// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package classify pattern-matches the free-text signals a server
// sends over a session: authentication results, throttling complaints,
// and rate-limit kick reasons. Servers report these as human-readable
// chat lines rather than structured data, so matching is heuristic by
// necessity. False negatives are acceptable — a missed throttle signal
// just degrades the admission controller to fixed-interval pacing.
//
// Keeping the vocabulary here, behind a small API, lets it grow
// without touching the connection state machine.
package classify

import (
	"errors"
	"io"
	"strings"
	"syscall"
)

// AuthVerdict is the authentication outcome read from an inbound line.
type AuthVerdict int

const (
	// AuthNone means the line says nothing about authentication.
	AuthNone AuthVerdict = iota

	// AuthSuccess means the line confirms a completed login.
	AuthSuccess

	// AuthFailure means the line reports a rejected login.
	AuthFailure
)

// loginTokens mark a line as being about authentication at all. "log"
// deliberately also matches "login" and "logged in".
var loginTokens = []string{"log", "auth", "password", "register"}

// successTokens combined with a login token confirm authentication.
var successTokens = []string{"success", "welcome back", "authenticated"}

// failureTokens combined with a login token report a failed login.
var failureTokens = []string{
	"wrong password",
	"incorrect password",
	"invalid password",
	"fail",
	"denied",
}

// throttlePhrases are the server's rate-limiting vocabulary. Matched
// against inbound lines and kick reasons alike.
var throttlePhrases = []string{
	"rate limit",
	"ratelimit",
	"rate-limit",
	"too fast",
	"too quickly",
	"too many",
	"try again",
	"slow down",
	"throttl",
	"connecting too",
	"wait before",
}

// Auth classifies an inbound text line as an authentication result. A
// line must contain both a login token and a success or failure token
// to count; anything else is AuthNone. Failure wins over success when
// both match ("login failed successfully" is a failure).
func Auth(text string) AuthVerdict {
	line := strings.ToLower(text)

	if !containsAny(line, loginTokens) {
		return AuthNone
	}
	if containsAny(line, failureTokens) {
		return AuthFailure
	}
	if containsAny(line, successTokens) {
		return AuthSuccess
	}
	return AuthNone
}

// Throttle reports whether a text line or kick reason carries
// rate-limiting vocabulary.
func Throttle(text string) bool {
	return containsAny(strings.ToLower(text), throttlePhrases)
}

// AbruptReset reports whether a transport error looks like the server
// dropping the connection at the TCP level — the soft throttle signal.
// Matches ECONNRESET, EPIPE, and unexpected EOF, plus their textual
// forms for errors that arrive already flattened to strings.
func AbruptReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "connection reset by peer") ||
		strings.Contains(message, "broken pipe")
}

func containsAny(line string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(line, token) {
			return true
		}
	}
	return false
}
