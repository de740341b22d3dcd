// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleet runs the connection fleet: one runner per identity,
// each owning a connect/authenticate/reconnect state machine, and a
// supervisor that launches runners through the shared admission gate
// and reports fleet-wide state.
package fleet

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Identity is one fleet member.
type Identity struct {
	// Name is the login name presented to the server.
	Name string

	// Index is the position in the fleet, for logs and sharding.
	Index int
}

// Identities builds the fleet roster: count identities named
// prefix+index starting at start.
func Identities(prefix string, start, count int) []Identity {
	roster := make([]Identity, 0, count)
	for i := 0; i < count; i++ {
		index := start + i
		roster = append(roster, Identity{
			Name:  fmt.Sprintf("%s%d", prefix, index),
			Index: index,
		})
	}
	return roster
}

// secretDomainKey is the BLAKE3 key for per-identity secret
// derivation. A fixed constant — changing it changes every derived
// secret, orphaning accounts registered under the old value. The
// bytes are the ASCII domain name, zero-padded to 32 bytes, so the
// key is inspectable in hex dumps without losing any cryptographic
// property.
var secretDomainKey = [32]byte{
	's', 't', 'a', 'm', 'p', 'e', 'd', 'e', '.', 's', 'e', 'c', 'r', 'e', 't', '.',
	'd', 'e', 'r', 'i', 'v', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DeriveSecret computes a per-identity secret from the fleet's shared
// secret: a keyed BLAKE3 hash over shared||0x00||name, hex encoded.
// The separator keeps (shared="ab", name="c") and (shared="a",
// name="bc") distinct. Identity names never contain NUL.
func DeriveSecret(shared []byte, identityName string) string {
	hasher, err := blake3.NewKeyed(secretDomainKey[:])
	if err != nil {
		panic("fleet: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(shared)
	hasher.Write([]byte{0})
	hasher.Write([]byte(identityName))
	var digest [32]byte
	hasher.Sum(digest[:0])
	return hex.EncodeToString(digest[:])
}
