// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import "testing"

func TestIdentities(t *testing.T) {
	roster := Identities("herd-", 100, 3)
	if len(roster) != 3 {
		t.Fatalf("roster size = %d, want 3", len(roster))
	}
	want := []Identity{
		{Name: "herd-100", Index: 100},
		{Name: "herd-101", Index: 101},
		{Name: "herd-102", Index: 102},
	}
	for i, identity := range roster {
		if identity != want[i] {
			t.Errorf("roster[%d] = %+v, want %+v", i, identity, want[i])
		}
	}
}

func TestIdentitiesEmpty(t *testing.T) {
	if roster := Identities("herd-", 0, 0); len(roster) != 0 {
		t.Errorf("roster size = %d, want 0", len(roster))
	}
}

func TestDeriveSecret(t *testing.T) {
	shared := []byte("fleet shared secret")

	first := DeriveSecret(shared, "stampede-0")
	second := DeriveSecret(shared, "stampede-1")

	if first == second {
		t.Error("different identities derived the same secret")
	}
	if first != DeriveSecret(shared, "stampede-0") {
		t.Error("derivation is not deterministic")
	}
	if len(first) != 64 {
		t.Errorf("derived secret length = %d, want 64 hex chars", len(first))
	}
	if first == string(shared) {
		t.Error("derived secret equals the shared secret")
	}

	// The separator keeps shared/name boundaries unambiguous.
	if DeriveSecret([]byte("ab"), "c") == DeriveSecret([]byte("a"), "bc") {
		t.Error("boundary shift produced a colliding derivation")
	}
}
