// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("swordfish")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "swordfish" {
		t.Errorf("String() = %q, want %q", got, "swordfish")
	}

	for i, b := range source {
		if b != 0 {
			t.Errorf("source[%d] = %d, want 0 (source must be zeroed)", i, b)
		}
	}
}

func TestNewFromBytesEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	buffer, err := NewFromBytes([]byte("x"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestAccessAfterClosePanics(t *testing.T) {
	buffer, err := NewFromBytes([]byte("x"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes() on a closed buffer did not panic")
		}
	}()
	buffer.Bytes()
}

func TestFromFile(t *testing.T) {
	t.Run("trims whitespace", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		if err := os.WriteFile(path, []byte("  hunter2\n"), 0600); err != nil {
			t.Fatalf("writing file: %v", err)
		}

		buffer, err := FromFile(path)
		if err != nil {
			t.Fatalf("FromFile: %v", err)
		}
		defer buffer.Close()

		if got := buffer.String(); got != "hunter2" {
			t.Errorf("String() = %q, want %q", got, "hunter2")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
			t.Fatalf("writing file: %v", err)
		}
		if _, err := FromFile(path); err == nil {
			t.Fatal("expected error for whitespace-only file")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := FromFile(filepath.Join(t.TempDir(), "absent")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}
