// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the fleet's identity secrets.
//
// The store is a flat name→secret mapping backed by a single YAML
// file. It is loaded once at startup and rewritten in full after every
// registration — a simple last-write-wins scheme that is safe because
// different identities never share a key and all rewrites are
// serialized through one mutex. The rewrite is atomic (temp file,
// fsync, rename) so a crash mid-write never leaves a torn file.
//
// When a Sealer is supplied, the file content is age-encrypted at rest
// and the on-disk file holds a single base64 blob instead of YAML.
package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stampede-project/stampede/lib/sealed"
)

// Store is a durable name→secret mapping. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	sealer  *sealed.Sealer
	secrets map[string]string
}

// Load reads the credential file at path, or returns an empty store
// when the file does not exist yet. sealer may be nil for a plaintext
// store.
func Load(path string, sealer *sealed.Sealer) (*Store, error) {
	store := &Store{
		path:    path,
		sealer:  sealer,
		secrets: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}

	if sealer != nil {
		plaintext, err := sealer.Unseal(string(data))
		if err != nil {
			return nil, fmt.Errorf("credstore: unsealing %s: %w", path, err)
		}
		data = plaintext
	}

	if err := yaml.Unmarshal(data, &store.secrets); err != nil {
		return nil, fmt.Errorf("credstore: parsing %s: %w", path, err)
	}
	if store.secrets == nil {
		store.secrets = make(map[string]string)
	}
	return store, nil
}

// Secret returns the stored secret for name, if any.
func (s *Store) Secret(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.secrets[name]
	return value, ok
}

// Len returns the number of stored secrets.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.secrets)
}

// Put records a secret for name and synchronously rewrites the backing
// file. A name that already has a secret is never overwritten — the
// existing secret stays authoritative and Put returns nil.
//
// On a persistence failure the in-memory entry is retained and the
// error returned; the caller logs it and continues, accepting that the
// durable copy may lag until the next successful rewrite.
func (s *Store) Put(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.secrets[name]; exists {
		return nil
	}
	s.secrets[name] = value

	if err := s.rewriteLocked(); err != nil {
		return fmt.Errorf("credstore: persisting %s: %w", s.path, err)
	}
	return nil
}

// rewriteLocked serializes the full mapping and writes it atomically:
// temp file in the same directory, fsync, rename, directory sync.
// Caller must hold s.mu.
func (s *Store) rewriteLocked() error {
	data, err := yaml.Marshal(s.secrets)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if s.sealer != nil {
		ciphertext, err := s.sealer.Seal(data)
		if err != nil {
			return err
		}
		data = []byte(ciphertext + "\n")
	}

	temporaryPath := s.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary credential file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary credential file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary credential file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary credential file: %w", err)
	}

	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming credential file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if directory, err := os.Open(filepath.Dir(s.path)); err == nil {
		directory.Sync()
		directory.Close()
	}

	return nil
}
