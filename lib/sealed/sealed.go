// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for the credential store's
// backing file. It wraps filippo.io/age into the two operations the
// store needs: seal the full mapping before it is written to disk, and
// unseal it at startup.
//
// The age identity (private key) is held in a secret.Buffer — mmap
// memory locked against swap, excluded from core dumps, zeroed on
// close. Ciphertext is base64-encoded so the on-disk file stays a
// single printable blob.
package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/stampede-project/stampede/lib/secret"
)

// Sealer encrypts and decrypts with a single age x25519 identity.
type Sealer struct {
	identity *secret.Buffer
	// recipient is the public half, derived once at open time. Safe
	// to keep as a plain string.
	recipient string
}

// OpenIdentityFile loads an age identity (AGE-SECRET-KEY-1...) from a
// file and returns a Sealer for it. The caller must call Close when
// done.
func OpenIdentityFile(path string) (*Sealer, error) {
	buffer, err := secret.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading identity file: %w", err)
	}

	// Parse at the string boundary to derive the recipient. The heap
	// copy is brief; the mmap buffer is the durable copy.
	identity, err := age.ParseX25519Identity(buffer.String())
	if err != nil {
		buffer.Close()
		return nil, fmt.Errorf("sealed: parsing identity from %s: %w", path, err)
	}

	return &Sealer{
		identity:  buffer,
		recipient: identity.Recipient().String(),
	}, nil
}

// GenerateToFile generates a fresh age identity, writes it to path
// with mode 0600, and returns a Sealer for it. Used by first-run setup
// when the configured identity file does not exist yet.
func GenerateToFile(path string, writeFile func(string, []byte) error) (*Sealer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}

	keyBytes := []byte(identity.String())
	if err := writeFile(path, keyBytes); err != nil {
		secret.Zero(keyBytes)
		return nil, fmt.Errorf("sealed: writing identity file: %w", err)
	}

	buffer, err := secret.NewFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting identity: %w", err)
	}

	return &Sealer{
		identity:  buffer,
		recipient: identity.Recipient().String(),
	}, nil
}

// Recipient returns the public key (age1...) this Sealer encrypts to.
func (s *Sealer) Recipient() string { return s.recipient }

// Seal encrypts plaintext to the Sealer's recipient and returns the
// ciphertext as a base64 string.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	recipient, err := age.ParseX25519Recipient(s.recipient)
	if err != nil {
		return "", fmt.Errorf("sealed: parsing recipient: %w", err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return "", fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("sealed: finalizing encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Unseal decrypts a base64 ciphertext produced by Seal and returns the
// plaintext.
func (s *Sealer) Unseal(ciphertext string) ([]byte, error) {
	identity, err := age.ParseX25519Identity(s.identity.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing identity: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("sealed: decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	return plaintext, nil
}

// Close releases the identity key memory. Idempotent.
func (s *Sealer) Close() error {
	if s.identity != nil {
		return s.identity.Close()
	}
	return nil
}
