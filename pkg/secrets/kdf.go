// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package secrets handles key derivation, field encryption, and the
// keyring-backed master password session for Scout.
//
// # Key Material
//
// A master password and a per-installation random salt are stretched
// into a Fernet key with PBKDF2. The derived key is deterministic for
// a given (password, salt) pair, so config files encrypted on one run
// decrypt on the next as long as the salt file survives.
//
// # Security Considerations
//
//   - The salt is not secret, but losing it makes every encrypted
//     field unrecoverable. It is written once with 0600 permissions.
//   - The master password itself is only ever held in memory (or in
//     the OS keyring for the session window), never on disk.
package secrets

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations is the PBKDF2 iteration count. Changing it breaks
	// decryption of every existing config file.
	kdfIterations = 100_000

	// SaltSize is the size in bytes of the random per-installation salt.
	SaltSize = 16
)

var (
	// ErrEmptyPassword is returned when key derivation is attempted
	// with an empty master password.
	ErrEmptyPassword = errors.New("secrets: master password is empty")

	// ErrEmptySalt is returned when key derivation is attempted with
	// an empty salt.
	ErrEmptySalt = errors.New("secrets: salt is empty")
)

// DeriveKey stretches a master password and salt into a URL-safe
// base64 encoded 32-byte key suitable for Fernet encryption.
func DeriveKey(password string, salt []byte) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(salt) == 0 {
		return "", ErrEmptySalt
	}
	raw := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	return base64.URLEncoding.EncodeToString(raw), nil
}
