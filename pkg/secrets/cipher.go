// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package secrets

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrInvalidToken is returned when a ciphertext fails authentication,
// which almost always means a wrong master password.
var ErrInvalidToken = errors.New("secrets: token verification failed (wrong password?)")

// Cipher encrypts and decrypts individual config fields with a
// Fernet key derived by DeriveKey.
type Cipher struct {
	key *fernet.Key
}

// NewCipher parses an encoded key (as produced by DeriveKey) into a
// ready-to-use Cipher.
func NewCipher(encodedKey string) (*Cipher, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: invalid key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt returns the Fernet token for plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a Fernet token. Tokens never expire;
// freshness is the session manager's concern, not the cipher's.
func (c *Cipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{c.key})
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}
