// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package secrets

import (
	"errors"
	"testing"
)

func newTestCipher(t *testing.T, password string) *Cipher {
	t.Helper()
	key, err := DeriveKey(password, []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t, "hunter2")
	token, err := c.Encrypt("ghp_secrettoken")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if token == "ghp_secrettoken" {
		t.Fatal("ciphertext equals plaintext")
	}
	got, err := c.Decrypt(token)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "ghp_secrettoken" {
		t.Errorf("Decrypt = %q, want original plaintext", got)
	}
}

func TestCipherWrongKeyFails(t *testing.T) {
	c1 := newTestCipher(t, "hunter2")
	c2 := newTestCipher(t, "different-password")

	token, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := c2.Decrypt(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong key: got %v, want ErrInvalidToken", err)
	}
}

func TestCipherRejectsGarbageToken(t *testing.T) {
	c := newTestCipher(t, "hunter2")
	if _, err := c.Decrypt("not a fernet token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: got %v, want ErrInvalidToken", err)
	}
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	if _, err := NewCipher("too short"); err == nil {
		t.Error("NewCipher accepted an invalid key")
	}
}
