// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package secrets

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, err := DeriveKey("hunter2", salt)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	k2, err := DeriveKey("hunter2", salt)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if k1 != k2 {
		t.Errorf("same inputs produced different keys: %q vs %q", k1, k2)
	}

	raw, err := base64.URLEncoding.DecodeString(k1)
	if err != nil {
		t.Fatalf("key is not URL-safe base64: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("decoded key length = %d, want 32", len(raw))
	}
}

func TestDeriveKeyVariesWithInputs(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1, _ := DeriveKey("hunter2", salt)
	k2, _ := DeriveKey("hunter3", salt)
	if k1 == k2 {
		t.Error("different passwords produced the same key")
	}
	k3, _ := DeriveKey("hunter2", []byte("fedcba9876543210"))
	if k1 == k3 {
		t.Error("different salts produced the same key")
	}
}

func TestDeriveKeyRejectsEmptyInputs(t *testing.T) {
	if _, err := DeriveKey("", []byte("salt")); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("empty password: got %v, want ErrEmptyPassword", err)
	}
	if _, err := DeriveKey("pw", nil); !errors.Is(err, ErrEmptySalt) {
		t.Errorf("empty salt: got %v, want ErrEmptySalt", err)
	}
}
