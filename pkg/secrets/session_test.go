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
	"time"
)

func newTestSession(t *testing.T) (*SessionManager, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewSessionManager(NewMemoryKeyring())
	mgr.now = func() time.Time { return now }
	return mgr, &now
}

func TestSessionCreateAndCheck(t *testing.T) {
	mgr, _ := newTestSession(t)
	if err := mgr.Create("hunter2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	pw, err := mgr.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if pw != "hunter2" {
		t.Errorf("Check = %q, want stored password", pw)
	}
	if got := mgr.Remaining(); got != SessionTTL {
		t.Errorf("Remaining = %v, want %v", got, SessionTTL)
	}
}

func TestSessionExpiry(t *testing.T) {
	mgr, now := newTestSession(t)
	created := *now
	if err := mgr.Create("hunter2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	*now = created.Add(29 * time.Minute)
	if _, err := mgr.Check(); err != nil {
		t.Fatalf("Check at 29m failed: %v", err)
	}

	*now = created.Add(31 * time.Minute)
	if _, err := mgr.Check(); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Check after TTL: got %v, want ErrSessionExpired", err)
	}
	// Expiry clears the entries, so the next check sees nothing at all.
	if _, err := mgr.Check(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Check after expiry cleanup: got %v, want ErrNotFound", err)
	}
	if got := mgr.Remaining(); got != 0 {
		t.Errorf("Remaining after expiry = %v, want 0", got)
	}
}

func TestSessionRemainingCountsDown(t *testing.T) {
	mgr, now := newTestSession(t)
	if err := mgr.Create("hunter2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	*now = now.Add(10 * time.Minute)
	if got := mgr.Remaining(); got != 20*time.Minute {
		t.Errorf("Remaining = %v, want 20m", got)
	}
}

func TestSessionClear(t *testing.T) {
	mgr, _ := newTestSession(t)
	if err := mgr.Create("hunter2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := mgr.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := mgr.Check(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Check after Clear: got %v, want ErrNotFound", err)
	}
	// Clearing an already-empty session is fine.
	if err := mgr.Clear(); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
}

func TestSessionCheckNoSession(t *testing.T) {
	mgr, _ := newTestSession(t)
	if _, err := mgr.Check(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Check with no session: got %v, want ErrNotFound", err)
	}
}

func TestSessionCorruptTimestampTreatedAsExpired(t *testing.T) {
	ring := NewMemoryKeyring()
	mgr := NewSessionManager(ring)
	if err := mgr.Create("hunter2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := ring.Set(SessionService, "session_timestamp", "{broken"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := mgr.Check(); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("corrupt timestamp: got %v, want ErrSessionExpired", err)
	}
}

func TestSessionNaiveTimestampIsUTC(t *testing.T) {
	ring := NewMemoryKeyring()
	mgr := NewSessionManager(ring)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return now }

	if err := ring.Set(SessionService, "master_password", "hunter2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// A zone-less stamp written five minutes ago.
	stamp := `{"timestamp": "2026-03-01T11:55:00"}`
	if err := ring.Set(SessionService, "session_timestamp", stamp); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	pw, err := mgr.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if pw != "hunter2" {
		t.Errorf("Check = %q, want %q", pw, "hunter2")
	}
	if got := mgr.Remaining(); got != 25*time.Minute {
		t.Errorf("Remaining = %v, want 25m", got)
	}
}
