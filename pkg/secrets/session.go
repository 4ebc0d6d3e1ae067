// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// SessionService is the keyring service name under which Scout
	// stores its session entries.
	SessionService = "scout_session"

	userPassword  = "master_password"
	userTimestamp = "session_timestamp"

	// SessionTTL is how long a cached master password stays valid.
	SessionTTL = 30 * time.Minute
)

// ErrSessionExpired is returned by Check when a session existed but
// its timestamp is past the TTL. The stale entries are already cleared
// by the time the error is returned.
var ErrSessionExpired = errors.New("secrets: session expired")

// sessionStamp is the JSON payload stored alongside the password.
type sessionStamp struct {
	Timestamp string `json:"timestamp"`
}

// SessionManager caches the master password in the OS keyring for a
// fixed window so repeated invocations don't re-prompt.
//
// Two entries are kept under SessionService: the password itself and a
// JSON timestamp recording when the session was created. A session with
// a missing or unparseable timestamp is treated as expired.
type SessionManager struct {
	ring Keyring
	now  func() time.Time
}

// NewSessionManager returns a SessionManager backed by ring. A nil
// ring uses the system keychain.
func NewSessionManager(ring Keyring) *SessionManager {
	if ring == nil {
		ring = SystemKeyring{}
	}
	return &SessionManager{ring: ring, now: time.Now}
}

// Create stores the master password and a fresh timestamp, starting a
// new session window.
func (s *SessionManager) Create(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	stamp, err := json.Marshal(sessionStamp{Timestamp: s.now().UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("secrets: marshal session stamp: %w", err)
	}
	if err := s.ring.Set(SessionService, userPassword, password); err != nil {
		return fmt.Errorf("secrets: store session password: %w", err)
	}
	if err := s.ring.Set(SessionService, userTimestamp, string(stamp)); err != nil {
		return fmt.Errorf("secrets: store session timestamp: %w", err)
	}
	return nil
}

// Check returns the cached master password if a fresh session exists.
//
// It returns ErrNotFound when no session exists and ErrSessionExpired
// when one existed but aged out; expired or corrupt sessions are
// cleared as a side effect so the next Check starts clean.
func (s *SessionManager) Check() (string, error) {
	password, err := s.ring.Get(SessionService, userPassword)
	if err != nil {
		return "", err
	}
	created, err := s.createdAt()
	if err != nil {
		_ = s.Clear()
		return "", ErrSessionExpired
	}
	if s.now().UTC().Sub(created) >= SessionTTL {
		_ = s.Clear()
		return "", ErrSessionExpired
	}
	return password, nil
}

// Remaining reports how much of the session window is left. It returns
// zero when no fresh session exists.
func (s *SessionManager) Remaining() time.Duration {
	created, err := s.createdAt()
	if err != nil {
		return 0
	}
	left := SessionTTL - s.now().UTC().Sub(created)
	if left < 0 {
		return 0
	}
	return left
}

// Clear removes both session entries. Missing entries are not errors.
func (s *SessionManager) Clear() error {
	perr := s.ring.Delete(SessionService, userPassword)
	terr := s.ring.Delete(SessionService, userTimestamp)
	if perr != nil {
		return fmt.Errorf("secrets: clear session password: %w", perr)
	}
	if terr != nil {
		return fmt.Errorf("secrets: clear session timestamp: %w", terr)
	}
	return nil
}

// createdAt reads and parses the stored session timestamp. Timestamps
// without a zone are treated as UTC.
func (s *SessionManager) createdAt() (time.Time, error) {
	raw, err := s.ring.Get(SessionService, userTimestamp)
	if err != nil {
		return time.Time{}, err
	}
	var stamp sessionStamp
	if err := json.Unmarshal([]byte(raw), &stamp); err != nil {
		return time.Time{}, fmt.Errorf("secrets: parse session stamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, stamp.Timestamp)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05", stamp.Timestamp, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("secrets: parse session timestamp: %w", err)
		}
	}
	return t.UTC(), nil
}
