// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package secrets

import (
	"errors"
	"sync"

	keyring "github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Keyring.Get when no entry exists for the
// given service/user pair.
var ErrNotFound = errors.New("secrets: keyring entry not found")

// Keyring abstracts the OS credential store so session logic can be
// tested without touching the real keychain.
type Keyring interface {
	Set(service, user, value string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// SystemKeyring stores entries in the operating system keychain
// (Keychain on macOS, Secret Service on Linux, Credential Manager on
// Windows).
type SystemKeyring struct{}

func (SystemKeyring) Set(service, user, value string) error {
	return keyring.Set(service, user, value)
}

func (SystemKeyring) Get(service, user string) (string, error) {
	v, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (SystemKeyring) Delete(service, user string) error {
	err := keyring.Delete(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// MemoryKeyring is an in-process Keyring for tests and for platforms
// without a usable credential store.
type MemoryKeyring struct {
	mu      sync.Mutex
	entries map[[2]string]string
}

func NewMemoryKeyring() *MemoryKeyring {
	return &MemoryKeyring{entries: make(map[[2]string]string)}
}

func (m *MemoryKeyring) Set(service, user, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[[2]string{service, user}] = value
	return nil
}

func (m *MemoryKeyring) Get(service, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[[2]string{service, user}]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKeyring) Delete(service, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, [2]string{service, user})
	return nil
}
