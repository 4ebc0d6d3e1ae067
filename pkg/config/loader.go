// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/scout/pkg/secrets"
)

var (
	// ErrMissingConfig is returned when config.yaml does not exist.
	ErrMissingConfig = errors.New("config: config.yaml not found (run 'scout -g' to create it)")

	// ErrMissingSalt is returned when salt.bin does not exist. Without
	// the salt no encrypted field can ever be recovered.
	ErrMissingSalt = errors.New("config: salt.bin not found (run 'scout -g' to create it)")

	// ErrMissingPassword is returned when Load or Generate is called
	// with an empty master password.
	ErrMissingPassword = errors.New("config: master password is required")
)

// Loader reads and decrypts the configuration from fixed paths.
type Loader struct {
	ConfigPath string
	SaltPath   string

	validate *validator.Validate
}

// NewLoader returns a Loader bound to the default ~/.scout paths.
func NewLoader() (*Loader, error) {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		return nil, fmt.Errorf("config: resolve config path: %w", err)
	}
	saltPath, err := DefaultSaltPath()
	if err != nil {
		return nil, fmt.Errorf("config: resolve salt path: %w", err)
	}
	return NewLoaderAt(cfgPath, saltPath), nil
}

// NewLoaderAt returns a Loader bound to explicit paths.
func NewLoaderAt(configPath, saltPath string) *Loader {
	return &Loader{
		ConfigPath: configPath,
		SaltPath:   saltPath,
		validate:   validator.New(),
	}
}

// Salt reads the key-derivation salt.
func (l *Loader) Salt() ([]byte, error) {
	salt, err := os.ReadFile(l.SaltPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMissingSalt
	}
	if err != nil {
		return nil, fmt.Errorf("config: read salt: %w", err)
	}
	if len(salt) == 0 {
		return nil, ErrMissingSalt
	}
	return salt, nil
}

// Exists reports whether both config.yaml and salt.bin are present.
func (l *Loader) Exists() bool {
	if _, err := os.Stat(l.ConfigPath); err != nil {
		return false
	}
	_, err := os.Stat(l.SaltPath)
	return err == nil
}

// Load reads config.yaml, decrypts the secret fields with the master
// password, and validates the result.
//
// A wrong password surfaces as secrets.ErrInvalidToken from the first
// encrypted field.
func (l *Loader) Load(password string) (*Config, error) {
	if password == "" {
		return nil, ErrMissingPassword
	}
	salt, err := l.Salt()
	if err != nil {
		return nil, err
	}
	key, err := secrets.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.ConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMissingConfig
	}
	if err != nil {
		return nil, fmt.Errorf("config: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse config: %w", err)
	}

	if err := decryptFields(&cfg, cipher); err != nil {
		return nil, err
	}

	if err := l.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

// decryptFields replaces the stored Fernet tokens with plaintext.
// Empty fields stay empty so optional integrations can be left out.
func decryptFields(cfg *Config, cipher *secrets.Cipher) error {
	fields := []struct {
		name string
		p    *string
	}{
		{"github.token", &cfg.GitHub.Token},
		{"influxdb.token", &cfg.InfluxDB.Token},
		{"smtp.password", &cfg.SMTP.Password},
	}
	for _, f := range fields {
		if *f.p == "" {
			continue
		}
		plain, err := cipher.Decrypt(*f.p)
		if err != nil {
			return fmt.Errorf("config: decrypt %s: %w", f.name, err)
		}
		*f.p = plain
	}
	return nil
}

// encryptFields is the inverse of decryptFields, used when writing a
// generated config to disk.
func encryptFields(cfg *Config, cipher *secrets.Cipher) error {
	fields := []struct {
		name string
		p    *string
	}{
		{"github.token", &cfg.GitHub.Token},
		{"influxdb.token", &cfg.InfluxDB.Token},
		{"smtp.password", &cfg.SMTP.Password},
	}
	for _, f := range fields {
		if *f.p == "" {
			continue
		}
		tok, err := cipher.Encrypt(*f.p)
		if err != nil {
			return fmt.Errorf("config: encrypt %s: %w", f.name, err)
		}
		*f.p = tok
	}
	return nil
}
