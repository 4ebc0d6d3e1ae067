// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads, validates, and generates Scout's encrypted
// YAML configuration.
//
// # Layout
//
// All state lives under ~/.scout/:
//
//	config.yaml  - settings, with secret fields stored as Fernet tokens
//	salt.bin     - 16 random bytes used for key derivation
//	logs/        - rotating log files
//
// # Encrypted Fields
//
// github.token, influxdb.token, and smtp.password are encrypted at
// rest. Load decrypts them in place; everything downstream sees
// plaintext and must never write the struct back to disk.
package config

import (
	"os"
	"path/filepath"
)

// DirName is the per-user state directory under $HOME.
const DirName = ".scout"

// GitHub identifies the account and repositories to track.
type GitHub struct {
	Username string   `yaml:"username" validate:"required"`
	Token    string   `yaml:"token" validate:"required"`
	Repos    []string `yaml:"repos"`
}

// PyPI lists the packages to track on pypi.org.
type PyPI struct {
	Packages []string `yaml:"packages"`
}

// InfluxDB locates the bucket that receives exported metrics.
type InfluxDB struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// Prometheus locates the Pushgateway for gauge exports.
type Prometheus struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job"`
}

// SMTP carries mail settings for issue alerts. Alerts are optional;
// an empty server disables them.
type SMTP struct {
	Server     string   `yaml:"server"`
	Port       int      `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from" validate:"omitempty,email"`
	Recipients []string `yaml:"recipients" validate:"dive,email"`
}

// Config is the full decrypted configuration.
type Config struct {
	GitHub     GitHub     `yaml:"github" validate:"required"`
	PyPI       PyPI       `yaml:"pypi"`
	InfluxDB   InfluxDB   `yaml:"influxdb"`
	Prometheus Prometheus `yaml:"prometheus"`
	SMTP       SMTP       `yaml:"smtp"`
}

// HasInflux reports whether InfluxDB export is configured.
func (c *Config) HasInflux() bool {
	return c.InfluxDB.URL != "" && c.InfluxDB.Token != ""
}

// HasPrometheus reports whether Pushgateway export is configured.
func (c *Config) HasPrometheus() bool {
	return c.Prometheus.PushgatewayURL != ""
}

// HasSMTP reports whether issue alerts can be sent.
func (c *Config) HasSMTP() bool {
	return c.SMTP.Server != "" && len(c.SMTP.Recipients) > 0
}

// Dir returns the Scout state directory, creating nothing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// DefaultConfigPath returns ~/.scout/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultSaltPath returns ~/.scout/salt.bin.
func DefaultSaltPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "salt.bin"), nil
}
