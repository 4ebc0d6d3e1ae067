// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/scout/pkg/secrets"
)

// EnsureSalt returns the installation salt, generating and persisting
// a fresh one on first run. The salt file is written 0600 and never
// rewritten once present.
func (l *Loader) EnsureSalt() ([]byte, error) {
	salt, err := l.Salt()
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, ErrMissingSalt) {
		return nil, err
	}

	salt = make([]byte, secrets.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("config: generate salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.SaltPath), 0o700); err != nil {
		return nil, fmt.Errorf("config: create state dir: %w", err)
	}
	if err := os.WriteFile(l.SaltPath, salt, 0o600); err != nil {
		return nil, fmt.Errorf("config: write salt: %w", err)
	}
	return salt, nil
}

// Generate interactively fills in missing configuration and writes the
// merged result, with secrets encrypted, to config.yaml.
//
// Existing values are kept as prompt defaults so re-running only asks
// what changed. When every section is already complete the file is
// left untouched.
func (l *Loader) Generate(password string) error {
	if password == "" {
		return ErrMissingPassword
	}
	salt, err := l.EnsureSalt()
	if err != nil {
		return err
	}
	key, err := secrets.DeriveKey(password, salt)
	if err != nil {
		return err
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		return err
	}

	cfg := &Config{}
	if _, statErr := os.Stat(l.ConfigPath); statErr == nil {
		existing, loadErr := l.Load(password)
		if loadErr != nil {
			return fmt.Errorf("config: cannot merge into existing config: %w", loadErr)
		}
		cfg = existing
	}

	force := false
	if isComplete(cfg) {
		if err := huh.NewConfirm().
			Title("Configuration is already complete. Edit it anyway?").
			Value(&force).
			Run(); err != nil {
			return fmt.Errorf("config: prompt: %w", err)
		}
		if !force {
			return nil
		}
	}

	if err := promptAll(cfg, force); err != nil {
		return err
	}

	if err := encryptFields(cfg, cipher); err != nil {
		return err
	}
	return l.write(cfg)
}

// write marshals cfg (secrets already encrypted) to config.yaml with
// owner-only permissions.
func (l *Loader) write(cfg *Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.ConfigPath), 0o700); err != nil {
		return fmt.Errorf("config: create state dir: %w", err)
	}
	if err := os.WriteFile(l.ConfigPath, out, 0o600); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}

// isComplete reports whether every section a prompt could fill is
// already filled in.
func isComplete(cfg *Config) bool {
	return cfg.GitHub.Username != "" && cfg.GitHub.Token != "" &&
		len(cfg.PyPI.Packages) > 0 &&
		cfg.HasInflux() && cfg.HasPrometheus() && cfg.HasSMTP()
}

// promptGroups builds the form groups for the sections that need
// input, absent sections only by default. force includes every
// section, pre-filled with its current values, so an edit pass can
// change settings that are already set.
func promptGroups(cfg *Config, force bool, repos, packages *string) []*huh.Group {
	var groups []*huh.Group
	if force || cfg.GitHub.Username == "" || cfg.GitHub.Token == "" {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("GitHub username").
				Value(&cfg.GitHub.Username),
			huh.NewInput().
				Title("GitHub personal access token").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.GitHub.Token),
			huh.NewInput().
				Title("Repositories to track (comma separated, blank for all)").
				Value(repos),
		))
	}
	if force || len(cfg.PyPI.Packages) == 0 {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("PyPI packages to track (comma separated)").
				Value(packages),
		))
	}
	if force || cfg.InfluxDB.URL == "" {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("InfluxDB URL (blank to skip)").
				Value(&cfg.InfluxDB.URL),
			huh.NewInput().
				Title("InfluxDB organization").
				Value(&cfg.InfluxDB.Org),
			huh.NewInput().
				Title("InfluxDB bucket").
				Value(&cfg.InfluxDB.Bucket),
			huh.NewInput().
				Title("InfluxDB API token").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.InfluxDB.Token),
		))
	}
	if force || cfg.Prometheus.PushgatewayURL == "" {
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title("Prometheus Pushgateway URL (blank to skip)").
				Value(&cfg.Prometheus.PushgatewayURL),
		))
	}
	return groups
}

// promptAll asks for the sections that still need input, keeping
// re-runs short: a config that already has github and pypi filled in
// will only be asked about export targets. With force, every section
// is revisited.
func promptAll(cfg *Config, force bool) error {
	repos := strings.Join(cfg.GitHub.Repos, ", ")
	packages := strings.Join(cfg.PyPI.Packages, ", ")
	promptGitHub := force || cfg.GitHub.Username == "" || cfg.GitHub.Token == ""
	promptPyPI := force || len(cfg.PyPI.Packages) == 0

	groups := promptGroups(cfg, force, &repos, &packages)
	if len(groups) > 0 {
		if err := huh.NewForm(groups...).Run(); err != nil {
			return fmt.Errorf("config: prompt: %w", err)
		}
		if promptGitHub {
			cfg.GitHub.Repos = splitList(repos)
		}
		if promptPyPI {
			cfg.PyPI.Packages = splitList(packages)
		}
	}

	if cfg.SMTP.Server != "" && !force {
		return nil
	}
	wantSMTP := force && cfg.SMTP.Server != ""
	if err := huh.NewConfirm().
		Title("Configure email alerts for open GitHub issues?").
		Value(&wantSMTP).
		Run(); err != nil {
		return fmt.Errorf("config: prompt: %w", err)
	}
	if !wantSMTP {
		return nil
	}
	return promptSMTP(&cfg.SMTP)
}

func promptSMTP(s *SMTP) error {
	port := ""
	if s.Port != 0 {
		port = strconv.Itoa(s.Port)
	}
	recipients := strings.Join(s.Recipients, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("SMTP server").
				Value(&s.Server),
			huh.NewInput().
				Title("SMTP port").
				Value(&port).
				Validate(func(v string) error {
					if v == "" {
						return nil
					}
					n, err := strconv.Atoi(v)
					if err != nil || n < 1 || n > 65535 {
						return errors.New("enter a port between 1 and 65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("SMTP username").
				Value(&s.Username),
			huh.NewInput().
				Title("SMTP password").
				EchoMode(huh.EchoModePassword).
				Value(&s.Password),
			huh.NewInput().
				Title("From address").
				Value(&s.From),
			huh.NewInput().
				Title("Alert recipients (comma separated)").
				Value(&recipients),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("config: prompt: %w", err)
	}

	if port == "" {
		s.Port = 587
	} else {
		s.Port, _ = strconv.Atoi(port)
	}
	s.Recipients = splitList(recipients)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
