// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/scout/pkg/config"
	"github.com/AleutianAI/scout/pkg/export"
	"github.com/AleutianAI/scout/pkg/github"
	"github.com/AleutianAI/scout/pkg/logging"
	"github.com/AleutianAI/scout/pkg/pypi"
	"github.com/AleutianAI/scout/pkg/secrets"
	"github.com/AleutianAI/scout/pkg/ux"
)

// app wires the trackers and exporter for one process lifetime. The
// daemon rebuilds everything behind it on config reload.
type app struct {
	log      *logging.Logger
	console  *ux.Console
	loader   *config.Loader
	password *memguard.Enclave
	cfg      *config.Config
	outputs  []string

	gh       *github.Tracker
	py       *pypi.Tracker
	exporter *export.Exporter
}

func runRoot(cmd *cobra.Command, _ []string) error {
	defer memguard.Purge()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Close()
	console := ux.Stdout()

	loader, err := config.NewLoader()
	if err != nil {
		return err
	}
	session := secrets.NewSessionManager(nil)

	if flagLogout {
		if err := session.Clear(); err != nil {
			return err
		}
		console.Success("session cleared")
		return nil
	}

	enclave, fromCache, err := obtainPassword(session, console, log)
	if err != nil {
		return err
	}

	cfg, err := authenticate(loader, session, enclave, fromCache, console, log)
	if fromCache && errors.Is(err, secrets.ErrInvalidToken) {
		// The cached password no longer opens the config (it was
		// regenerated under a new master password within the TTL).
		// The stale session is already cleared; ask for the current
		// password and try once more.
		console.Warn("cached session no longer matches the configuration")
		if enclave, _, err = obtainPassword(session, console, log); err != nil {
			return err
		}
		cfg, err = authenticate(loader, session, enclave, false, console, log)
	}
	if err != nil {
		return err
	}
	cfg, err = ensureOutputSections(loader, enclave, cfg, console)
	if err != nil {
		return err
	}

	a := &app{
		log:      log,
		console:  console,
		loader:   loader,
		password: enclave,
		cfg:      cfg,
		outputs:  resolveOutputs(cfg, console),
	}
	a.bind()
	defer func() { a.exporter.Close() }()

	ctx := cmd.Context()
	if flagSchedule > 0 {
		return a.runDaemon(ctx, flagSchedule)
	}
	return a.runOnce(ctx)
}

func newLogger() (*logging.Logger, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	level := logging.LevelInfo
	if flagVerbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogFile: filepath.Join(dir, "logs", "scout.log"),
		Service: "scout",
		Quiet:   !flagVerbose,
	}), nil
}

// obtainPassword resolves the master password: the cached session when
// one is fresh, otherwise a prompt. It reports which path was taken;
// no session is created here — that waits until the password has
// proven it can decrypt the config. A cached password is never reused
// for --generate-config since config generation should always
// reconfirm the password.
func obtainPassword(session *secrets.SessionManager, console *ux.Console, log *logging.Logger) (enclave *memguard.Enclave, fromCache bool, err error) {
	if !flagGenerateConfig {
		if pw, err := session.Check(); err == nil {
			console.Info("session valid for another %d minute(s)", int(session.Remaining().Minutes()))
			return memguard.NewEnclave([]byte(pw)), true, nil
		} else if !errors.Is(err, secrets.ErrNotFound) && !errors.Is(err, secrets.ErrSessionExpired) {
			log.Warn("session check failed", "error", err)
		}
	}

	var pw string
	prompt := huh.NewInput().
		Title("Master password").
		EchoMode(huh.EchoModePassword).
		Value(&pw).
		Validate(func(v string) error {
			if v == "" {
				return errors.New("password cannot be empty")
			}
			return nil
		})
	if err := prompt.Run(); err != nil {
		return nil, false, fmt.Errorf("read password: %w", err)
	}
	return memguard.NewEnclave([]byte(pw)), false, nil
}

// authenticate loads the config and, on the fresh-prompt path, starts
// a session once the password has decrypted the config successfully.
// Caching before the load would wedge a mistyped password into the
// keyring for the whole TTL. A cached password that fails decryption
// has its stale session cleared so the next run prompts again.
func authenticate(loader *config.Loader, session *secrets.SessionManager, enclave *memguard.Enclave, fromCache bool, console *ux.Console, log *logging.Logger) (*config.Config, error) {
	cfg, err := loadConfig(loader, enclave, console)
	if err != nil {
		if fromCache && errors.Is(err, secrets.ErrInvalidToken) {
			if cerr := session.Clear(); cerr != nil {
				log.Warn("could not clear stale session", "error", cerr)
			}
		}
		return nil, err
	}

	if !fromCache {
		buf, oerr := enclave.Open()
		if oerr != nil {
			log.Warn("could not cache session", "error", oerr)
			return cfg, nil
		}
		defer buf.Destroy()
		if serr := session.Create(string(buf.Bytes())); serr != nil {
			// A broken keyring only costs a re-prompt next run.
			log.Warn("could not cache session", "error", serr)
		}
	}
	return cfg, nil
}

// loadConfig loads the decrypted config, running interactive
// generation first when requested or when no config exists yet.
func loadConfig(loader *config.Loader, enclave *memguard.Enclave, console *ux.Console) (*config.Config, error) {
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("unseal password: %w", err)
	}
	defer buf.Destroy()
	password := buf.String()

	if flagGenerateConfig || !loader.Exists() {
		if !loader.Exists() {
			console.Info("no configuration found, starting setup")
		}
		if err := loader.Generate(password); err != nil {
			return nil, err
		}
		console.Success("configuration written to %s", loader.ConfigPath)
	}

	cfg, err := loader.Load(password)
	if errors.Is(err, secrets.ErrInvalidToken) {
		return nil, fmt.Errorf("wrong master password for %s: %w", loader.ConfigPath, err)
	}
	return cfg, err
}

// ensureOutputSections offers to configure any requested output whose
// config section is missing. Outputs still missing after that are
// dropped later by resolveOutputs.
func ensureOutputSections(loader *config.Loader, enclave *memguard.Enclave, cfg *config.Config, console *ux.Console) (*config.Config, error) {
	missing := false
	for _, o := range flagOutputs {
		if o == export.OutputInflux && !cfg.HasInflux() {
			missing = true
		}
		if o == export.OutputPrometheus && !cfg.HasPrometheus() {
			missing = true
		}
	}
	if !missing {
		return cfg, nil
	}

	addNow := false
	if err := huh.NewConfirm().
		Title("A requested export target is not configured yet. Configure it now?").
		Value(&addNow).
		Run(); err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	if !addNow {
		return cfg, nil
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("unseal password: %w", err)
	}
	defer buf.Destroy()
	if err := loader.Generate(buf.String()); err != nil {
		return nil, err
	}
	return loader.Load(buf.String())
}

// resolveOutputs drops requested outputs whose config section is
// missing, telling the user what was skipped and why.
func resolveOutputs(cfg *config.Config, console *ux.Console) []string {
	var outputs []string
	for _, o := range flagOutputs {
		switch o {
		case export.OutputInflux:
			if !cfg.HasInflux() {
				console.Warn("influx output requested but the influxdb section is incomplete; run 'scout -g' to add it")
				continue
			}
		case export.OutputPrometheus:
			if !cfg.HasPrometheus() {
				console.Warn("prometheus output requested but pushgateway_url is not set; run 'scout -g' to add it")
				continue
			}
		}
		if !slices.Contains(outputs, o) {
			outputs = append(outputs, o)
		}
	}
	return outputs
}

// bind (re)builds the trackers and exporter from the current config.
func (a *app) bind() {
	if a.exporter != nil {
		a.exporter.Close()
	}
	a.gh = github.NewTracker(a.cfg.GitHub, nil, a.log, a.console, github.NewAlerter(a.cfg.SMTP))
	a.py = pypi.NewTracker(a.cfg.PyPI, nil, a.log, a.console)
	a.exporter = export.New(a.cfg.InfluxDB, a.cfg.Prometheus, a.outputs, a.log)
}

// reload re-reads and re-decrypts the config and rebinds everything.
func (a *app) reload() error {
	buf, err := a.password.Open()
	if err != nil {
		return fmt.Errorf("unseal password: %w", err)
	}
	defer buf.Destroy()

	cfg, err := a.loader.Load(buf.String())
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	a.cfg = cfg
	a.outputs = resolveOutputs(cfg, a.console)
	a.bind()
	return nil
}

// runOnce performs a single collection-and-export pass.
func (a *app) runOnce(ctx context.Context) (err error) {
	runID := uuid.NewString()
	log := a.log.With("run_id", runID)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("run panicked: %v", r)
		}
		log.Info("run finished", "duration_ms", time.Since(start).Milliseconds())
	}()
	log.Info("run started", "type", flagType, "outputs", a.outputs, "dry_run", flagDryRun)

	var ghStats []github.RepoStats
	if flagType == "github" || flagType == "all" {
		if _, err := a.gh.CheckIssues(ctx, flagTestEmail, flagDryRun); err != nil {
			return err
		}
		if ghStats, err = a.gh.CollectStats(ctx); err != nil {
			return err
		}
	}

	var pyResults map[string]*pypi.PackageInfo
	if flagType == "pypi" || flagType == "all" {
		pyResults = a.py.CheckPackages(ctx)
	}

	if flagDryRun {
		a.console.Muted("dry-run: skipping export")
		return nil
	}
	return a.export(ctx, log, ghStats, pyResults)
}

func (a *app) export(ctx context.Context, log *logging.Logger, ghStats []github.RepoStats, pyResults map[string]*pypi.PackageInfo) error {
	if a.exporter.InfluxEnabled() {
		points := append(githubPoints(a.cfg.GitHub.Username, ghStats), pypiPoints(pyResults)...)
		if len(points) > 0 {
			success, failure := a.exporter.ProcessBatches(ctx, export.Batches(points))
			if failure > 0 {
				a.console.Warn("influx export: %d batch(es) failed, %d succeeded", failure, success)
			} else {
				a.console.Success("exported %d point(s) to InfluxDB", len(points))
			}
		}
	}

	if a.exporter.PrometheusEnabled() {
		pushed, failed := a.pushPrometheus(ctx, log, ghStats, pyResults)
		if failed > 0 {
			a.console.Warn("prometheus export: %d push(es) failed, %d succeeded", failed, pushed)
		} else if pushed > 0 {
			a.console.Success("pushed %d gauge(s) to the Pushgateway", pushed)
		}
	}
	return nil
}

func githubPoints(owner string, stats []github.RepoStats) []*write.Point {
	points := make([]*write.Point, 0, len(stats))
	for _, s := range stats {
		points = append(points, export.NewPoint("github_repo_stats",
			map[string]string{
				"repo":    s.Repo.Name,
				"owner":   owner,
				"private": strconv.FormatBool(s.Repo.Private),
			},
			map[string]any{
				"forks":     s.Repo.Forks,
				"branches":  s.Branches,
				"followers": s.Repo.Followers,
				"downloads": s.Downloads,
				"last_push": s.Repo.PushedAt.UTC().Format(time.RFC3339),
			}))
	}
	return points
}

func pypiPoints(results map[string]*pypi.PackageInfo) []*write.Point {
	var points []*write.Point
	for name, info := range results {
		if info.Stats == nil {
			continue
		}
		s := info.Stats
		points = append(points, export.NewPoint("pypi_package_stats",
			map[string]string{"package": name},
			map[string]any{
				"last_day_downloads":     s.LastDay,
				"last_week_downloads":    s.LastWeek,
				"last_month_downloads":   s.LastMonth,
				"overall_downloads":      s.Overall,
				"python_major_downloads": sumCounts(s.PythonMajor),
				"python_minor_downloads": sumCounts(s.PythonMinor),
				"system_downloads":       sumCounts(s.System),
			}))
	}
	return points
}

// pushPrometheus pushes one gauge per repo metric and per package
// counter. Repos without a recorded push skip the last_push gauge.
func (a *app) pushPrometheus(ctx context.Context, log *logging.Logger, ghStats []github.RepoStats, pyResults map[string]*pypi.PackageInfo) (pushed, failed int) {
	record := func(metric string, value float64, labels map[string]string) {
		if err := a.exporter.ExportToPrometheus(ctx, metric, value, labels); err != nil {
			log.Error("prometheus push failed", "metric", metric, "error", err)
			failed++
			return
		}
		pushed++
	}

	for _, s := range ghStats {
		labels := map[string]string{"repo": s.Repo.Name}
		record("github_repo_forks", float64(s.Repo.Forks), labels)
		record("github_repo_branches", float64(s.Branches), labels)
		record("github_repo_followers", float64(s.Repo.Followers), labels)
		record("github_repo_downloads", float64(s.Downloads), labels)
		if s.Repo.PushedAt.IsZero() {
			log.Warn("no push timestamp, skipping last_push gauge", "repo", s.Repo.Name)
		} else {
			record("github_repo_last_push", float64(s.Repo.PushedAt.Unix()), labels)
		}
	}

	for name, info := range pyResults {
		if info.Stats == nil {
			continue
		}
		s := info.Stats
		prefix := "pypi_" + sanitizeMetricName(name) + "_"
		record(prefix+"last_day_downloads", float64(s.LastDay), nil)
		record(prefix+"last_week_downloads", float64(s.LastWeek), nil)
		record(prefix+"last_month_downloads", float64(s.LastMonth), nil)
		record(prefix+"overall_downloads", float64(s.Overall), nil)
	}
	return pushed, failed
}

func sumCounts(m map[string]int64) int64 {
	var total int64
	for _, n := range m {
		total += n
	}
	return total
}

// sanitizeMetricName maps a PyPI package name onto the Prometheus
// metric charset.
func sanitizeMetricName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
