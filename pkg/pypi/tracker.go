// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pypi polls pypi.org and pypistats.org for package download
// metrics.
//
// Download statistics come from five pypistats endpoints that describe
// the same traffic from different angles. The aggregate is
// all-or-nothing: if any endpoint fails the package reports no stats
// at all, because a partially-populated breakdown reads like a drop in
// downloads on the dashboards.
package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/AleutianAI/scout/pkg/cache"
	"github.com/AleutianAI/scout/pkg/config"
	"github.com/AleutianAI/scout/pkg/logging"
	"github.com/AleutianAI/scout/pkg/ux"
)

const (
	pypiBaseURL  = "https://pypi.org"
	statsBaseURL = "https://pypistats.org"

	// ErrorVersion is the placeholder shown when a package's version
	// lookup fails.
	ErrorVersion = "Error"
)

// Stats aggregates the five pypistats endpoints for one package.
type Stats struct {
	LastDay   int64
	LastWeek  int64
	LastMonth int64

	// Overall is the all-time without-mirrors download total.
	Overall int64

	PythonMajor map[string]int64
	PythonMinor map[string]int64
	System      map[string]int64
}

// PackageInfo is what CheckPackages reports per package. Stats is nil
// when any stats endpoint failed.
type PackageInfo struct {
	Version string
	Stats   *Stats
}

// Tracker fetches version and download metrics for the configured
// packages.
type Tracker struct {
	packages []string
	client   *http.Client
	pypiURL  string
	statsURL string
	log      *logging.Logger
	console  *ux.Console

	versionCache *cache.Cache[string]
	statsCache   *cache.Cache[*Stats]
}

// NewTracker builds a Tracker from the PyPI config section.
func NewTracker(cfg config.PyPI, client *http.Client, log *logging.Logger, console *ux.Console) *Tracker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logging.Default()
	}
	if console == nil {
		console = ux.Stdout()
	}
	return &Tracker{
		packages:     cfg.Packages,
		client:       client,
		pypiURL:      pypiBaseURL,
		statsURL:     statsBaseURL,
		log:          log,
		console:      console,
		versionCache: cache.New[string](cache.DefaultTTL),
		statsCache:   cache.New[*Stats](cache.DefaultTTL),
	}
}

func (t *Tracker) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("pypi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("pypi: %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("pypi: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pypi: %s returned %d", url, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("pypi: decode %s: %w", url, err)
	}
	return nil
}

// FetchPackageVersion returns the current release version of a
// package. Any failure is logged and reported as not-ok.
func (t *Tracker) FetchPackageVersion(ctx context.Context, name string) (string, bool) {
	url := fmt.Sprintf("%s/pypi/%s/json", t.pypiURL, name)
	version, err := t.versionCache.GetOrCompute(url, func() (string, error) {
		var payload struct {
			Info struct {
				Version string `json:"version"`
			} `json:"info"`
		}
		if err := t.getJSON(ctx, url, &payload); err != nil {
			return "", err
		}
		return payload.Info.Version, nil
	})
	if err != nil {
		t.log.Warn("version lookup failed", "package", name, "error", err)
		return "", false
	}
	return version, true
}

// categoryRow is the shared shape of the pypistats breakdown
// endpoints: one row per (category, date).
type categoryRow struct {
	Category  string `json:"category"`
	Downloads int64  `json:"downloads"`
}

func (t *Tracker) fetchCategories(ctx context.Context, url string) (map[string]int64, error) {
	var payload struct {
		Data []categoryRow `json:"data"`
	}
	if err := t.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	totals := make(map[string]int64)
	for _, row := range payload.Data {
		cat := row.Category
		if cat == "" || cat == "null" {
			cat = "other"
		}
		totals[cat] += row.Downloads
	}
	return totals, nil
}

// FetchStats aggregates all five pypistats endpoints for a package.
// Any failure aborts the whole aggregate; no partial Stats is ever
// returned.
func (t *Tracker) FetchStats(ctx context.Context, name string) (*Stats, error) {
	key := fmt.Sprintf("%s/api/packages/%s", t.statsURL, name)
	return t.statsCache.GetOrCompute(key, func() (*Stats, error) {
		var recent struct {
			Data struct {
				LastDay   int64 `json:"last_day"`
				LastWeek  int64 `json:"last_week"`
				LastMonth int64 `json:"last_month"`
			} `json:"data"`
		}
		if err := t.getJSON(ctx, key+"/recent", &recent); err != nil {
			return nil, err
		}

		overall, err := t.fetchCategories(ctx, key+"/overall")
		if err != nil {
			return nil, err
		}
		major, err := t.fetchCategories(ctx, key+"/python_major")
		if err != nil {
			return nil, err
		}
		minor, err := t.fetchCategories(ctx, key+"/python_minor")
		if err != nil {
			return nil, err
		}
		system, err := t.fetchCategories(ctx, key+"/system")
		if err != nil {
			return nil, err
		}

		return &Stats{
			LastDay:     recent.Data.LastDay,
			LastWeek:    recent.Data.LastWeek,
			LastMonth:   recent.Data.LastMonth,
			Overall:     overall["without_mirrors"],
			PythonMajor: major,
			PythonMinor: minor,
			System:      system,
		}, nil
	})
}

// CheckPackages fetches version and stats for every configured
// package and renders a consolidated report. Blank entries are
// skipped; lookup failures show version "Error" with no stats.
func (t *Tracker) CheckPackages(ctx context.Context) map[string]*PackageInfo {
	results := make(map[string]*PackageInfo)
	var order []string

	for _, name := range t.packages {
		if name == "" {
			continue
		}
		info := &PackageInfo{}
		version, ok := t.FetchPackageVersion(ctx, name)
		if !ok {
			info.Version = ErrorVersion
			results[name] = info
			order = append(order, name)
			continue
		}
		info.Version = version

		stats, err := t.FetchStats(ctx, name)
		if err != nil {
			t.log.Warn("stats lookup failed", "package", name, "error", err)
		} else {
			info.Stats = stats
		}
		results[name] = info
		order = append(order, name)
	}

	t.renderReport(order, results)
	return results
}

func (t *Tracker) renderReport(order []string, results map[string]*PackageInfo) {
	rows := make([][]string, 0, len(order))
	for _, name := range order {
		info := results[name]
		day, week, month, overall := "-", "-", "-", "-"
		if info.Stats != nil {
			day = ux.FormatCount(info.Stats.LastDay)
			week = ux.FormatCount(info.Stats.LastWeek)
			month = ux.FormatCount(info.Stats.LastMonth)
			overall = ux.FormatCount(info.Stats.Overall)
		}
		version := info.Version
		if version == ErrorVersion {
			version = ux.Styles.Error.Render(version)
		}
		rows = append(rows, []string{name, version, day, week, month, overall})
	}
	t.console.Table("PyPI packages",
		[]string{"Package", "Version", "Last Day", "Last Week", "Last Month", "Overall"}, rows)

	for _, name := range order {
		info := results[name]
		if info.Stats == nil {
			continue
		}
		t.renderBreakdown(name+" by Python major version", info.Stats.PythonMajor)
		t.renderBreakdown(name+" by Python minor version", info.Stats.PythonMinor)
		t.renderBreakdown(name+" by operating system", info.Stats.System)
	}
}

// renderBreakdown prints one category table sorted by downloads,
// highest first.
func (t *Tracker) renderBreakdown(title string, totals map[string]int64) {
	if len(totals) == 0 {
		return
	}
	type row struct {
		category  string
		downloads int64
	}
	rows := make([]row, 0, len(totals))
	for cat, n := range totals {
		rows = append(rows, row{cat, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].downloads != rows[j].downloads {
			return rows[i].downloads > rows[j].downloads
		}
		return rows[i].category < rows[j].category
	})

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.category, ux.FormatCount(r.downloads)})
	}
	t.console.Table(title, []string{"Category", "Downloads"}, out)
}
