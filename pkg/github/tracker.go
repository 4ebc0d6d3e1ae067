// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package github polls the GitHub REST API for repository metrics and
// open-issue alerts.
//
// All fetches go through a short TTL cache keyed by URL, so a run that
// collects stats and then exports them hits each endpoint once. Errors
// on per-repo detail endpoints (branches, releases, traffic) degrade
// that metric to zero rather than failing the run; only the initial
// repository listing is fatal.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/AleutianAI/scout/pkg/cache"
	"github.com/AleutianAI/scout/pkg/config"
	"github.com/AleutianAI/scout/pkg/logging"
	"github.com/AleutianAI/scout/pkg/ux"
)

const defaultBaseURL = "https://api.github.com"

// APIError is a non-2xx response from the GitHub API. The body is kept
// verbatim because GitHub's error JSON explains rate limits and scope
// problems better than the status line does.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API returned %d: %s", e.StatusCode, e.Body)
}

// Repo is the subset of the repository object Scout tracks.
type Repo struct {
	Name      string    `json:"name"`
	FullName  string    `json:"full_name"`
	Private   bool      `json:"private"`
	Forks     int       `json:"forks_count"`
	Followers int       `json:"watchers_count"`
	PushedAt  time.Time `json:"pushed_at"`
}

// Issue is an open issue returned by the issues endpoint.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// CloneStats is the 14-day clone traffic summary.
type CloneStats struct {
	Count   int `json:"count"`
	Uniques int `json:"uniques"`
}

// RepoStats is one repository's collected metrics, ready for display
// and export.
type RepoStats struct {
	Repo      Repo
	Branches  int
	Downloads int
	Clones    CloneStats
}

// Tracker fetches repository metrics for one GitHub account.
type Tracker struct {
	username string
	token    string
	repos    []string
	baseURL  string
	client   *http.Client
	log      *logging.Logger
	console  *ux.Console
	alerter  *Alerter

	repoCache  *cache.Cache[[]Repo]
	countCache *cache.Cache[int]
	cloneCache *cache.Cache[CloneStats]
	issueCache *cache.Cache[[]Issue]
}

// NewTracker builds a Tracker from the decrypted GitHub config. A nil
// client uses a 30s-timeout default; alerter may be nil to disable
// email.
func NewTracker(cfg config.GitHub, client *http.Client, log *logging.Logger, console *ux.Console, alerter *Alerter) *Tracker {
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
		username:   cfg.Username,
		token:      cfg.Token,
		repos:      cfg.Repos,
		baseURL:    defaultBaseURL,
		client:     client,
		log:        log,
		console:    console,
		alerter:    alerter,
		repoCache:  cache.New[[]Repo](cache.DefaultTTL),
		countCache: cache.New[int](cache.DefaultTTL),
		cloneCache: cache.New[CloneStats](cache.DefaultTTL),
		issueCache: cache.New[[]Issue](cache.DefaultTTL),
	}
}

// getJSON performs an authenticated GET and decodes the response into
// out. Non-2xx responses come back as *APIError.
func (t *Tracker) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+t.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("github: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github: decode %s: %w", url, err)
	}
	return nil
}

// FetchRepos lists the authenticated user's repositories, filtered to
// the configured names when a filter is set. API order (and the
// private flag) is preserved.
func (t *Tracker) FetchRepos(ctx context.Context) ([]Repo, error) {
	url := t.baseURL + "/user/repos?per_page=100"
	return t.repoCache.GetOrCompute(url, func() ([]Repo, error) {
		var all []Repo
		if err := t.getJSON(ctx, url, &all); err != nil {
			return nil, err
		}
		if len(t.repos) == 0 {
			return all, nil
		}
		var filtered []Repo
		for _, r := range all {
			if slices.Contains(t.repos, r.Name) {
				filtered = append(filtered, r)
			}
		}
		return filtered, nil
	})
}

// FetchBranchesCount returns the number of branches in a repository.
func (t *Tracker) FetchBranchesCount(ctx context.Context, repo string) (int, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/branches?per_page=100", t.baseURL, t.username, repo)
	return t.countCache.GetOrCompute(url, func() (int, error) {
		var branches []struct {
			Name string `json:"name"`
		}
		if err := t.getJSON(ctx, url, &branches); err != nil {
			return 0, err
		}
		return len(branches), nil
	})
}

// FetchDownloadsCount sums release asset downloads across every
// release of a repository.
func (t *Tracker) FetchDownloadsCount(ctx context.Context, repo string) (int, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100", t.baseURL, t.username, repo)
	return t.countCache.GetOrCompute(url, func() (int, error) {
		var releases []struct {
			Assets []struct {
				DownloadCount int `json:"download_count"`
			} `json:"assets"`
		}
		if err := t.getJSON(ctx, url, &releases); err != nil {
			return 0, err
		}
		total := 0
		for _, rel := range releases {
			for _, a := range rel.Assets {
				total += a.DownloadCount
			}
		}
		return total, nil
	})
}

// FetchCloneCount returns the 14-day clone traffic summary. The
// traffic endpoint needs push access, so forbidden responses are a
// normal outcome for mirrored repos.
func (t *Tracker) FetchCloneCount(ctx context.Context, repo string) (CloneStats, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/traffic/clones", t.baseURL, t.username, repo)
	return t.cloneCache.GetOrCompute(url, func() (CloneStats, error) {
		var stats CloneStats
		if err := t.getJSON(ctx, url, &stats); err != nil {
			return CloneStats{}, err
		}
		return stats, nil
	})
}

// FetchIssues returns a repository's open issues.
func (t *Tracker) FetchIssues(ctx context.Context, repo string) ([]Issue, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&per_page=100", t.baseURL, t.username, repo)
	return t.issueCache.GetOrCompute(url, func() ([]Issue, error) {
		var issues []Issue
		if err := t.getJSON(ctx, url, &issues); err != nil {
			return nil, err
		}
		return issues, nil
	})
}

// CollectStats gathers the full per-repo metric set. Detail endpoint
// failures are logged and the affected metric reported as zero.
func (t *Tracker) CollectStats(ctx context.Context) ([]RepoStats, error) {
	repos, err := t.FetchRepos(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]RepoStats, 0, len(repos))
	for _, repo := range repos {
		s := RepoStats{Repo: repo}

		if n, err := t.FetchBranchesCount(ctx, repo.Name); err != nil {
			t.log.Warn("branch count failed", "repo", repo.Name, "error", err)
		} else {
			s.Branches = n
		}
		if n, err := t.FetchDownloadsCount(ctx, repo.Name); err != nil {
			t.log.Warn("download count failed", "repo", repo.Name, "error", err)
		} else {
			s.Downloads = n
		}
		if c, err := t.FetchCloneCount(ctx, repo.Name); err != nil {
			t.log.Warn("clone traffic failed", "repo", repo.Name, "error", err)
		} else {
			s.Clones = c
		}
		stats = append(stats, s)
	}
	return stats, nil
}
