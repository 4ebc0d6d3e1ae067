// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/scout/pkg/config"
	"github.com/AleutianAI/scout/pkg/logging"
	"github.com/AleutianAI/scout/pkg/ux"
)

const reposJSON = `[
	{"name": "scout", "full_name": "aleutian/scout", "private": false,
	 "forks_count": 3, "watchers_count": 12, "pushed_at": "2026-02-01T10:00:00Z"},
	{"name": "internal-tools", "full_name": "aleutian/internal-tools", "private": true,
	 "forks_count": 0, "watchers_count": 1, "pushed_at": "2026-01-15T08:30:00Z"}
]`

func newTestTracker(t *testing.T, handler http.Handler, cfg config.GitHub) (*Tracker, *bytes.Buffer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	tr := NewTracker(cfg, srv.Client(), logging.New(logging.Config{Quiet: true}), ux.NewConsole(&out), nil)
	tr.baseURL = srv.URL
	return tr, &out, srv
}

func TestFetchReposPreservesOrderAndVisibility(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/repos" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "token ghp_test" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, reposJSON)
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{Username: "aleutian", Token: "ghp_test"})

	repos, err := tr.FetchRepos(context.Background())
	if err != nil {
		t.Fatalf("FetchRepos failed: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repos, want 2", len(repos))
	}
	if repos[0].Name != "scout" || repos[1].Name != "internal-tools" {
		t.Errorf("order not preserved: %q, %q", repos[0].Name, repos[1].Name)
	}
	if repos[0].Private || !repos[1].Private {
		t.Error("private flags wrong")
	}
	if repos[0].Forks != 3 || repos[0].Followers != 12 {
		t.Errorf("counts wrong: forks=%d followers=%d", repos[0].Forks, repos[0].Followers)
	}
}

func TestFetchReposAppliesFilter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, reposJSON)
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{
		Username: "aleutian", Token: "ghp_test", Repos: []string{"internal-tools"},
	})

	repos, err := tr.FetchRepos(context.Background())
	if err != nil {
		t.Fatalf("FetchRepos failed: %v", err)
	}
	if len(repos) != 1 || repos[0].Name != "internal-tools" {
		t.Errorf("filter not applied: %+v", repos)
	}
}

func TestFetchReposAPIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{Username: "aleutian", Token: "ghp_test"})

	_, err := tr.FetchRepos(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
	}
	if apiErr.Body == "" || apiErr.Error() == "" {
		t.Error("error lost the response body")
	}
}

func TestFetchReposCaches(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, reposJSON)
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{Username: "aleutian", Token: "ghp_test"})

	for i := 0; i < 3; i++ {
		if _, err := tr.FetchRepos(context.Background()); err != nil {
			t.Fatalf("FetchRepos failed: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestFetchDownloadsCountSumsAssets(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"assets": [{"download_count": 10}, {"download_count": 5}]},
			{"assets": [{"download_count": 7}]},
			{"assets": []}
		]`)
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{Username: "aleutian", Token: "ghp_test"})

	n, err := tr.FetchDownloadsCount(context.Background(), "scout")
	if err != nil {
		t.Fatalf("FetchDownloadsCount failed: %v", err)
	}
	if n != 22 {
		t.Errorf("downloads = %d, want 22", n)
	}
}

func TestFetchBranchesAndClones(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/aleutian/scout/branches":
			fmt.Fprint(w, `[{"name": "main"}, {"name": "dev"}]`)
		case r.URL.Path == "/repos/aleutian/scout/traffic/clones":
			fmt.Fprint(w, `{"count": 40, "uniques": 9}`)
		default:
			http.NotFound(w, r)
		}
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{Username: "aleutian", Token: "ghp_test"})

	n, err := tr.FetchBranchesCount(context.Background(), "scout")
	if err != nil {
		t.Fatalf("FetchBranchesCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("branches = %d, want 2", n)
	}

	clones, err := tr.FetchCloneCount(context.Background(), "scout")
	if err != nil {
		t.Fatalf("FetchCloneCount failed: %v", err)
	}
	if clones.Count != 40 || clones.Uniques != 9 {
		t.Errorf("clones = %+v", clones)
	}
}

func TestCollectStatsDegradesDetailFailures(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/repos":
			fmt.Fprint(w, reposJSON)
		default:
			// every detail endpoint is broken
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "forbidden"}`)
		}
	})
	tr, _, _ := newTestTracker(t, handler, config.GitHub{Username: "aleutian", Token: "ghp_test"})

	stats, err := tr.CollectStats(context.Background())
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats, want 2", len(stats))
	}
	for _, s := range stats {
		if s.Branches != 0 || s.Downloads != 0 || s.Clones.Count != 0 {
			t.Errorf("failed detail not degraded to zero: %+v", s)
		}
	}
	// repo-level fields survive
	if stats[0].Repo.Forks != 3 {
		t.Errorf("Forks = %d, want 3", stats[0].Repo.Forks)
	}
}
