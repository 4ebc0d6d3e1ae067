// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/AleutianAI/scout/pkg/ux"
)

// CheckIssues collects repository stats, renders the stats table, and
// returns any open issues keyed by repository name.
//
// When testEmail is set (and not dryRun) a synthetic issue is injected
// into the first repository so the alert path can be exercised end to
// end. If issues exist and dryRun is false, one summary email covering
// every affected repo is sent; send failures are logged and shown but
// never returned, so a broken mail server can't fail a metrics run.
func (t *Tracker) CheckIssues(ctx context.Context, testEmail, dryRun bool) (map[string][]Issue, error) {
	stats, err := t.CollectStats(ctx)
	if err != nil {
		return nil, err
	}

	found := make(map[string][]Issue)
	for i, s := range stats {
		issues, err := t.FetchIssues(ctx, s.Repo.Name)
		if err != nil {
			t.log.Warn("issue check failed", "repo", s.Repo.Name, "error", err)
			issues = nil
		}
		if i == 0 && testEmail && !dryRun {
			issues = append(issues, Issue{
				Number:    0,
				Title:     "Test alert from scout --test-email",
				CreatedAt: time.Now().UTC(),
			})
		}
		if len(issues) > 0 {
			found[s.Repo.Name] = issues
		}
	}

	t.renderStats(stats)
	if len(found) > 0 {
		t.renderIssues(found)
		if !dryRun {
			t.sendAlert(found)
		}
	} else {
		t.console.Success("no open issues across %d repositories", len(stats))
	}
	return found, nil
}

func (t *Tracker) renderStats(stats []RepoStats) {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		name := ux.Styles.Public.Render(s.Repo.Name)
		if s.Repo.Private {
			name = ux.Styles.Private.Render(s.Repo.Name)
		}
		lastPush := "never"
		if !s.Repo.PushedAt.IsZero() {
			lastPush = s.Repo.PushedAt.UTC().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(s.Repo.Forks),
			strconv.Itoa(s.Branches),
			strconv.Itoa(s.Repo.Followers),
			strconv.Itoa(s.Downloads),
			strconv.Itoa(s.Clones.Count),
			strconv.Itoa(s.Clones.Uniques),
			lastPush,
		})
	}
	t.console.Table(
		fmt.Sprintf("GitHub repositories (%s)", t.username),
		[]string{"Repository", "Forks", "Branches", "Followers", "Downloads", "Clones 14d", "Unique", "Last Push"},
		rows,
	)
	t.console.Muted("legend: " +
		ux.Styles.Private.Render("private") + " / " + ux.Styles.Public.Render("public"))
}

func (t *Tracker) renderIssues(found map[string][]Issue) {
	var rows [][]string
	for repo, issues := range found {
		for _, is := range issues {
			rows = append(rows, []string{
				repo,
				"#" + strconv.Itoa(is.Number),
				is.Title,
				is.CreatedAt.UTC().Format("2006-01-02"),
			})
		}
	}
	t.console.Table("Open issues", []string{"Repository", "Issue", "Title", "Opened"}, rows)
}

func (t *Tracker) sendAlert(found map[string][]Issue) {
	if t.alerter == nil {
		t.console.Warn("open issues found but email alerts are not configured")
		return
	}
	if err := t.alerter.SendIssueAlert(found); err != nil {
		t.log.Error("issue alert failed", "error", err)
		t.console.Error("could not send issue alert: %v", err)
		return
	}
	t.console.Success("issue alert sent to %d recipient(s)", len(t.alerter.recipients))
}
