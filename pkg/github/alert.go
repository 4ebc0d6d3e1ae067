// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package github

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/AleutianAI/scout/pkg/config"
)

// Alerter sends plain-text issue summaries over SMTP with mandatory
// STARTTLS.
type Alerter struct {
	cfg        config.SMTP
	recipients []string
}

// NewAlerter returns an Alerter, or nil when the SMTP section is
// incomplete (alerts disabled).
func NewAlerter(cfg config.SMTP) *Alerter {
	if cfg.Server == "" || len(cfg.Recipients) == 0 {
		return nil
	}
	return &Alerter{cfg: cfg, recipients: cfg.Recipients}
}

// SendIssueAlert sends one message summarizing every repository with
// open issues.
func (a *Alerter) SendIssueAlert(found map[string][]Issue) error {
	client, err := mail.NewClient(a.cfg.Server,
		mail.WithPort(a.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(a.cfg.Username),
		mail.WithPassword(a.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("github: smtp client: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(a.cfg.From); err != nil {
		return fmt.Errorf("github: from address: %w", err)
	}
	if err := msg.To(a.recipients...); err != nil {
		return fmt.Errorf("github: recipients: %w", err)
	}

	total := 0
	for _, issues := range found {
		total += len(issues)
	}
	msg.Subject(fmt.Sprintf("[scout] %d open issue(s) across %d repositories", total, len(found)))
	msg.SetBodyString(mail.TypeTextPlain, formatAlertBody(found))

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("github: send alert: %w", err)
	}
	return nil
}

// formatAlertBody renders the issue summary with repositories sorted
// by name so repeated alerts diff cleanly.
func formatAlertBody(found map[string][]Issue) string {
	repos := make([]string, 0, len(found))
	for repo := range found {
		repos = append(repos, repo)
	}
	sort.Strings(repos)

	var b strings.Builder
	b.WriteString("Open issues found by scout:\n\n")
	for _, repo := range repos {
		fmt.Fprintf(&b, "%s:\n", repo)
		for _, is := range found[repo] {
			fmt.Fprintf(&b, "  #%d %s", is.Number, is.Title)
			if is.HTMLURL != "" {
				fmt.Fprintf(&b, " (%s)", is.HTMLURL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
