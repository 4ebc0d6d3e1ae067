// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Command-line flags.
var (
	flagGenerateConfig bool
	flagType           string
	flagOutputs        []string
	flagTestEmail      bool
	flagVerbose        bool
	flagDryRun         bool
	flagSchedule       int
	flagLogout         bool
)

const longHelp = `scout polls the GitHub and PyPI APIs for repository and package
metrics, emails you when repositories have open issues, and exports
everything to InfluxDB and/or a Prometheus Pushgateway.

Configuration lives in ~/.scout/config.yaml. API tokens and the SMTP
password are encrypted at rest with a key derived from your master
password (PBKDF2 + Fernet); the derivation salt is ~/.scout/salt.bin.
The master password is cached in your OS keyring for 30 minutes so
back-to-back runs don't re-prompt.

InfluxDB setup: create a bucket and an API token with write access,
then run 'scout -g' and fill in the influxdb section. Points land in
the measurements github_repo_stats and pypi_package_stats.

Prometheus setup: run a Pushgateway and point the pushgateway_url at
it. Each metric is pushed as a gauge under the job "scout".

Examples:
  scout                         track everything, display only
  scout -t github -o influx     GitHub stats into InfluxDB
  scout --schedule 60           daemon mode, one run per hour
  scout --test-email            inject a fake issue to test alerting
  scout --logout                forget the cached master password`

var rootCmd = &cobra.Command{
	Use:           "scout",
	Short:         "Track GitHub and PyPI metrics",
	Long:          longHelp,
	SilenceUsage:  true,
	SilenceErrors: false,
	Args:          cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		switch flagType {
		case "github", "pypi", "all":
		default:
			return fmt.Errorf("invalid --type %q (want github, pypi, or all)", flagType)
		}
		for _, o := range flagOutputs {
			if o != "influx" && o != "prometheus" {
				return fmt.Errorf("invalid --output %q (want influx or prometheus)", o)
			}
		}
		if flagSchedule < 0 {
			return fmt.Errorf("--schedule must be positive, got %d", flagSchedule)
		}
		return nil
	},
	RunE: runRoot,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&flagGenerateConfig, "generate-config", "g", false,
		"create or update the configuration interactively")
	f.StringVarP(&flagType, "type", "t", "all",
		"what to track: github, pypi, or all")
	f.StringArrayVarP(&flagOutputs, "output", "o", nil,
		"export target, repeatable: influx, prometheus")
	f.BoolVar(&flagTestEmail, "test-email", false,
		"inject a synthetic issue to exercise email alerting")
	f.BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")
	f.BoolVar(&flagDryRun, "dry-run", false,
		"collect and display, but do not export or email")
	f.IntVar(&flagSchedule, "schedule", 0,
		"run every N minutes as a daemon (0 = run once)")
	f.BoolVar(&flagLogout, "logout", false,
		"clear the cached master password session and exit")
}
