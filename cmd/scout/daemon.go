// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/AleutianAI/scout/pkg/logging"
)

// cronLogger adapts our logger to cron's logging interface.
type cronLogger struct {
	log *logging.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug(msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error(msg, append(kv, "error", err)...)
}

// runDaemon runs collection every interval minutes until interrupted.
//
// Jobs are strictly sequential: DelayIfStillRunning holds the next
// tick until the previous run finishes, and a run that overlaps
// several ticks only delays them, never stacks them. Config edits are
// noticed by an fsnotify watcher and applied at the start of the next
// job, so a run never changes configuration midway through.
func (a *app) runDaemon(ctx context.Context, interval int) error {
	var dirty atomic.Bool
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		a.log.Warn("config watcher unavailable, edits need a restart", "error", err)
	} else {
		defer watcher.Close()
		// Watch the directory: editors replace the file, which would
		// silently detach a watch on the file itself.
		if err := watcher.Add(filepath.Dir(a.loader.ConfigPath)); err != nil {
			a.log.Warn("cannot watch config directory", "error", err)
		}
		go func() {
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if ev.Name == a.loader.ConfigPath &&
						ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
						a.log.Info("config change detected", "op", ev.Op.String())
						dirty.Store(true)
					}
				case werr, ok := <-watcher.Errors:
					if !ok {
						return
					}
					a.log.Warn("config watcher error", "error", werr)
				}
			}
		}()
	}

	// A failed reload is fatal: limping on with a config the user
	// already replaced would export stale or wrong metrics.
	reloadErr := make(chan error, 1)
	job := func() {
		if dirty.Swap(false) {
			if err := a.reload(); err != nil {
				select {
				case reloadErr <- err:
				default:
				}
				return
			}
			a.console.Info("configuration reloaded")
		}
		if err := a.runOnce(ctx); err != nil {
			a.log.Error("scheduled run failed", "error", err)
			a.console.Error("run failed: %v", err)
		}
	}

	scheduler := cron.New(cron.WithChain(cron.DelayIfStillRunning(cronLogger{a.log})))
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %dm", interval), job); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	a.console.Info("daemon mode: running every %d minute(s), Ctrl-C to stop", interval)
	job()
	select {
	case err := <-reloadErr:
		return err
	default:
	}
	scheduler.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-reloadErr:
		<-scheduler.Stop().Done()
		return err
	case s := <-sig:
		a.log.Info("signal received, shutting down", "signal", s.String())
		<-scheduler.Stop().Done()
		a.console.Print("stopped")
		return nil
	case <-ctx.Done():
		<-scheduler.Stop().Done()
		return ctx.Err()
	}
}
