// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/scout/pkg/config"
	"github.com/AleutianAI/scout/pkg/logging"
	"github.com/AleutianAI/scout/pkg/retry"
)

// fakeWriter records writes and fails the call numbers listed in
// failOn (1-based, counting every attempt).
type fakeWriter struct {
	calls   int
	written [][]*write.Point
	failOn  func(call int) bool
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.calls++
	if f.failOn != nil && f.failOn(f.calls) {
		return errors.New("connection refused")
	}
	f.written = append(f.written, points)
	return nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2}
}

func testExporter(w influxWriter) *Exporter {
	return &Exporter{
		outputs:  map[string]bool{OutputInflux: true},
		writer:   w,
		retryCfg: fastRetry(),
		log:      logging.New(logging.Config{Quiet: true}),
	}
}

func makePoints(n int) []*write.Point {
	points := make([]*write.Point, n)
	for i := range points {
		points[i] = NewPoint("test_measurement",
			map[string]string{"repo": "scout"},
			map[string]any{"forks": i})
	}
	return points
}

func TestNewPointCoercesFields(t *testing.T) {
	p := NewPoint("m", map[string]string{"t": "v"}, map[string]any{
		"count":   42,
		"ratio":   0.5,
		"big":     int64(1 << 40),
		"name":    "scout",
		"averse":  struct{ X int }{1},
		"enabled": true,
	})

	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if v, ok := fields["count"].(int64); !ok || v != 42 {
		t.Errorf("count = %T %v, want int64 42", fields["count"], fields["count"])
	}
	if v, ok := fields["ratio"].(float64); !ok || v != 0.5 {
		t.Errorf("ratio = %T %v", fields["ratio"], fields["ratio"])
	}
	if v, ok := fields["name"].(string); !ok || v != "scout" {
		t.Errorf("name = %T %v", fields["name"], fields["name"])
	}
	if _, ok := fields["averse"].(string); !ok {
		t.Errorf("struct field not stringified: %T", fields["averse"])
	}
}

func TestBatches(t *testing.T) {
	batches := Batches(makePoints(25))
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 10 || len(batches[1]) != 10 || len(batches[2]) != 5 {
		t.Errorf("batch sizes = %d/%d/%d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
	if Batches(nil) != nil {
		t.Error("empty input produced batches")
	}
}

func TestExportBatchRetriesTransientFailure(t *testing.T) {
	w := &fakeWriter{failOn: func(call int) bool { return call < 3 }}
	e := testExporter(w)

	if err := e.ExportBatch(context.Background(), makePoints(5)); err != nil {
		t.Fatalf("ExportBatch failed despite retries: %v", err)
	}
	if w.calls != 3 {
		t.Errorf("writer called %d times, want 3", w.calls)
	}
}

func TestExportBatchExhaustsRetries(t *testing.T) {
	w := &fakeWriter{failOn: func(int) bool { return true }}
	e := testExporter(w)

	if err := e.ExportBatch(context.Background(), makePoints(5)); err == nil {
		t.Fatal("permanently failing write reported success")
	}
	if w.calls != 3 {
		t.Errorf("writer called %d times, want 3", w.calls)
	}
}

func TestProcessBatchesNoEarlyAbort(t *testing.T) {
	// Batch 2 fails all its attempts; batches 1 and 3 succeed first try.
	// Attempt numbers: batch1=1, batch2=2,3,4, batch3=5.
	w := &fakeWriter{failOn: func(call int) bool { return call >= 2 && call <= 4 }}
	e := testExporter(w)

	success, failure := e.ProcessBatches(context.Background(), Batches(makePoints(25)))
	if success != 2 || failure != 1 {
		t.Errorf("success=%d failure=%d, want 2/1", success, failure)
	}
	if len(w.written) != 2 {
		t.Errorf("%d batches written, want 2", len(w.written))
	}
}

func TestExportBatchNoWriterIsNoop(t *testing.T) {
	e := &Exporter{outputs: map[string]bool{}, retryCfg: fastRetry(), log: logging.New(logging.Config{Quiet: true})}
	if err := e.ExportBatch(context.Background(), makePoints(3)); err != nil {
		t.Errorf("no-writer export errored: %v", err)
	}
}

func TestExportToPrometheusPushes(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	e := New(config.InfluxDB{}, config.Prometheus{PushgatewayURL: srv.URL}, []string{OutputPrometheus},
		logging.New(logging.Config{Quiet: true}))
	e.retryCfg = fastRetry()

	err := e.ExportToPrometheus(context.Background(), "github_repo_forks", 3,
		map[string]string{"repo": "scout"})
	if err != nil {
		t.Fatalf("ExportToPrometheus failed: %v", err)
	}
	if !strings.Contains(path, "/job/scout") {
		t.Errorf("push path = %q, want default job", path)
	}
	if !strings.Contains(body, "github_repo_forks") {
		t.Errorf("pushed body missing metric:\n%s", body)
	}
}

func TestExportToPrometheusDisabledIsNoop(t *testing.T) {
	e := New(config.InfluxDB{}, config.Prometheus{}, nil, logging.New(logging.Config{Quiet: true}))
	if err := e.ExportToPrometheus(context.Background(), "m", 1, nil); err != nil {
		t.Errorf("disabled push errored: %v", err)
	}
}

func TestExportToPrometheusRetriesAndPropagates(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New(config.InfluxDB{}, config.Prometheus{PushgatewayURL: srv.URL}, []string{OutputPrometheus},
		logging.New(logging.Config{Quiet: true}))
	e.retryCfg = fastRetry()

	if err := e.ExportToPrometheus(context.Background(), "m", 1, nil); err == nil {
		t.Fatal("failing gateway reported success")
	}
	if attempts != 3 {
		t.Errorf("gateway hit %d times, want 3", attempts)
	}
}
