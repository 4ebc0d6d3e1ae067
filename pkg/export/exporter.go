// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export ships collected metrics to InfluxDB and a Prometheus
// Pushgateway.
//
// Influx writes go out in small batches, each retried independently; a
// dead batch never stops the ones behind it. Prometheus pushes build a
// fresh registry per metric so a gauge that stops being reported
// doesn't linger at its last value inside a shared registry.
package export

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/AleutianAI/scout/pkg/config"
	"github.com/AleutianAI/scout/pkg/logging"
	"github.com/AleutianAI/scout/pkg/retry"
)

// BatchSize is how many points ride in one Influx write.
const BatchSize = 10

const defaultPromJob = "scout"

// Output names as given to --output.
const (
	OutputInflux     = "influx"
	OutputPrometheus = "prometheus"
)

// influxWriter is the slice of the blocking write API the exporter
// uses; tests substitute a recorder.
type influxWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Exporter writes metric points to the configured outputs.
type Exporter struct {
	outputs  map[string]bool
	influx   config.InfluxDB
	prom     config.Prometheus
	client   influxdb2.Client
	writer   influxWriter
	gateway  string
	retryCfg retry.Config
	log      *logging.Logger
}

// New builds an Exporter for the requested outputs. Outputs that are
// requested but unconfigured are silently absent: callers filter those
// before getting here.
func New(influxCfg config.InfluxDB, promCfg config.Prometheus, outputs []string, log *logging.Logger) *Exporter {
	if log == nil {
		log = logging.Default()
	}
	e := &Exporter{
		outputs:  make(map[string]bool, len(outputs)),
		influx:   influxCfg,
		prom:     promCfg,
		gateway:  promCfg.PushgatewayURL,
		retryCfg: retry.DefaultConfig(),
		log:      log,
	}
	for _, o := range outputs {
		e.outputs[o] = true
	}
	if e.outputs[OutputInflux] && influxCfg.URL != "" {
		e.client = influxdb2.NewClient(influxCfg.URL, influxCfg.Token)
		e.writer = e.client.WriteAPIBlocking(influxCfg.Org, influxCfg.Bucket)
	}
	return e
}

// Close releases the Influx client's idle connections.
func (e *Exporter) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

// InfluxEnabled reports whether Influx writes will happen.
func (e *Exporter) InfluxEnabled() bool { return e.writer != nil }

// PrometheusEnabled reports whether Pushgateway pushes will happen.
func (e *Exporter) PrometheusEnabled() bool {
	return e.outputs[OutputPrometheus] && e.gateway != ""
}

// NewPoint builds an Influx point. Numeric field values keep their
// type; everything else is stringified so a stray struct can't poison
// a line-protocol write.
func NewPoint(measurement string, tags map[string]string, fields map[string]any) *write.Point {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, bool:
			clean[k] = v
		default:
			clean[k] = fmt.Sprint(v)
		}
	}
	return influxdb2.NewPoint(measurement, tags, clean, time.Now())
}

// Batches slices points into BatchSize groups for ProcessBatches.
func Batches(points []*write.Point) [][]*write.Point {
	var batches [][]*write.Point
	for len(points) > 0 {
		n := min(BatchSize, len(points))
		batches = append(batches, points[:n])
		points = points[n:]
	}
	return batches
}

// ExportBatch writes one batch to Influx, retrying transient failures.
// Exhausted retries propagate to the caller.
func (e *Exporter) ExportBatch(ctx context.Context, points []*write.Point) error {
	if e.writer == nil {
		return nil
	}
	return retry.Do(ctx, e.retryCfg, func(ctx context.Context) error {
		return e.writer.WritePoint(ctx, points...)
	})
}

// ProcessBatches attempts every batch regardless of earlier failures
// and reports how many succeeded and failed.
func (e *Exporter) ProcessBatches(ctx context.Context, batches [][]*write.Point) (success, failure int) {
	for i, batch := range batches {
		if err := e.ExportBatch(ctx, batch); err != nil {
			e.log.Error("influx batch failed", "batch", i+1, "points", len(batch), "error", err)
			failure++
			continue
		}
		success++
	}
	e.log.Info("influx export complete", "batches_ok", success, "batches_failed", failure)
	return success, failure
}

// ExportToPrometheus pushes one gauge to the Pushgateway. Each call
// uses a fresh registry so nothing accumulates between metrics. No-op
// when Prometheus output is off.
func (e *Exporter) ExportToPrometheus(ctx context.Context, metric string, value float64, labels map[string]string) error {
	if !e.PrometheusEnabled() {
		return nil
	}

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        metric,
		Help:        "scout exported metric",
		ConstLabels: labels,
	})
	registry.MustRegister(gauge)
	gauge.Set(value)

	job := e.prom.Job
	if job == "" {
		job = defaultPromJob
	}
	pusher := push.New(e.gateway, job).Gatherer(registry)
	return retry.Do(ctx, e.retryCfg, func(context.Context) error {
		return pusher.Push()
	})
}
