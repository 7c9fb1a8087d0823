// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("whitelabel.pipeline")
	meter  = otel.Meter("whitelabel.pipeline")
)

var (
	runsTotal    metric.Int64Counter
	stepDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"whitelabel_runs_total",
			metric.WithDescription("Pipeline runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepDuration, err = meter.Float64Histogram(
			"whitelabel_step_duration_seconds",
			metric.WithDescription("Duration of each pipeline step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, outcome string, preview bool) {
	if err := initMetrics(); err != nil {
		return
	}
	runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("preview", preview),
	))
}

func recordStep(ctx context.Context, step string, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	stepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("step", step)))
}
