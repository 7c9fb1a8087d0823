// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for artifact edits.
var (
	tracer = otel.Tracer("whitelabel.editor")
	meter  = otel.Meter("whitelabel.editor")
)

var (
	editsTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		editsTotal, metricsErr = meter.Int64Counter(
			"whitelabel_artifact_edits_total",
			metric.WithDescription("Declaration edits by outcome"),
		)
	})
	return metricsErr
}

// startApplySpan creates a span for one artifact edit.
func startApplySpan(ctx context.Context, path string, preview bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Editor.Apply",
		trace.WithAttributes(
			attribute.String("artifact.path", path),
			attribute.Bool("artifact.preview", preview),
		),
	)
}

// recordEdit counts one declaration edit.
func recordEdit(ctx context.Context, kind string, action Action) {
	if err := initMetrics(); err != nil {
		return
	}
	editsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("action", action.String()),
	))
}
