// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("whitelabel.patch")
	meter  = otel.Meter("whitelabel.patch")
)

var (
	patchesTotal    metric.Int64Counter
	emptyDiffsTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		patchesTotal, err = meter.Int64Counter(
			"whitelabel_patches_total",
			metric.WithDescription("Patch files written"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		emptyDiffsTotal, err = meter.Int64Counter(
			"whitelabel_empty_diffs_total",
			metric.WithDescription("Packages whose diff was empty"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startPatchSpan(ctx context.Context, pkg string, mode Mode) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Synthesizer."+mode.String(),
		trace.WithAttributes(
			attribute.String("patch.package", pkg),
			attribute.String("patch.mode", mode.String()),
		),
	)
}

func recordPatch(ctx context.Context, mode Mode, empty bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode.String()))
	if empty {
		emptyDiffsTotal.Add(ctx, 1, attrs)
		return
	}
	patchesTotal.Add(ctx, 1, attrs)
}
