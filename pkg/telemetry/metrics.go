// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics contains the instruments recorded by origami commands.
//
// All metrics use the "origami_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// OperationsTotal counts environment operations by operation and outcome.
	OperationsTotal metric.Int64Counter

	// OperationDuration records operation duration in seconds.
	OperationDuration metric.Float64Histogram

	// SubprocessRunsTotal counts external commands by command and exit code.
	SubprocessRunsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all instruments registered.
//
// Description:
//
//	Registers the origami instruments with the provided meter. Returns an
//	error if any registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//
// Outputs:
//
//	*Metrics - The initialized instruments.
//	error - Non-nil if registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.OperationsTotal, err = meter.Int64Counter(
		"origami_operations_total",
		metric.WithDescription("Total environment operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations_total: %w", err)
	}

	m.OperationDuration, err = meter.Float64Histogram(
		"origami_operation_duration_seconds",
		metric.WithDescription("Environment operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create operation_duration: %w", err)
	}

	m.SubprocessRunsTotal, err = meter.Int64Counter(
		"origami_subprocess_runs_total",
		metric.WithDescription("Total external commands run"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create subprocess_runs_total: %w", err)
	}

	return m, nil
}

// RecordOperation records one finished operation.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome(err)),
	)
	m.OperationsTotal.Add(ctx, 1, attrs)
	m.OperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSubprocess records one external command run.
func (m *Metrics) RecordSubprocess(ctx context.Context, command string, exitCode int) {
	if m == nil {
		return
	}
	m.SubprocessRunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("exit_code", strconv.Itoa(exitCode)),
	))
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns process-wide instruments bound to the global meter.
//
// Instruments created before Init are forwarded to the provider Init
// installs. Returns nil if registration failed; the Record methods accept
// a nil receiver.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(InstrumentationName))
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
