// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry tracing and metrics for origami.
//
// Origami is a short-lived CLI, so both signals are opt-in and flushed when
// the command exits. Nothing is exported unless the configuration enables it.
//
// # Trace Exporters
//
//   - "none" (default): spans are created against the no-op provider
//   - "stdout": spans are pretty-printed to stderr when the command exits
//   - "otlp": spans are pushed over gRPC to an OTLP collector
//
// # Metric Exporters
//
//   - "none" (default)
//   - "stdout": metrics are printed to stderr on exit
//   - "prometheus": metrics are collected into a private registry and
//     written in the node_exporter textfile format to MetricsFile on exit
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
//	ctx, span := telemetry.StartSpan(ctx, "lifecycle.Start")
//	defer span.End()
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
