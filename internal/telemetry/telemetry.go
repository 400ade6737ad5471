// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the process-wide otel tracer/meter providers.
// Spans wrap indexing, search, and bundle operations (package-level
// otel.Tracer calls in internal/indexing, internal/hybridsearch, and
// internal/bundle); this package only owns provider setup and shutdown.
//
// Only the stdout exporters are ever used — never otlptracegrpc/otlptrace,
// since those dial a network collector and this tool runs under an
// egress-denial policy. When tracing is disabled, Setup leaves otel's
// global no-op providers in place, so every Tracer()/Meter() call site
// stays cheap and side-effect-free by default.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module's spans/instruments in the
// exported trace/metric streams.
const instrumentationName = "github.com/securamem/smem"

// Shutdown flushes and releases whatever providers Setup installed. Safe to
// call even when tracing was never enabled.
type Shutdown func(ctx context.Context) error

// Setup installs stdout-exporting tracer and meter providers when enabled
// is true (the CLI's --trace flag), writing to w. When enabled is false, it
// is a no-op: otel's default global providers (no-op tracer, no-op meter)
// stay in place.
func Setup(enabled bool, w io.Writer) (Shutdown, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(traceExp))
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(metricExp)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
		}
		return nil
	}, nil
}

// Tracer returns this module's shared tracer. Call sites use it exactly as
// the teacher's providers package does: a package-level Start, deferred
// span.End, span.RecordError+SetStatus on failure.
func Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// Meter returns this module's shared meter for recording counters and
// histograms alongside the prometheus-backed health rollup.
func Meter() metric.Meter { return otel.Meter(instrumentationName) }
