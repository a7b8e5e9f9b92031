// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracing wires an OpenTelemetry TracerProvider with a stdout
// exporter (no collector transport — spec's Non-goals exclude a serving
// surface, but ambient observability is carried regardless per the
// teacher's otel.Tracer usage in services/trace/agent/routing/prefilter.go).
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the package-wide tracer used by the builder and searcher for
// their phase/leg spans.
var Tracer trace.Tracer = otel.Tracer("digrag")

// Init installs a TracerProvider exporting spans as pretty-printed JSON
// to w. Returns a shutdown func the caller must invoke before exit.
func Init(w io.Writer) (shutdown func(context.Context) error, err error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	Tracer = otel.Tracer("digrag")

	return tp.Shutdown, nil
}
