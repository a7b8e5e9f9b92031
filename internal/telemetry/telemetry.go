// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exposes the Prometheus counters and histograms
// referenced by spec §4.8/§4.9's "telemetry event" and "summary record"
// language, grounded on the teacher's promauto-style metric declarations
// in services/trace/agent/routing/prefilter.go.
package telemetry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmbeddingsGenerated counts vectors successfully produced during a
	// build (spec §4.9 "embeddings_generated").
	EmbeddingsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "digrag",
		Name:      "embeddings_generated_total",
		Help:      "Total embedding vectors successfully generated across all builds",
	})

	// QueriesTotal counts searches by mode (spec §4.6 "mode ∈ {bm25,
	// semantic, hybrid}").
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "digrag",
		Name:      "queries_total",
		Help:      "Total searches, labeled by mode",
	}, []string{"mode"})

	// LLMFallbackTotal counts LLM summarizer calls that fell back to the
	// rule-based path (spec §4.8).
	LLMFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "digrag",
		Name:      "llm_fallback_total",
		Help:      "Total LLM summarizer calls that fell back to the rule-based path",
	})

	// BuildDuration observes the wall-clock time of every build call,
	// incremental or forced (spec §4.9).
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "digrag",
		Name:      "build_duration_seconds",
		Help:      "Incremental build wall-clock duration",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// EmbeddingBatchFailures counts failed embedding batch requests: those
	// retried at half size and those at size 1 whose document is then left
	// without a vector (spec §4.9 step 3).
	EmbeddingBatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "digrag",
		Name:      "embedding_batch_failures_total",
		Help:      "Total embedding batch requests that failed (retried at half size, or skipped at size 1)",
	})

	// ForcedRebuildTotal counts builds that were forced to a full rebuild
	// by an outdated schema_version (spec §4.9).
	ForcedRebuildTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "digrag",
		Name:      "forced_rebuild_total",
		Help:      "Total builds forced to a full rebuild by an outdated schema_version",
	})
)

// Event is a structured telemetry event emitted alongside a metric
// increment, logged at Warn per the teacher's slog conventions.
type Event struct {
	Kind    string
	Detail  string
	DocID   string
}

// Emit logs ev at Warn. Callers increment the matching counter themselves
// at the call site so the metric and the log always agree on meaning.
func Emit(logger *slog.Logger, ev Event) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("digrag telemetry event",
		slog.String("kind", ev.Kind),
		slog.String("detail", ev.Detail),
		slog.String("doc_id", ev.DocID),
	)
}
