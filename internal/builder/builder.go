// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builder implements the incremental build pipeline of spec §4.9:
// diff against stored metadata, selective re-embedding, and the metadata
// rewrite. Build does not write artifacts to disk; callers persist the
// result with engine.Index.Save. Diff computation is grounded on the teacher's
// services/trace/graph/snapshot_diff.go (added/removed/modified id-set
// buckets, deterministic sorted output); the embedding fan-out with
// halving-retry-to-floor-1 is grounded on embedder.go's Warm() bounded
// concurrency, generalized to decreasing batch size on failure instead of
// a fixed worker count. Batches are sent one at a time, not concurrently.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nekowasabi/digrag/internal/document"
	"github.com/nekowasabi/digrag/internal/engine"
	"github.com/nekowasabi/digrag/internal/persist"
	"github.com/nekowasabi/digrag/internal/telemetry"
	"github.com/nekowasabi/digrag/internal/tokenizer"
	"github.com/nekowasabi/digrag/internal/tracing"
)

// minSchemaVersion is the oldest schema_version an incremental build will
// trust; anything older forces a full rebuild (spec §4.9 "A schema_version
// older than '2.0'... unconditionally triggers a full rebuild").
const minSchemaVersion = "2.0"

// Diff is the added/modified/removed/unchanged bucketing of spec §4.9.
type Diff struct {
	Added     []document.Document
	Modified  []document.Document // always empty under the id==hash invariant; see DESIGN.md
	Removed   []string
	Unchanged []string
}

// Embedder is the "strings → vectors" capability contract the builder
// consumes for the added+modified set (spec §9). A nil Embedder leaves
// every new document BM25-searchable but without a semantic vector.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures one Build call.
type Options struct {
	// Force bypasses the diff and treats every document in D as added,
	// after clearing the existing index (spec §4.9 "force flag").
	Force bool

	// BatchSize bounds one embedding request's document count. Halved on
	// failure down to a floor of 1 (spec §4.9 step 3).
	BatchSize int

	Logger *slog.Logger
}

// Summary is the record the builder publishes for the caller to log
// (spec §4.9 "publishes a summary record").
type Summary struct {
	Added               int
	Modified            int
	Removed             int
	Unchanged           int
	EmbeddingsGenerated int
	ForcedFullRebuild    bool
}

// Build runs the incremental pipeline against idx, embedding with
// embedder (nil disables the semantic leg), and returns the summary
// record. idx is mutated in place; idx.BeginWrite/EndWrite bracket the
// whole call to enforce the single-writer discipline of spec §5.
func Build(ctx context.Context, idx *engine.Index, tok *tokenizer.Tokenizer, embedder Embedder, docs []document.Document, opts Options) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = 32
	}

	idx.BeginWrite()
	defer idx.EndWrite()

	ctx, span := tracing.Tracer.Start(ctx, "builder.Build")
	defer span.End()

	start := timeNow()
	meta := idx.Metadata()

	force := opts.Force
	if meta.SchemaVersion != "" && meta.SchemaVersion < minSchemaVersion {
		force = true
		telemetry.ForcedRebuildTotal.Inc()
		telemetry.Emit(logger, telemetry.Event{Kind: "forced_rebuild", Detail: "schema_version " + meta.SchemaVersion + " < " + minSchemaVersion})
	}

	var diff Diff
	if force {
		added := append([]document.Document{}, docs...)
		sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
		diff = Diff{Added: added}
		clearIndex(idx)
		meta.DocHashes = make(map[string]string)
	} else {
		diff = computeDiff(docs, meta.DocHashes)
	}

	_, diffSpan := tracing.Tracer.Start(ctx, "builder.diff")
	diffSpan.End()

	// Step 1: removals precede insertions (spec §4.9 application order).
	for _, id := range diff.Removed {
		idx.Docstore.Remove(id)
		idx.BM25.Remove(id)
		idx.Vector.Remove(id)
		delete(meta.DocHashes, id)
	}

	// Step 2: Docstore.insert, BM25.insert for added ∪ modified.
	_, tokenizeSpan := tracing.Tracer.Start(ctx, "builder.tokenize")
	toEmbed := append(append([]document.Document{}, diff.Added...), diff.Modified...)
	for _, doc := range toEmbed {
		idx.Docstore.Insert(doc)
		embeddingText := tokenizer.BuildEmbeddingText(doc.Title, doc.Tags, doc.Text)
		idx.BM25.Insert(doc.ID, tok.Tokenize(embeddingText))
		meta.DocHashes[doc.ID] = doc.ID
	}
	tokenizeSpan.End()

	// Step 3-4: batch-embed toEmbed, add successful vectors.
	embeddingsGenerated := 0
	if embedder != nil && len(toEmbed) > 0 {
		_, embedSpan := tracing.Tracer.Start(ctx, "builder.embed")
		generated, dim, err := embedInBatches(ctx, embedder, idx, toEmbed, batchSize, logger)
		embedSpan.End()
		if err != nil {
			return Summary{}, err
		}
		embeddingsGenerated = generated
		if dim > 0 {
			meta.EmbeddingDim = &dim
		}
	}
	telemetry.EmbeddingsGenerated.Add(float64(embeddingsGenerated))

	// Step 5: rewrite metadata.
	meta.SchemaVersion = persist.CurrentSchemaVersion
	meta.BuiltAt = start
	idx.SetMetadata(meta)

	summary := Summary{
		Added:                len(diff.Added),
		Modified:             len(diff.Modified),
		Removed:              len(diff.Removed),
		Unchanged:            len(diff.Unchanged),
		EmbeddingsGenerated:  embeddingsGenerated,
		ForcedFullRebuild:    force,
	}
	telemetry.BuildDuration.Observe(timeSince(start).Seconds())
	logger.Info("digrag build complete",
		slog.Int("added", summary.Added),
		slog.Int("modified", summary.Modified),
		slog.Int("removed", summary.Removed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("embeddings_generated", summary.EmbeddingsGenerated),
		slog.Bool("forced_full_rebuild", summary.ForcedFullRebuild),
	)
	return summary, nil
}

// computeDiff buckets docs against the previously stored doc_hashes (spec
// §4.9). Modified is always empty under the id==hash invariant (see
// DESIGN.md's Open Question resolution); the field is kept for schema
// fidelity.
func computeDiff(docs []document.Document, priorHashes map[string]string) Diff {
	seen := make(map[string]bool, len(docs))
	var added []document.Document
	for _, doc := range docs {
		seen[doc.ID] = true
		if _, ok := priorHashes[doc.ID]; !ok {
			added = append(added, doc)
		}
	}

	var removed, unchanged []string
	for id := range priorHashes {
		if !seen[id] {
			removed = append(removed, id)
		} else {
			unchanged = append(unchanged, id)
		}
	}
	sort.Strings(removed)
	sort.Strings(unchanged)
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })

	return Diff{Added: added, Removed: removed, Unchanged: unchanged}
}

func clearIndex(idx *engine.Index) {
	for _, id := range idx.Docstore.IDs() {
		idx.Docstore.Remove(id)
		idx.BM25.Remove(id)
		idx.Vector.Remove(id)
	}
}

// embedInBatches batches toEmbed into requests of batchSize texts,
// halving on failure down to a floor of 1 (spec §4.9 step 3). A document
// left without a vector after a floor-1 failure stays BM25-searchable;
// its failure is logged and telemetry-counted, not propagated.
func embedInBatches(ctx context.Context, embedder Embedder, idx *engine.Index, docs []document.Document, batchSize int, logger *slog.Logger) (generated int, dim int, err error) {
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		n, d, embedErr := embedBatchWithRetry(ctx, embedder, idx, batch, logger)
		if embedErr != nil {
			return generated, dim, embedErr
		}
		generated += n
		if d > 0 {
			dim = d
		}
	}
	return generated, dim, nil
}

func embedBatchWithRetry(ctx context.Context, embedder Embedder, idx *engine.Index, batch []document.Document, logger *slog.Logger) (generated int, dim int, err error) {
	size := len(batch)
	for size >= 1 {
		texts := make([]string, size)
		for i := 0; i < size; i++ {
			doc := batch[i]
			texts[i] = tokenizer.BuildEmbeddingText(doc.Title, doc.Tags, doc.Text)
		}
		vecs, embedErr := embedder.EmbedBatch(ctx, texts)
		if embedErr == nil {
			for i := 0; i < size; i++ {
				if err := idx.Vector.Add(batch[i].ID, vecs[i]); err != nil {
					return generated, dim, fmt.Errorf("builder: add vector for %s: %w", batch[i].ID, err)
				}
				dim = len(vecs[i])
			}
			generated += size
			batch = batch[size:]
			if len(batch) == 0 {
				return generated, dim, nil
			}
			size = len(batch)
			continue
		}

		telemetry.EmbeddingBatchFailures.Inc()
		telemetry.Emit(logger, telemetry.Event{Kind: "embedding_batch_failure", Detail: embedErr.Error()})

		if size == 1 {
			// floor reached: leave this one document without a vector
			// and move on (spec §4.9 step 3 "that document is left
			// without a semantic vector").
			batch = batch[1:]
			if len(batch) == 0 {
				return generated, dim, nil
			}
			size = len(batch)
			continue
		}
		size /= 2
	}
	return generated, dim, nil
}

// timeNow returns the current time in UTC (stamped as built_at) and
// timeSince the elapsed time since t (observed as the build duration).
func timeNow() time.Time                  { return time.Now().UTC() }
func timeSince(t time.Time) time.Duration { return time.Since(t) }
