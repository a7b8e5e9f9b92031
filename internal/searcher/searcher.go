// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package searcher orchestrates BM25, semantic, and hybrid queries over an
// engine.Index (spec §4.6), grounded on the teacher's embedder.go Warm()
// use of golang.org/x/sync/errgroup for bounded concurrent fan-out,
// applied here to joining the BM25 leg and the query-embedding leg of a
// hybrid query instead of warming a tool-embedding cache.
package searcher

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/nekowasabi/digrag/internal/bm25"
	"github.com/nekowasabi/digrag/internal/digragerr"
	"github.com/nekowasabi/digrag/internal/document"
	"github.com/nekowasabi/digrag/internal/engine"
	"github.com/nekowasabi/digrag/internal/fusion"
	"github.com/nekowasabi/digrag/internal/telemetry"
	"github.com/nekowasabi/digrag/internal/tokenizer"
	"github.com/nekowasabi/digrag/internal/tracing"
)

// Mode is a tagged variant of the three query modes (spec §9 "Polymorphism
// by string mode... express as tagged variants internally; the string
// form exists only at the external interface").
type Mode int

const (
	// ModeBM25 runs only the lexical leg.
	ModeBM25 Mode = iota
	// ModeSemantic runs only the embedding leg.
	ModeSemantic
	// ModeHybrid runs both legs and fuses them via RRF.
	ModeHybrid
)

// ParseMode maps the external string form to a Mode. An unrecognised mode
// degrades to ModeHybrid with ok=false, letting the caller log a warning
// per spec §9's "Unknown mode names... degrade to a documented default
// with a warning."
func ParseMode(s string) (mode Mode, ok bool) {
	switch s {
	case "bm25":
		return ModeBM25, true
	case "semantic":
		return ModeSemantic, true
	case "hybrid":
		return ModeHybrid, true
	default:
		return ModeHybrid, false
	}
}

// EmbedQuery embeds a single query string into a dense vector — the
// capability hook spec §4.6 requires ("call the embedding hook to embed
// the query string"). A nil EmbedQuery means semantic capability is
// unavailable.
type EmbedQuery func(ctx context.Context, query string) ([]float32, error)

// RewriteQuery optionally rewrites the raw query string before
// tokenization/embedding (spec §4.6 "query-rewrite hook"). A nil
// RewriteQuery is the identity function.
type RewriteQuery func(ctx context.Context, query string) (string, error)

// Config configures one Search call.
type Config struct {
	Mode      string `validate:"required,oneof=bm25 semantic hybrid"`
	TopK      int    `validate:"required,gt=0"`
	TagFilter string
}

var validate = validator.New()

// Hit is one ranked search result: doc id, 1-based rank, and the
// hydrated Document. The BM25, cosine or fused score is not carried.
type Hit struct {
	DocID    string
	Rank     int
	Document document.Document
}

// Searcher runs queries over a borrowed engine.Index (spec §4.6
// "The Searcher does not own the indexes; it borrows them for the
// duration of a query").
type Searcher struct {
	Index      *engine.Index
	Tokenizer  *tokenizer.Tokenizer
	EmbedQuery EmbedQuery
	Rewrite    RewriteQuery
}

// New constructs a Searcher over idx.
func New(idx *engine.Index, tok *tokenizer.Tokenizer, embed EmbedQuery, rewrite RewriteQuery) *Searcher {
	return &Searcher{Index: idx, Tokenizer: tok, EmbedQuery: embed, Rewrite: rewrite}
}

// Search runs query against s.Index per cfg.Mode (spec §4.6).
//
// Every call is tagged with a fresh correlation id (google/uuid) attached
// to its trace span, for cross-referencing logs and traces of one query.
func (s *Searcher) Search(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("searcher: invalid config: %w", err)
	}
	mode, ok := ParseMode(cfg.Mode)
	if !ok {
		telemetry.Emit(nil, telemetry.Event{Kind: "unknown_mode", Detail: cfg.Mode})
	}

	correlationID := uuid.NewString()
	ctx, span := tracing.Tracer.Start(ctx, "searcher.Search")
	span.SetAttributes(attribute.String("correlation_id", correlationID))
	defer span.End()

	if s.Rewrite != nil {
		rewritten, err := s.Rewrite(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("searcher: rewrite query: %w", err)
		}
		query = rewritten
	}

	telemetry.QueriesTotal.WithLabelValues(cfg.Mode).Inc()

	switch mode {
	case ModeBM25:
		return s.searchBM25(ctx, query, cfg)
	case ModeSemantic:
		return s.searchSemantic(ctx, query, cfg)
	default:
		return s.searchHybrid(ctx, query, cfg)
	}
}

func (s *Searcher) searchBM25(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	_, span := tracing.Tracer.Start(ctx, "searcher.bm25")
	defer span.End()

	tokens := s.Tokenizer.Tokenize(query)
	hits := s.Index.BM25.Query(tokens, cfg.TopK, s.Index.Docstore, cfg.TagFilter)
	return s.hydrate(bm25ToRanked(hits), cfg), nil
}

func (s *Searcher) searchSemantic(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	if s.EmbedQuery == nil {
		return nil, digragerr.ErrCapabilityMissing
	}
	_, span := tracing.Tracer.Start(ctx, "searcher.semantic")
	defer span.End()

	qv, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searcher: embed query: %w", err)
	}
	hits := s.Index.Vector.Query(qv, cfg.TopK)
	ranked := make([]fusion.Ranked, len(hits))
	for i, h := range hits {
		ranked[i] = fusion.Ranked{ID: h.DocID}
	}
	return s.hydrate(ranked, cfg), nil
}

func (s *Searcher) searchHybrid(ctx context.Context, query string, cfg Config) ([]Hit, error) {
	ctx, span := tracing.Tracer.Start(ctx, "searcher.hybrid")
	defer span.End()

	var bm25Ranked, semanticRanked []fusion.Ranked
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, span := tracing.Tracer.Start(gctx, "searcher.hybrid.bm25")
		defer span.End()
		tokens := s.Tokenizer.Tokenize(query)
		hits := s.Index.BM25.Query(tokens, cfg.TopK, s.Index.Docstore, "")
		bm25Ranked = bm25ToRanked(hits)
		return nil
	})

	g.Go(func() error {
		if s.EmbedQuery == nil {
			return nil
		}
		_, span := tracing.Tracer.Start(gctx, "searcher.hybrid.semantic")
		defer span.End()
		qv, err := s.EmbedQuery(gctx, query)
		if err != nil {
			return fmt.Errorf("searcher: embed query: %w", err)
		}
		hits := s.Index.Vector.Query(qv, cfg.TopK)
		for _, h := range hits {
			semanticRanked = append(semanticRanked, fusion.Ranked{ID: h.DocID})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	_, fuseSpan := tracing.Tracer.Start(ctx, "searcher.hybrid.fuse")
	fused := fusion.Combine(bm25Ranked, semanticRanked)
	fuseSpan.End()

	ranked := make([]fusion.Ranked, len(fused))
	for i, f := range fused {
		ranked[i] = fusion.Ranked{ID: f.ID}
	}
	return s.hydrate(ranked, cfg), nil
}

// hydrate hydrates a ranked id list against the docstore, applying
// cfg.TagFilter as a post-filter (spec §4.6 "apply tag_filter as a
// post-filter to the fused list"), truncating to cfg.TopK.
func (s *Searcher) hydrate(ranked []fusion.Ranked, cfg Config) []Hit {
	out := make([]Hit, 0, len(ranked))
	rank := 0
	for _, r := range ranked {
		doc, ok := s.Index.Docstore.Get(r.ID)
		if !ok {
			continue
		}
		if cfg.TagFilter != "" && !doc.HasTag(cfg.TagFilter) {
			continue
		}
		rank++
		out = append(out, Hit{DocID: r.ID, Rank: rank, Document: doc})
		if cfg.TopK > 0 && len(out) >= cfg.TopK {
			break
		}
	}
	return out
}

func bm25ToRanked(hits []bm25.Hit) []fusion.Ranked {
	ranked := make([]fusion.Ranked, len(hits))
	for i, h := range hits {
		ranked[i] = fusion.Ranked{ID: h.DocID}
	}
	return ranked
}
