// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nekowasabi/digrag/internal/searcher"
	"github.com/nekowasabi/digrag/internal/tracing"
)

var (
	queryMode string
	queryTopK int
	queryTag  string
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "run a single search against the built index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryMode, "mode", "hybrid", "search mode: bm25, semantic, or hybrid")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 10, "maximum results to return")
	queryCmd.Flags().StringVar(&queryTag, "tag", "", "restrict results to documents carrying this tag")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	shutdown, err := tracing.Init(os.Stderr)
	if err != nil {
		return fmt.Errorf("digrag: init tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ix, tok, err := openEngineAndTokenizer(cfg)
	if err != nil {
		return err
	}

	var embedQuery searcher.EmbedQuery
	if embedder := newEmbedder(cfg); embedder != nil {
		embedQuery = func(ctx context.Context, query string) ([]float32, error) {
			vecs, err := embedder.EmbedBatch(ctx, []string{query})
			if err != nil {
				return nil, err
			}
			if len(vecs) == 0 {
				return nil, fmt.Errorf("digrag: embedding service returned no vector for query")
			}
			return vecs[0], nil
		}
	}

	s := searcher.New(ix, tok, embedQuery, nil)
	query := strings.Join(args, " ")

	hits, err := s.Search(cmd.Context(), query, searcher.Config{
		Mode:      queryMode,
		TopK:      queryTopK,
		TagFilter: queryTag,
	})
	if err != nil {
		return fmt.Errorf("digrag: search: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("no results")
		return nil
	}
	for _, h := range hits {
		fmt.Printf("%d. [%s] %s (tags: %s)\n", h.Rank, h.DocID, h.Document.Title, strings.Join(h.Document.Tags, ", "))
	}
	return nil
}
