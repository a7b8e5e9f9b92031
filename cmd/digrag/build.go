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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nekowasabi/digrag/internal/builder"
	"github.com/nekowasabi/digrag/internal/tracing"
)

var buildForce bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "build or incrementally rebuild the index from the configured corpus",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "bypass the diff and rebuild the entire index")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	shutdown, err := tracing.Init(os.Stderr)
	if err != nil {
		return fmt.Errorf("digrag: init tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	docs, err := loadCorpus(cfg)
	if err != nil {
		return err
	}

	ix, tok, err := openEngineAndTokenizer(cfg)
	if err != nil {
		return err
	}

	embedder := newEmbedder(cfg)
	if embedder == nil {
		slog.Warn("no embedding service configured; documents will be bm25-searchable only")
	}

	summary, err := builder.Build(cmd.Context(), ix, tok, embedder, docs, builder.Options{
		Force:     buildForce,
		BatchSize: cfg.EmbedBatchSize,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("digrag: build: %w", err)
	}

	if err := ix.Save(cfg.IndexDir); err != nil {
		return fmt.Errorf("digrag: save index: %w", err)
	}

	fmt.Printf("added=%d removed=%d unchanged=%d embeddings_generated=%d forced_full_rebuild=%v\n",
		summary.Added, summary.Removed, summary.Unchanged, summary.EmbeddingsGenerated, summary.ForcedFullRebuild)
	return nil
}
