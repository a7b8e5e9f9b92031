// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// watch implements the fsnotify-driven rebuild loop of SPEC_FULL.md §11.6:
// on each corpus write event, wait out a 500ms debounce window (coalescing
// a burst of writes from one save) and then run one incremental
// build-then-exit cycle, never holding the index open mid-build across
// iterations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nekowasabi/digrag/internal/builder"
	"github.com/nekowasabi/digrag/internal/config"
	"github.com/nekowasabi/digrag/internal/tracing"
)

const watchDebounce = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch the corpus file and rebuild the index incrementally on change",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	shutdown, err := tracing.Init(os.Stderr)
	if err != nil {
		return fmt.Errorf("digrag: init tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("digrag: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watchDir := filepath.Dir(cfg.CorpusPath)
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("digrag: watch %s: %w", watchDir, err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rebuild := func() {
		if err := runOneWatchBuild(ctx, cfg); err != nil {
			slog.Error("digrag watch: build failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("digrag watch started", slog.String("corpus", cfg.CorpusPath), slog.String("index_dir", cfg.IndexDir))
	rebuild()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			slog.Info("digrag watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(cfg.CorpusPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, rebuild)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("digrag watch: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// runOneWatchBuild is one build-then-exit-build cycle: load the corpus,
// diff against the persisted index, embed what changed, and save. The
// index is never held open across watch iterations (§5 single-writer
// discipline applies per invocation, not across the whole watch loop).
func runOneWatchBuild(ctx context.Context, cfg config.Config) error {
	docs, err := loadCorpus(cfg)
	if err != nil {
		return err
	}

	ix, tok, err := openEngineAndTokenizer(cfg)
	if err != nil {
		return err
	}

	embedder := newEmbedder(cfg)

	summary, err := builder.Build(ctx, ix, tok, embedder, docs, builder.Options{
		BatchSize: cfg.EmbedBatchSize,
		Logger:    slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("digrag: build: %w", err)
	}

	if err := ix.Save(cfg.IndexDir); err != nil {
		return fmt.Errorf("digrag: save index: %w", err)
	}

	slog.Info("digrag watch: rebuild complete",
		slog.Int("added", summary.Added),
		slog.Int("removed", summary.Removed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("embeddings_generated", summary.EmbeddingsGenerated),
	)
	return nil
}
