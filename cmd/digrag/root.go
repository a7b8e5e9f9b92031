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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nekowasabi/digrag/internal/config"
	"github.com/nekowasabi/digrag/internal/document"
	"github.com/nekowasabi/digrag/internal/embedclient"
	"github.com/nekowasabi/digrag/internal/engine"
	"github.com/nekowasabi/digrag/internal/loader"
	"github.com/nekowasabi/digrag/internal/tokenizer"
)

var (
	configPath      string
	corpusFlag      string
	indexDirFlag    string
	corpusFormat    string
	embeddingURL    string
	embeddingModel  string
	chatURL         string
	chatModel       string
)

var rootCmd = &cobra.Command{
	Use:   "digrag",
	Short: "hybrid lexical + semantic retrieval over a changelog/memo corpus",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a digrag.yaml config file")
	rootCmd.PersistentFlags().StringVar(&corpusFlag, "corpus", "", "corpus file path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&indexDirFlag, "index-dir", "", "index artifact directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&corpusFormat, "format", "auto", "corpus format: jsonl, changelog, or auto (by file extension)")
	rootCmd.PersistentFlags().StringVar(&embeddingURL, "embedding-url", "", "embedding service URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&embeddingModel, "embedding-model", "", "embedding model name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&chatURL, "chat-url", "", "chat-completions service URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&chatModel, "chat-model", "", "chat-completions model name (overrides config)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadEngineConfig resolves a config.Config from the persistent flags,
// environment, and optional YAML file per internal/config's merge
// precedence.
func loadEngineConfig() (config.Config, error) {
	return config.Load(configPath, config.Overrides{
		CorpusPath:          corpusFlag,
		IndexDir:            indexDirFlag,
		EmbeddingServiceURL: embeddingURL,
		EmbeddingModel:      embeddingModel,
		ChatServiceURL:      chatURL,
		ChatModel:           chatModel,
	})
}

// loadCorpus reads and parses cfg.CorpusPath, auto-detecting the format
// from the file extension unless corpusFormat overrides it.
func loadCorpus(cfg config.Config) ([]document.Document, error) {
	f, err := os.Open(cfg.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("digrag: open corpus %s: %w", cfg.CorpusPath, err)
	}
	defer func() { _ = f.Close() }()

	format := corpusFormat
	if format == "" || format == "auto" {
		if strings.HasSuffix(cfg.CorpusPath, ".jsonl") || strings.HasSuffix(cfg.CorpusPath, ".json") {
			format = "jsonl"
		} else {
			format = "changelog"
		}
	}

	var report loader.Report
	switch format {
	case "jsonl":
		report = loader.LoadJSONL(f)
	case "changelog":
		report = loader.LoadChangelog(f)
	default:
		return nil, fmt.Errorf("digrag: unknown corpus format %q", format)
	}

	for _, perr := range report.Errors {
		fmt.Fprintf(os.Stderr, "digrag: skipped corpus record: %s\n", perr.Error())
	}
	return report.Documents, nil
}

// openEngineAndTokenizer loads the persisted index (if any) and constructs
// a fresh tokenizer, both needed by build and query.
func openEngineAndTokenizer(cfg config.Config) (*engine.Index, *tokenizer.Tokenizer, error) {
	ix, err := engine.Load(cfg.IndexDir)
	if err != nil {
		return nil, nil, fmt.Errorf("digrag: load index: %w", err)
	}
	tok, err := tokenizer.New()
	if err != nil {
		return nil, nil, fmt.Errorf("digrag: build tokenizer: %w", err)
	}
	return ix, tok, nil
}

// newEmbedder constructs an embedclient.Client from cfg, or nil when no
// embedding service URL is configured (bm25-only mode).
func newEmbedder(cfg config.Config) *embedclient.Client {
	if cfg.EmbeddingServiceURL == "" {
		return nil
	}
	return embedclient.New(cfg.EmbeddingServiceURL, cfg.EmbeddingModel, cfg.EmbeddingToken, cfg.EmbedFanout, cfg.MaxAttempts)
}

