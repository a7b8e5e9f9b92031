// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads engine configuration with merge precedence
// caller-argument > environment variable > YAML file > default, grounded
// on the teacher's services/trace/config/prefilter_config.go (yaml.v3
// decode into a validated struct). Secrets (bearer tokens for the
// embedding/chat collaborators) are held in memguard locked buffers so
// they never sit as plain strings in process memory or get logged.
package config

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Secret wraps a memguard-locked credential. The zero value is "unset".
type Secret struct {
	buf *memguard.LockedBuffer
}

// NewSecret copies plaintext into a locked buffer; the intermediate byte
// copy is wiped, the plaintext string argument itself is not.
// Safe to call with an empty string (produces an unset Secret).
func NewSecret(plaintext string) Secret {
	if plaintext == "" {
		return Secret{}
	}
	buf := memguard.NewBufferFromBytes([]byte(plaintext))
	return Secret{buf: buf}
}

// IsSet reports whether a credential was supplied.
func (s Secret) IsSet() bool {
	return s.buf != nil && s.buf.Size() > 0
}

// Reveal returns the plaintext for exactly as long as it takes to attach it
// to an outbound request header. Callers must not retain the returned
// string beyond that use.
func (s Secret) Reveal() string {
	if s.buf == nil {
		return ""
	}
	return string(s.buf.Bytes())
}

// Config is the merged engine configuration.
type Config struct {
	// CorpusPath points at the line-delimited JSON or change-log text
	// corpus to load (spec §6).
	CorpusPath string `yaml:"corpus_path" validate:"required"`

	// IndexDir is the directory holding the four persisted artifacts
	// (spec §6 "On-disk index layout").
	IndexDir string `yaml:"index_dir" validate:"required"`

	// EmbeddingServiceURL is the embeddings collaborator endpoint.
	EmbeddingServiceURL string `yaml:"embedding_service_url"`

	// EmbeddingModel names the model sent in embedding requests.
	EmbeddingModel string `yaml:"embedding_model" validate:"required_with=EmbeddingServiceURL"`

	// ChatServiceURL is the chat-completions collaborator endpoint used by
	// the LLM summarizer path (spec §4.8).
	ChatServiceURL string `yaml:"chat_service_url"`

	// ChatModel names the model sent in chat-completions requests.
	ChatModel string `yaml:"chat_model"`

	// EmbedFanout sets the embedding client's request rate per second and
	// burst, and the concurrency of embedclient.Client.EmbedMany (default
	// 4). The builder sends its embedding batches one at a time.
	EmbedFanout int `yaml:"embed_fanout" validate:"gte=1"`

	// EmbedBatchSize is the starting batch size for embedding requests
	// before the halving-retry floor of 1 (spec §4.9 step 3).
	EmbedBatchSize int `yaml:"embed_batch_size" validate:"gte=1"`

	// MaxAttempts bounds exponential backoff retries for embedding/chat
	// calls (spec §4.8, §4.9).
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1"`

	// SummaryPreviewChars is the rule-based summarizer's default preview
	// length (spec §4.8, default 200).
	SummaryPreviewChars int `yaml:"summary_preview_chars" validate:"gte=1"`

	// SummaryCacheTTLSeconds bounds how long cached summaries live (spec
	// §4.8 "TTL-bounded LRU").
	SummaryCacheTTLSeconds int `yaml:"summary_cache_ttl_seconds" validate:"gte=0"`

	// EmbeddingToken and ChatToken are bearer credentials for the two
	// external collaborators (spec §6). Populated only from environment
	// variables, never from YAML or Overrides, so a committed config file
	// cannot carry a secret.
	EmbeddingToken Secret `yaml:"-"`
	ChatToken      Secret `yaml:"-"`
}

// Defaults returns the built-in configuration baseline, the lowest-
// precedence layer of the merge.
func Defaults() Config {
	return Config{
		IndexDir:               "./index",
		EmbedFanout:            4,
		EmbedBatchSize:         32,
		MaxAttempts:            3,
		SummaryPreviewChars:    200,
		SummaryCacheTTLSeconds: 3600,
	}
}

// Overrides carries the caller-argument layer, the highest-precedence
// layer of the merge. Zero-valued fields are treated as "not overridden".
type Overrides struct {
	CorpusPath          string
	IndexDir            string
	EmbeddingServiceURL string
	EmbeddingModel      string
	ChatServiceURL      string
	ChatModel           string
	EmbedFanout         int
	EmbedBatchSize      int
	MaxAttempts         int
}

// Load merges configuration from, in ascending precedence: Defaults(),
// the YAML file at yamlPath (if non-empty and present), environment
// variables, then ov. Secrets are read only from environment variables
// (DIGRAG_EMBEDDING_TOKEN, DIGRAG_CHAT_TOKEN), never from the YAML file.
func Load(yamlPath string, ov Overrides) (Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", yamlPath, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
			}
		}
	}

	applyEnv(&cfg)
	applyOverrides(&cfg, ov)

	cfg.EmbeddingToken = NewSecret(os.Getenv("DIGRAG_EMBEDDING_TOKEN"))
	cfg.ChatToken = NewSecret(os.Getenv("DIGRAG_CHAT_TOKEN"))

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DIGRAG_CORPUS_PATH"); v != "" {
		cfg.CorpusPath = v
	}
	if v := os.Getenv("DIGRAG_INDEX_DIR"); v != "" {
		cfg.IndexDir = v
	}
	if v := os.Getenv("DIGRAG_EMBEDDING_SERVICE_URL"); v != "" {
		cfg.EmbeddingServiceURL = v
	}
	if v := os.Getenv("DIGRAG_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("DIGRAG_CHAT_SERVICE_URL"); v != "" {
		cfg.ChatServiceURL = v
	}
	if v := os.Getenv("DIGRAG_CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
}

func applyOverrides(cfg *Config, ov Overrides) {
	if ov.CorpusPath != "" {
		cfg.CorpusPath = ov.CorpusPath
	}
	if ov.IndexDir != "" {
		cfg.IndexDir = ov.IndexDir
	}
	if ov.EmbeddingServiceURL != "" {
		cfg.EmbeddingServiceURL = ov.EmbeddingServiceURL
	}
	if ov.EmbeddingModel != "" {
		cfg.EmbeddingModel = ov.EmbeddingModel
	}
	if ov.ChatServiceURL != "" {
		cfg.ChatServiceURL = ov.ChatServiceURL
	}
	if ov.ChatModel != "" {
		cfg.ChatModel = ov.ChatModel
	}
	if ov.EmbedFanout != 0 {
		cfg.EmbedFanout = ov.EmbedFanout
	}
	if ov.EmbedBatchSize != 0 {
		cfg.EmbedBatchSize = ov.EmbedBatchSize
	}
	if ov.MaxAttempts != 0 {
		cfg.MaxAttempts = ov.MaxAttempts
	}
}
