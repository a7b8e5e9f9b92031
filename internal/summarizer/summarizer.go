// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package summarizer implements the rule-based and LLM-based result
// summarisation paths of spec §4.8, grounded on the teacher's graceful-
// degradation shape (services/trace/agent/routing/embedder.go's Score()
// "returns (nil, nil) ... caller should fall back") applied here as
// "LLM failure falls back to rule-based, never propagates an error".
package summarizer

import (
	"context"
	"log/slog"

	"github.com/nekowasabi/digrag/internal/chatclient"
	"github.com/nekowasabi/digrag/internal/extractor"
	"github.com/nekowasabi/digrag/internal/telemetry"
)

const defaultPreviewChars = 200

const systemPrompt = "summarise the following text concisely"

// Summary is the result of summarising one extraction (spec §4.8).
type Summary struct {
	Method string           `json:"method"` // "rule-based" | "llm"
	Text   string           `json:"text"`
	Stats  extractor.Stats  `json:"stats"`
}

// RuleBased returns a zero-failure summary: the first previewChars
// Unicode scalar values of extracted.Text (default 200 when previewChars
// is zero).
func RuleBased(extracted extractor.Result, previewChars int) Summary {
	if previewChars <= 0 {
		previewChars = defaultPreviewChars
	}
	runes := []rune(extracted.Text)
	if len(runes) > previewChars {
		runes = runes[:previewChars]
	}
	return Summary{
		Method: "rule-based",
		Text:   string(runes),
		Stats:  extracted.Stats,
	}
}

// LLMOptions configures an LLM-based summarisation attempt.
type LLMOptions struct {
	Model        string
	Provider     *chatclient.Provider
	MaxTokens    int
	Temperature  float32
	PreviewChars int // fallback rule-based preview length on failure
	Logger       *slog.Logger
}

// LLM attempts an LLM-based summary via client, consulting cache first
// when non-nil. On any failure (network, non-2xx, parse, timeout) it
// falls back to RuleBased and records a telemetry event (spec §4.8); this
// function itself never returns an error.
func LLM(ctx context.Context, client *chatclient.Client, cache *Cache, extracted extractor.Result, opts LLMOptions) Summary {
	if cache != nil {
		key := Key(opts.Model, extracted.Text)
		if cached, ok := cache.Get(key); ok {
			return cached
		}
	}

	if client == nil {
		telemetry.LLMFallbackTotal.Inc()
		telemetry.Emit(opts.Logger, telemetry.Event{Kind: "llm_fallback", Detail: "no chat client configured"})
		return RuleBased(extracted, opts.PreviewChars)
	}

	text, err := client.Complete(ctx, chatclient.Request{
		Model: opts.Model,
		Messages: []chatclient.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: extracted.Text},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Provider:    opts.Provider,
	})
	if err != nil {
		telemetry.LLMFallbackTotal.Inc()
		telemetry.Emit(opts.Logger, telemetry.Event{Kind: "llm_fallback", Detail: err.Error()})
		return RuleBased(extracted, opts.PreviewChars)
	}

	summary := Summary{Method: "llm", Text: text, Stats: extracted.Stats}
	if cache != nil {
		key := Key(opts.Model, extracted.Text)
		_ = cache.Put(key, summary)
	}
	return summary
}
