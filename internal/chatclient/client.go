// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chatclient sends chat-completions requests for the LLM
// summarizer path (spec §4.8, §6), grounded on the teacher's
// services/llm.OpenAIClient wire-type conventions (unexported request/
// response structs, net/http with an explicit client timeout) and on
// agent/providers/egress.ProviderPolicy's allow/deny resolution order,
// generalized from a provider-policy object enforced client-side to a
// provider routing object forwarded verbatim in the request body, since
// spec §6 has the collaborator (not the core) resolve provider routing.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nekowasabi/digrag/internal/config"
	"github.com/nekowasabi/digrag/internal/digragerr"
)

// Provider carries the optional routing object from spec §6: preferred
// provider order, fallback permission, explicit allow/deny sets, a sort
// preference, and a require-full-parameter-support flag. Forwarded
// verbatim in the request body; the core never interprets it.
type Provider struct {
	Order              []string `json:"order,omitempty"`
	AllowFallbacks     *bool    `json:"allow_fallbacks,omitempty"`
	Only               []string `json:"only,omitempty"`
	Ignore             []string `json:"ignore,omitempty"`
	Sort               string   `json:"sort,omitempty"` // "price" | "throughput"
	RequireParameters  bool     `json:"require_parameters,omitempty"`
}

// Message is one chat-completions turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	Provider    *Provider `json:"provider,omitempty"`
}

type response struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Request is the caller-facing argument to Complete.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	Provider    *Provider
}

// Client sends chat-completions requests to an external collaborator.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	url         string
	token       config.Secret
	maxAttempts int
}

// New constructs a chat-completions client.
func New(url string, token config.Secret, maxAttempts int) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		url:         url,
		token:       token,
		maxAttempts: maxAttempts,
	}
}

// Complete sends req and returns choices[0].message.content (spec §6).
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	op := func() (string, error) {
		return c.completeOnce(ctx, req)
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		return "", err
	}
	return result, nil
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(request{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Provider:    req.Provider,
	})
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: marshal request: %v", digragerr.ErrEmbeddingParse, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: build request: %v", digragerr.ErrEmbeddingNetwork, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+c.token.Reveal())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", digragerr.ErrEmbeddingTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", digragerr.ErrEmbeddingNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", digragerr.ErrEmbeddingNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds := parseRetryAfterSeconds(resp.Header.Get("Retry-After"))
		return "", backoff.RetryAfter(seconds)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d: %s", digragerr.ErrEmbeddingServer, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("%w: status %d: %s", digragerr.ErrEmbeddingServer, resp.StatusCode, string(respBody)))
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: %v", digragerr.ErrEmbeddingParse, err))
	}
	if len(parsed.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("%w: no choices in response", digragerr.ErrEmbeddingParse))
	}
	return parsed.Choices[0].Message.Content, nil
}

func parseRetryAfterSeconds(header string) int {
	if header == "" {
		return 1
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds <= 0 {
		return 1
	}
	return seconds
}
