// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedclient implements the "strings → vectors" capability
// contract (spec §6, §9) over HTTP, grounded on the teacher's
// services/trace/agent/routing/embedder.go Ollama client: same request/
// response wire shapes, same bounded-concurrency warm-up pattern, adapted
// from a fixed tool corpus to an arbitrary document batch and from a
// hand-rolled counting semaphore to golang.org/x/sync/errgroup +
// golang.org/x/time/rate (spec §5 "a counting semaphore sized to the
// configured fan-out is the required shape").
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nekowasabi/digrag/internal/config"
	"github.com/nekowasabi/digrag/internal/digragerr"
)

// request is the wire body: POST {model, input: [string, ...]} (spec §6).
type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// response is the wire body: {data: [{embedding: [float, ...]}, ...]}.
type response struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client embeds batches of strings into dense vectors via an external
// HTTP collaborator.
//
// Thread Safety: safe for concurrent use. EmbedBatch may be called from
// multiple goroutines; a token-bucket limiter caps outbound requests at
// fanout per second (burst fanout).
type Client struct {
	httpClient  *http.Client
	url         string
	model       string
	token       config.Secret
	limiter     *rate.Limiter
	maxAttempts int
}

// New constructs an embedding client. fanout bounds both the token-bucket
// rate and EmbedMany's concurrent in-flight request count (spec §5).
func New(url, model string, token config.Secret, fanout, maxAttempts int) *Client {
	if fanout < 1 {
		fanout = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		url:         url,
		model:       model,
		token:       token,
		limiter:     rate.NewLimiter(rate.Limit(fanout), fanout),
		maxAttempts: maxAttempts,
	}
}

// EmbedBatch embeds a single batch of texts in one HTTP request. Callers
// needing fan-out across many batches should use EmbedMany.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	op := func() ([][]float32, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", digragerr.ErrCancelled, err)
		}
		return c.embedOnce(ctx, texts)
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EmbedMany embeds many batches concurrently, bounded by the client's
// configured fan-out (spec §5 "the embedding stage issues N concurrent
// outbound requests"). Results are returned in input batch order.
func (c *Client) EmbedMany(ctx context.Context, batches [][]string) ([][][]float32, error) {
	out := make([][][]float32, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limiter.Burst())

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			vecs, err := c.EmbedBatch(gctx, batch)
			if err != nil {
				return err
			}
			out[i] = vecs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(request{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", digragerr.ErrEmbeddingParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", digragerr.ErrEmbeddingNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.token.Reveal())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", digragerr.ErrEmbeddingTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", digragerr.ErrEmbeddingNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", digragerr.ErrEmbeddingNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds := parseRetryAfterSeconds(resp.Header.Get("Retry-After"))
		return nil, backoff.RetryAfter(seconds)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d: %s", digragerr.ErrEmbeddingServer, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", digragerr.ErrEmbeddingServer, resp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", digragerr.ErrEmbeddingParse, err)
	}

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// parseRetryAfterSeconds parses an RFC 7231 Retry-After header value given
// in seconds. Non-numeric / HTTP-date forms fall back to a 1 second wait;
// the core treats Retry-After as advisory, not an exact contract.
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
