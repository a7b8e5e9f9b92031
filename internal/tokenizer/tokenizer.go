// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tokenizer turns raw document/query text into a normalized token
// stream, mixing Japanese morphological analysis (IPADIC) with alphanumeric
// run extraction and CamelCase splitting (spec §4.1).
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// contentBearingPOS holds the IPADIC top-level part-of-speech classes kept
// after Japanese segmentation. Particles (助詞), auxiliary verbs (助動詞),
// and symbols/punctuation (記号) are dropped.
var contentBearingPOS = map[string]bool{
	"名詞":  true, // noun
	"動詞":  true, // verb
	"形容詞": true, // adjective
	"副詞":  true, // adverb
	"連体詞": true, // adnominal
}

// stopWords is the small fixed set of very-common Japanese function words
// that survive POS filtering (e.g. light verbs, formal nouns) and must be
// dropped explicitly (spec §4.1 step 4).
var stopWords = map[string]bool{
	"する": true,
	"ある": true,
	"いる": true,
	"なる": true,
	"これ": true,
	"それ": true,
	"の":  true,
	"こと": true,
	"もの": true,
}

// Tokenizer converts raw text into the normalized token stream used by both
// the BM25 index and the embedding text composition.
//
// Thread Safety: the underlying kagome tokenizer is safe for concurrent use
// once built; Tokenizer has no mutable state and is safe for concurrent use.
type Tokenizer struct {
	analyzer *tokenizer.Tokenizer
}

// New builds a Tokenizer backed by the bundled IPADIC dictionary.
//
// Outputs:
//   - *Tokenizer: ready to use.
//   - error: non-nil only if the embedded dictionary fails to load, which
//     should not happen for the bundled ipa.Dict().
func New() (*Tokenizer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("tokenizer: build IPADIC analyzer: %w", err)
	}
	return &Tokenizer{analyzer: t}, nil
}

// Tokenize runs the full pipeline from spec §4.1: Japanese segmentation,
// alphanumeric run + CamelCase extraction, and stop-token filtering.
//
// Malformed bytes are replaced with the Unicode replacement character
// before analysis; the analyzer is never allowed to fail the build.
func (t *Tokenizer) Tokenize(text string) []string {
	clean := strings.ToValidUTF8(text, "�")

	var tokens []string
	tokens = append(tokens, t.japaneseTokens(clean)...)
	tokens = append(tokens, extractAlnumTokens(clean)...)

	out := tokens[:0]
	for _, tok := range tokens {
		if tok == "" || stopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// japaneseTokens runs IPADIC morphological analysis and keeps
// content-bearing surface forms, lowercased.
func (t *Tokenizer) japaneseTokens(text string) []string {
	if t.analyzer == nil {
		return nil
	}
	morphs := t.analyzer.Tokenize(text)
	out := make([]string, 0, len(morphs))
	for _, m := range morphs {
		if m.Class == tokenizer.DUMMY {
			continue
		}
		pos := m.POS()
		if len(pos) == 0 || !contentBearingPOS[pos[0]] {
			continue
		}
		surface := strings.ToLower(m.Surface)
		if surface == "" {
			continue
		}
		out = append(out, surface)
	}
	return out
}

// BuildEmbeddingText composes the string fed to both BM25 and the semantic
// embedder for a document, per spec §4.1:
//
//	"# <title>\nタグ: <tags joined by ', '>\n\n<text>"
//
// The tag line is omitted entirely when tags is empty.
func BuildEmbeddingText(title string, tags []string, text string) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n")
	if len(tags) > 0 {
		b.WriteString("タグ: ")
		b.WriteString(strings.Join(tags, ", "))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}
