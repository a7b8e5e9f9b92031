// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extractor implements the per-strategy snippet/entry/full
// extraction pipeline of spec §4.7, grounded on the teacher's
// loader.entryHeaderPattern-style regex line scanning (services/trace's
// change-log parsing idiom) applied here to extraction rather than
// ingestion.
package extractor

import (
	"regexp"
	"strings"
)

// entryHeaderPattern matches a change-log entry header line (spec §4.7,
// same shape as the loader's header regex in spec §6).
var entryHeaderPattern = regexp.MustCompile(`^\* (.+) \d{4}-\d{2}-\d{2}`)

// Strategy selects how Extract carves a result out of a document's full
// text.
type Strategy int

const (
	// Head returns the first N Unicode scalar values of the text.
	Head Strategy = iota
	// ChangelogEntry returns a single dated entry, optionally matched by
	// title substring.
	ChangelogEntry
	// Full returns the entire text, subject only to truncation.
	Full
)

// Config bounds a Head extraction and the shared truncation pass.
type Config struct {
	// HeadChars is the budget for Head; defaults to 150 (spec §4.7,
	// "the preview budget defaults to 150 for the editor-plugin surface")
	// when zero.
	HeadChars int

	// TargetTitle, for ChangelogEntry, selects the entry whose header
	// title contains this substring (byte-exact, first match). Empty
	// selects the first entry.
	TargetTitle string

	// MaxChars clips the extracted text on a Unicode-scalar boundary.
	// Zero means unbounded.
	MaxChars int

	// MaxLines clips after this many newline terminators. Zero means
	// unbounded.
	MaxLines int

	// MaxSections clips after this many entry headers; only meaningful
	// with ChangelogEntry when the entry spans re-headered sub-entries.
	// Zero means unbounded.
	MaxSections int
}

// Stats reports the pre-truncation shape of the source text.
type Stats struct {
	TotalChars     int
	TotalLines     int
	ExtractedChars int
}

// Result is the output of Extract.
type Result struct {
	Text      string
	Truncated bool
	Stats     Stats
}

// Extract applies strategy to text under cfg.
func Extract(text string, strategy Strategy, cfg Config) Result {
	var extracted string

	switch strategy {
	case Head:
		n := cfg.HeadChars
		if n <= 0 {
			n = 150
		}
		extracted = firstNRunes(text, n)
	case ChangelogEntry:
		extracted = extractChangelogEntry(text, cfg.TargetTitle)
	case Full:
		extracted = text
	default:
		extracted = text
	}

	stats := Stats{
		TotalChars:     len([]rune(text)),
		TotalLines:     strings.Count(text, "\n"),
		ExtractedChars: len([]rune(extracted)),
	}

	truncated := false
	if cfg.MaxChars > 0 {
		if runes := []rune(extracted); len(runes) > cfg.MaxChars {
			extracted = string(runes[:cfg.MaxChars])
			truncated = true
		}
	}
	if cfg.MaxLines > 0 {
		if clipped, didClip := clipLines(extracted, cfg.MaxLines); didClip {
			extracted = clipped
			truncated = true
		}
	}
	if cfg.MaxSections > 0 && strategy == ChangelogEntry {
		if clipped, didClip := clipSections(extracted, cfg.MaxSections); didClip {
			extracted = clipped
			truncated = true
		}
	}

	return Result{Text: extracted, Truncated: truncated, Stats: stats}
}

func firstNRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// extractChangelogEntry scans for entry header lines and returns the span
// from the selected header to just before the next header or EOF.
func extractChangelogEntry(text string, targetTitle string) string {
	lines := strings.Split(text, "\n")
	headerIdx := make([]int, 0)
	for i, line := range lines {
		if entryHeaderPattern.MatchString(line) {
			headerIdx = append(headerIdx, i)
		}
	}
	if len(headerIdx) == 0 {
		return text
	}

	selected := headerIdx[0]
	if targetTitle != "" {
		found := false
		for _, idx := range headerIdx {
			m := entryHeaderPattern.FindStringSubmatch(lines[idx])
			if m != nil && strings.Contains(m[1], targetTitle) {
				selected = idx
				found = true
				break
			}
		}
		if !found {
			selected = headerIdx[0]
		}
	}

	end := len(lines)
	for _, idx := range headerIdx {
		if idx > selected {
			end = idx
			break
		}
	}

	return strings.Join(lines[selected:end], "\n")
}

func clipLines(text string, maxLines int) (string, bool) {
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text, false
	}
	return strings.Join(lines[:maxLines], "\n"), true
}

func clipSections(text string, maxSections int) (string, bool) {
	lines := strings.Split(text, "\n")
	headers := 0
	for i, line := range lines {
		if entryHeaderPattern.MatchString(line) {
			headers++
			if headers > maxSections {
				return strings.Join(lines[:i], "\n"), true
			}
		}
	}
	return text, false
}
