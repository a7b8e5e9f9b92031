// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loader parses the two corpus formats of spec §6: line-delimited
// JSON records and plain-text change-logs. Malformed records are skipped
// and accumulated into a report rather than failing the whole load (spec
// §7 "ParseError ... skip the record, accumulate into a builder report;
// not fatal").
package loader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/nekowasabi/digrag/internal/document"
)

// jsonRecord mirrors the line-delimited JSON shape from spec §6.
type jsonRecord struct {
	ID       string `json:"id"`
	Metadata struct {
		Title string   `json:"title"`
		Date  string   `json:"date"`
		Tags  []string `json:"tags"`
	} `json:"metadata"`
	Text string `json:"text"`
}

// ParseError records one skipped record.
type ParseError struct {
	Line   int
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Report is the outcome of a load: the successfully parsed documents plus
// any per-record errors encountered along the way.
type Report struct {
	Documents []document.Document
	Errors    []ParseError
}

// LoadJSONL parses one JSON record per line (spec §6 "Input corpus format
// (line-delimited JSON)"). Blank lines are skipped silently.
func LoadJSONL(r io.Reader) Report {
	var report Report

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec jsonRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			report.Errors = append(report.Errors, ParseError{Line: lineNo, Reason: "invalid JSON: " + err.Error()})
			continue
		}

		date, err := time.Parse(time.RFC3339, rec.Metadata.Date)
		if err != nil {
			report.Errors = append(report.Errors, ParseError{Line: lineNo, Reason: "invalid date: " + err.Error()})
			continue
		}

		doc := document.New(rec.ID, rec.Metadata.Title, rec.Text, date, rec.Metadata.Tags)
		report.Documents = append(report.Documents, doc)
	}
	return report
}

// changelogHeaderPattern matches an entry header line (spec §6 "Input
// corpus format (change-log text)").
var changelogHeaderPattern = regexp.MustCompile(`^\* (.+) (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})((?: \[[^\]]+\]:)*)$`)

// changelogTagPattern extracts the bracketed tag tokens from a header's
// tag tail.
var changelogTagPattern = regexp.MustCompile(`\[([^\]]+)\]:`)

// LoadChangelog parses a plain-text change-log: entries begin with a
// header line and extend to the line preceding the next header or EOF
// (spec §6).
func LoadChangelog(r io.Reader) Report {
	var report Report

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	type header struct {
		lineIdx int
		title   string
		date    string
		tags    []string
	}
	var headers []header
	for i, line := range lines {
		m := changelogHeaderPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var tags []string
		for _, tm := range changelogTagPattern.FindAllStringSubmatch(m[3], -1) {
			tags = append(tags, tm[1])
		}
		headers = append(headers, header{lineIdx: i, title: m[1], date: m[2], tags: tags})
	}

	for i, h := range headers {
		end := len(lines)
		if i+1 < len(headers) {
			end = headers[i+1].lineIdx
		}
		text := strings.Join(lines[h.lineIdx+1:end], "\n")

		date, err := time.Parse("2006-01-02 15:04:05", h.date)
		if err != nil {
			report.Errors = append(report.Errors, ParseError{Line: h.lineIdx + 1, Reason: "invalid date: " + err.Error()})
			continue
		}

		doc := document.New("", h.title, text, date, h.tags)
		report.Documents = append(report.Documents, doc)
	}
	return report
}
