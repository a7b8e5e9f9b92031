// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document defines the immutable Document record and its
// content-hashed identity.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IDLength is the number of hex characters in a Document id (16, i.e. the
// leading 8 bytes of the SHA-256 digest).
const IDLength = 16

// Document is an immutable change-log / memo record.
//
// Description:
//
//	A Document is identified entirely by the content hash of its title and
//	text (see ComputeID). Two Documents with the same title and text always
//	share an id; any textual edit produces a new id. Documents are never
//	mutated in place — a "change" to a document is modeled as removing the
//	old id and inserting a new one (see internal/builder).
//
// Thread Safety: Document is a plain value type; safe to share by reference
// across goroutines once constructed.
type Document struct {
	// ID is the 16-hex-character content hash (see ComputeID).
	ID string

	// Title is the document's title.
	Title string

	// Text is the document's body.
	Text string

	// Date is the document's instant, always stored as UTC.
	Date time.Time

	// Tags is the ordered, possibly-duplicate sequence of tags as they
	// appeared in the source. Order is preserved; semantic uniqueness
	// (membership) is what callers should rely on, not count.
	Tags []string
}

// ComputeID derives the content-hash identity of a (title, text) pair.
//
// Description:
//
//	id == hex16(sha256(title + 0x00 + text)), per the Document invariant.
//	The NUL separator prevents a title/text boundary collision (e.g. title
//	"ab", text "c" vs title "a", text "bc").
//
// Outputs:
//   - string: a lowercase 16-hex-character id.
func ComputeID(title, text string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0x00})
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:IDLength/2])
}

// New constructs a Document, computing its id from title and text. If id is
// non-empty it is used as supplied (the loader's JSONL path allows a
// pre-computed id); an empty id is computed via ComputeID.
//
// Inputs:
//   - id: pre-supplied id, or "" to compute one.
//   - title, text: document content.
//   - date: UTC instant; non-UTC values are converted.
//   - tags: ordered tag sequence, copied defensively.
//
// Outputs:
//   - Document: fully constructed, immutable record.
func New(id, title, text string, date time.Time, tags []string) Document {
	if id == "" {
		id = ComputeID(title, text)
	}
	tagsCopy := make([]string, len(tags))
	copy(tagsCopy, tags)
	return Document{
		ID:    id,
		Title: title,
		Text:  text,
		Date:  date.UTC(),
		Tags:  tagsCopy,
	}
}

// HasTag reports whether the document carries the given tag, compared
// byte-exactly (spec: tag matching is byte-exact, not case-folded).
func (d Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
