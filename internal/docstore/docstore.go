// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docstore owns the canonical id -> Document mapping plus derived
// secondary indexes: a tag reverse index and a recency ordering (spec
// §4.4). Grounded on the teacher's services/trace/index/symbol_index.go
// (RWMutex-guarded primary + secondary maps, O(1)-maintained counters).
package docstore

import (
	"sort"
	"sync"

	"github.com/nekowasabi/digrag/internal/document"
)

// Docstore is the single owner of Document bodies. BM25 and vector
// indexes store only ids; hydration always goes through Get (spec §9:
// "there is never a pointer from an index entry to a document body").
//
// Thread Safety: safe for concurrent use. Multiple goroutines may call any
// combination of methods simultaneously; Insert/Remove take a write lock.
type Docstore struct {
	mu sync.RWMutex

	byID map[string]document.Document
	tags map[string]map[string]bool // tag -> set of ids

	// recent caches the id order by date descending, id ascending for
	// ties. Rebuilt lazily on the next Recent() call after a mutation;
	// nil means "stale, rebuild".
	recent []string
}

// New constructs an empty Docstore.
func New() *Docstore {
	return &Docstore{
		byID: make(map[string]document.Document),
		tags: make(map[string]map[string]bool),
	}
}

// Insert adds or replaces a document. Replacing an existing id first
// removes its old tag memberships, so a caller re-inserting under the same
// id with different tags does not leak stale reverse-index entries.
func (s *Docstore) Insert(doc document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[doc.ID]; ok {
		s.removeTagsLocked(old)
	}
	s.byID[doc.ID] = doc
	s.addTagsLocked(doc)
	s.recent = nil
}

// Remove deletes a document by id. Idempotent.
func (s *Docstore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.byID[id]
	if !ok {
		return
	}
	s.removeTagsLocked(doc)
	delete(s.byID, id)
	s.recent = nil
}

func (s *Docstore) addTagsLocked(doc document.Document) {
	for _, tag := range doc.Tags {
		set, ok := s.tags[tag]
		if !ok {
			set = make(map[string]bool)
			s.tags[tag] = set
		}
		set[doc.ID] = true
	}
}

func (s *Docstore) removeTagsLocked(doc document.Document) {
	for _, tag := range doc.Tags {
		set, ok := s.tags[tag]
		if !ok {
			continue
		}
		delete(set, doc.ID)
		if len(set) == 0 {
			delete(s.tags, tag)
		}
	}
}

// Get returns the document for id and whether it was found.
func (s *Docstore) Get(id string) (document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[id]
	return doc, ok
}

// HasTag implements internal/bm25.TagFilter.
func (s *Docstore) HasTag(docID, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[docID]
	if !ok {
		return false
	}
	return doc.HasTag(tag)
}

// TagCount pairs a tag with the number of documents carrying it.
type TagCount struct {
	Tag   string
	Count int
}

// ListTags returns every tag with its document count, sorted by count
// descending then tag ascending.
func (s *Docstore) ListTags() []TagCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TagCount, 0, len(s.tags))
	for tag, ids := range s.tags {
		out = append(out, TagCount{Tag: tag, Count: len(ids)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Recent returns up to limit ids ordered by date descending, id ascending
// for ties. limit <= 0 returns every id in recency order.
func (s *Docstore) Recent(limit int) []string {
	s.mu.Lock()
	if s.recent == nil {
		s.rebuildRecentLocked()
	}
	recent := s.recent
	s.mu.Unlock()

	if limit <= 0 || limit >= len(recent) {
		out := make([]string, len(recent))
		copy(out, recent)
		return out
	}
	out := make([]string, limit)
	copy(out, recent[:limit])
	return out
}

func (s *Docstore) rebuildRecentLocked() {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := s.byID[ids[i]], s.byID[ids[j]]
		if !di.Date.Equal(dj.Date) {
			return di.Date.After(dj.Date)
		}
		return ids[i] < ids[j]
	})
	s.recent = ids
}

// Len reports the number of documents in the store.
func (s *Docstore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// IDs returns every document id currently stored, for invariant checks
// (spec §8: doc_hashes.keys == Docstore.keys).
func (s *Docstore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
