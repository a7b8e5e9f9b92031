// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bm25 implements an Okapi BM25 inverted index over token postings
// (spec §4.2), grounded on the teacher's tool-routing BM25 scorer
// (services/trace/agent/routing/bm25.go) but generalized from binary term
// presence to true term-frequency postings with incremental insert/remove.
package bm25

import (
	"math"
	"sort"
	"sync"
)

// BM25 tuning constants per spec §4.2.
const (
	k1 = 1.5
	b  = 0.75
)

// posting is a single (doc_id, tf) pair for one token.
type posting struct {
	docID string
	tf    int
}

// TagFilter reports whether a document carries a given tag. The index
// queries it (rather than owning tag data itself) to keep document bodies
// out of the inverted index, per spec §9's "avoid cyclic references"
// design note — Docstore is the only owner of tag membership.
type TagFilter interface {
	HasTag(docID, tag string) bool
}

// Index is a mutable Okapi BM25 inverted index.
//
// Thread Safety: Index is safe for concurrent readers; Insert/Remove must
// not race with Query or with each other (spec §5 single-writer discipline
// — the caller, typically internal/builder, holds an exclusive build lock).
type Index struct {
	mu sync.RWMutex

	postings    map[string][]posting // token -> postings, doc_id ascending
	docLengths  map[string]int       // doc_id -> token count
	totalLength int
	n           int // document count
}

// New constructs an empty BM25 index.
func New() *Index {
	return &Index{
		postings:   make(map[string][]posting),
		docLengths: make(map[string]int),
	}
}

// Insert adds a document's tokenized embedding text to the index.
//
// Inputs:
//   - docID: the document id.
//   - tokens: the tokenized embedding text (spec §4.1's composed string,
//     already run through Tokenizer.Tokenize).
func (idx *Index) Insert(docID string, tokens []string) {
	if len(tokens) == 0 {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		idx.insertLocked(docID, nil)
		return
	}

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insertLocked(docID, tf)
}

func (idx *Index) insertLocked(docID string, tf map[string]int) {
	length := 0
	for term, count := range tf {
		length += count
		idx.postings[term] = insertSorted(idx.postings[term], posting{docID: docID, tf: count})
	}
	idx.docLengths[docID] = length
	idx.totalLength += length
	idx.n++
}

// insertSorted inserts p into ps keeping ps sorted by docID ascending,
// which is what Query relies on for deterministic tie-breaking.
func insertSorted(ps []posting, p posting) []posting {
	i := sort.Search(len(ps), func(i int) bool { return ps[i].docID >= p.docID })
	ps = append(ps, posting{})
	copy(ps[i+1:], ps[i:])
	ps[i] = p
	return ps
}

// Remove drops a document from the index. Idempotent: removing an unknown
// id is a no-op.
func (idx *Index) Remove(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	length, ok := idx.docLengths[docID]
	if !ok {
		return
	}
	delete(idx.docLengths, docID)
	idx.totalLength -= length
	idx.n--

	for term, ps := range idx.postings {
		filtered := ps[:0]
		for _, p := range ps {
			if p.docID != docID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
}

// Hit is a single scored result from Query.
type Hit struct {
	DocID string
	Score float64
}

// Query tokenizes nothing itself — callers pass already-tokenized query
// terms — and returns the top-k (doc_id, score) pairs by descending BM25
// score, ties broken by doc_id ascending (spec §4.2).
//
// When tagFilter and tag are both non-empty, postings for documents not
// carrying tag are excluded before ranking.
func (idx *Index) Query(queryTokens []string, k int, tagFilter TagFilter, tag string) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(queryTokens) == 0 || idx.n == 0 {
		return nil
	}

	avgdl := float64(idx.totalLength) / float64(idx.n)
	seen := make(map[string]bool)
	scores := make(map[string]float64)

	for _, term := range queryTokens {
		if seen[term] {
			continue
		}
		seen[term] = true

		ps, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := len(ps)
		idf := math.Log((float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for _, p := range ps {
			if tagFilter != nil && tag != "" && !tagFilter.HasTag(p.docID, tag) {
				continue
			}
			dl := float64(idx.docLengths[p.docID])
			tfFloat := float64(p.tf)
			tfPart := tfFloat * (k1 + 1) / (tfFloat + k1*(1-b+b*dl/avgdl))
			scores[p.docID] += idf * tfPart
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		hits = append(hits, Hit{DocID: docID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Snapshot is a defensive, persistence-shaped view of the index's internal
// state (internal/persist's bm25_index.json shape).
type Snapshot struct {
	Postings   map[string][]Posting `json:"postings"`
	DocLengths map[string]int       `json:"doc_lengths"`
	Avgdl      float64              `json:"avgdl"`
	N          int                  `json:"n"`
}

// Posting is the persistence-facing (doc_id, tf) pair.
type Posting struct {
	DocID string `json:"doc_id"`
	TF    int    `json:"tf"`
}

// Snapshot returns a defensive copy of the index's postings, doc lengths,
// average document length, and document count.
func (idx *Index) Snapshot() Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	postings := make(map[string][]Posting, len(idx.postings))
	for term, ps := range idx.postings {
		copied := make([]Posting, len(ps))
		for i, p := range ps {
			copied[i] = Posting{DocID: p.docID, TF: p.tf}
		}
		postings[term] = copied
	}
	docLengths := make(map[string]int, len(idx.docLengths))
	for id, l := range idx.docLengths {
		docLengths[id] = l
	}
	avgdl := 0.0
	if idx.n > 0 {
		avgdl = float64(idx.totalLength) / float64(idx.n)
	}
	return Snapshot{Postings: postings, DocLengths: docLengths, Avgdl: avgdl, N: idx.n}
}

// Restore replaces the index's state with a previously captured Snapshot,
// for loading a persisted bm25_index.json without re-tokenizing every
// document (used when the docstore + BM25 postings are both reloaded from
// disk rather than rebuilt).
func (idx *Index) Restore(s Snapshot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.postings = make(map[string][]posting, len(s.Postings))
	for term, ps := range s.Postings {
		copied := make([]posting, len(ps))
		for i, p := range ps {
			copied[i] = posting{docID: p.DocID, tf: p.TF}
		}
		idx.postings[term] = copied
	}
	idx.docLengths = make(map[string]int, len(s.DocLengths))
	total := 0
	for id, l := range s.DocLengths {
		idx.docLengths[id] = l
		total += l
	}
	idx.totalLength = total
	idx.n = s.N
}

// Len reports the number of documents currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.n
}

// DocIDs returns the set of document ids currently indexed, for invariant
// checks (spec §8: doc_hashes.keys == BM25.keys).
func (idx *Index) DocIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.docLengths))
	for id := range idx.docLengths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
