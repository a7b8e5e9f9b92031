// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorindex implements a dense-vector store with exact cosine
// top-k search (spec §4.3), grounded on the teacher's embedding cache
// (services/trace/agent/routing/embedder.go, l2Norm/dotProduct helpers),
// generalized from a fixed tool corpus to an arbitrary, mutable document
// set and from unit-normalized-on-write to un-normalized storage with
// cosine computed at query time.
package vectorindex

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/nekowasabi/digrag/internal/digragerr"
)

// Index is a dense-vector store supporting exact cosine top-k search.
//
// Complexity is linear in the number of stored vectors per spec §4.3; the
// spec does not mandate ANN, so an exact linear scan is a conforming
// implementation.
//
// Thread Safety: Index is safe for concurrent readers; Add/Remove must not
// race with Query or with each other (same single-writer discipline as
// internal/bm25.Index).
type Index struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	dim     int // 0 until the first vector establishes it
}

// New constructs an empty vector index. The dimension is discovered from
// the first successful Add call and required constant thereafter.
func New() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Add stores (or replaces) the vector for docID.
//
// Outputs:
//   - error: digragerr.ErrDimensionMismatch if the index already has an
//     established dimension and v does not match it.
func (idx *Index) Add(docID string, v []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dim == 0 {
		idx.dim = len(v)
	} else if len(v) != idx.dim {
		return digragerr.ErrDimensionMismatch
	}

	vecCopy := make([]float32, len(v))
	copy(vecCopy, v)
	idx.vectors[docID] = vecCopy
	return nil
}

// Remove drops docID from the index. Idempotent.
func (idx *Index) Remove(docID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, docID)
}

// Hit is a single scored result from Query.
type Hit struct {
	DocID      string
	Similarity float64
}

// Query returns the k ids with highest cosine similarity to qv, ties
// broken by doc_id ascending (spec §4.3). Similarity is in [-1, 1].
func (idx *Index) Query(qv []float32, k int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	qNorm := l2Norm(qv)
	if qNorm == 0 || len(idx.vectors) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(idx.vectors))
	for docID, v := range idx.vectors {
		sim := cosine(qv, qNorm, v)
		hits = append(hits, Hit{DocID: docID, Similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocID < hits[j].DocID
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Dim reports the established vector dimension, or 0 if no vector has ever
// been added.
func (idx *Index) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Len reports the number of vectors currently stored.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Snapshot returns a defensive copy of every stored vector, keyed by doc
// id, for persistence (internal/persist's faiss_index.json shape).
func (idx *Index) Snapshot() map[string][]float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string][]float32, len(idx.vectors))
	for id, v := range idx.vectors {
		vecCopy := make([]float32, len(v))
		copy(vecCopy, v)
		out[id] = vecCopy
	}
	return out
}

// DocIDs returns the set of document ids currently holding a vector, for
// invariant checks (spec §8: doc_hashes.keys ⊇ Vector.keys).
func (idx *Index) DocIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// l2Norm computes the Euclidean norm of a float32 vector via gonum's
// floats.Norm (gonum.org/v1/gonum/floats operates on []float64;
// the conversion cost is negligible next to the HTTP round trip that
// produced the vector).
func l2Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	f := toFloat64(v)
	return floatsNorm(f)
}

// cosine computes dot(qv, v) / (||qv|| * ||v||) using the precomputed query
// norm (avoids recomputing it once per stored vector).
func cosine(qv []float32, qNorm float64, v []float32) float64 {
	n := len(qv)
	if len(v) < n {
		n = len(v)
	}
	qf := toFloat64(qv[:n])
	vf := toFloat64(v[:n])
	dot := floats.Dot(qf, vf)
	vNorm := floatsNorm(vf)
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	return dot / (qNorm * vNorm)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func floatsNorm(v []float64) float64 {
	return floats.Norm(v, 2)
}
