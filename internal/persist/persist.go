// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persist serializes the four on-disk index artifacts of spec §6
// ("On-disk index layout") with atomic write-then-rename, grounded on the
// teacher's graph/serialization.go determinism discipline (encoding/json
// writes map keys in sorted order, so the same index state always
// serializes to the same bytes; metadata.json's built_at still differs
// from build to build). Atomic replace itself is plain os.WriteFile + os.Rename: no
// library in the example corpus wraps that OS-level operation, and
// wrapping it would only obscure what is already a single syscall pair.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nekowasabi/digrag/internal/bm25"
	"github.com/nekowasabi/digrag/internal/docstore"
	"github.com/nekowasabi/digrag/internal/document"
)

const (
	bm25File     = "bm25_index.json"
	vectorFile   = "faiss_index.json"
	docstoreFile = "docstore.json"
	metadataFile = "metadata.json"

	// CurrentSchemaVersion is written by every build (spec §4.9 step 5).
	CurrentSchemaVersion = "2.0"
)

// VectorSnapshot is the faiss_index.json shape (spec §6).
type VectorSnapshot struct {
	Dim     int                  `json:"dim"`
	Vectors map[string][]float32 `json:"vectors"`
}

// Metadata is the metadata.json shape (spec §3, §6).
type Metadata struct {
	SchemaVersion string            `json:"schema_version"`
	BuiltAt       time.Time         `json:"built_at"`
	EmbeddingDim  *int              `json:"embedding_dim"`
	DocHashes     map[string]string `json:"doc_hashes"`
}

// writeJSONAtomic marshals v and writes it to path by writing to a
// sibling temp file first, then renaming over path — a crash leaves the
// previous file intact (spec §4.9 step 6).
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persist: mkdir %s: %w", filepath.Dir(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("persist: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SaveVectorMap serializes an explicit id->vector map plus its dimension
// to dir/faiss_index.json. engine.Index.Save calls it with the vector
// index's Dim() and Snapshot().
func SaveVectorMap(dir string, dim int, vectors map[string][]float32) error {
	snapshot := VectorSnapshot{Dim: dim, Vectors: vectors}
	return writeJSONAtomic(filepath.Join(dir, vectorFile), snapshot)
}

// LoadVectorMap reads dir/faiss_index.json.
func LoadVectorMap(dir string) (VectorSnapshot, error) {
	var snapshot VectorSnapshot
	err := readJSON(filepath.Join(dir, vectorFile), &snapshot)
	return snapshot, err
}

// SaveBM25Snapshot serializes a bm25.Index snapshot to dir/bm25_index.json.
func SaveBM25Snapshot(dir string, snapshot bm25.Snapshot) error {
	return writeJSONAtomic(filepath.Join(dir, bm25File), snapshot)
}

// LoadBM25Snapshot reads dir/bm25_index.json.
func LoadBM25Snapshot(dir string) (bm25.Snapshot, error) {
	var snapshot bm25.Snapshot
	err := readJSON(filepath.Join(dir, bm25File), &snapshot)
	return snapshot, err
}

// SaveDocstore serializes every document in store to dir/docstore.json,
// keyed by id.
func SaveDocstore(dir string, store *docstore.Docstore) error {
	ids := store.IDs()
	docs := make(map[string]document.Document, len(ids))
	for _, id := range ids {
		doc, ok := store.Get(id)
		if ok {
			docs[id] = doc
		}
	}
	return writeJSONAtomic(filepath.Join(dir, docstoreFile), docs)
}

// LoadDocstore reads dir/docstore.json into id -> Document.
func LoadDocstore(dir string) (map[string]document.Document, error) {
	var docs map[string]document.Document
	err := readJSON(filepath.Join(dir, docstoreFile), &docs)
	return docs, err
}

// SaveMetadata serializes m to dir/metadata.json.
func SaveMetadata(dir string, m Metadata) error {
	return writeJSONAtomic(filepath.Join(dir, metadataFile), m)
}

// LoadMetadata reads dir/metadata.json.
func LoadMetadata(dir string) (Metadata, error) {
	var m Metadata
	err := readJSON(filepath.Join(dir, metadataFile), &m)
	return m, err
}

// SortedDocHashKeys returns m.DocHashes keys in sorted order, for
// invariant checks against Docstore/BM25/Vector id sets (spec §3).
func SortedDocHashKeys(m Metadata) []string {
	keys := make([]string, 0, len(m.DocHashes))
	for k := range m.DocHashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
