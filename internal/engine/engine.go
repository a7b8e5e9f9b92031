// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine ties the four index sub-structures together behind a
// single owner (spec §3 "Ownership: the Index owns all four
// sub-structures; a Searcher holds a read-only reference for the
// lifetime of a query"), grounded on the teacher's symbol index
// (services/trace/index/symbol_index.go) which likewise fronts several
// secondary maps behind one RWMutex-guarded type with a stats snapshot.
package engine

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/nekowasabi/digrag/internal/bm25"
	"github.com/nekowasabi/digrag/internal/docstore"
	"github.com/nekowasabi/digrag/internal/persist"
	"github.com/nekowasabi/digrag/internal/vectorindex"
)

// Index owns the BM25 index, the vector index, the docstore, and the
// persisted metadata for one corpus.
//
// Thread Safety:
//
//	Index's own locks cover only its metadata (metaMu) and the build-lock
//	(writeMu); each sub-structure guards its own state (bm25.Index,
//	vectorindex.Index, docstore.Docstore are all independently safe for
//	concurrent readers). The build-lock
//	(BeginWrite/EndWrite) enforces the single-writer discipline spec §5
//	requires across all four structures as a unit — callers performing a
//	build must hold it; query callers never need it since every
//	sub-structure already supports concurrent reads.
//
// Ownership:
//
//	Documents are referenced by id everywhere except in Docstore itself
//	(spec §9 "indexes store only ids; hydration is a Docstore lookup").
type Index struct {
	BM25     *bm25.Index
	Vector   *vectorindex.Index
	Docstore *docstore.Docstore

	writeMu sync.Mutex

	metaMu   sync.RWMutex
	metadata persist.Metadata
}

// New constructs an empty Index with fresh sub-structures.
func New() *Index {
	return &Index{
		BM25:     bm25.New(),
		Vector:   vectorindex.New(),
		Docstore: docstore.New(),
		metadata: persist.Metadata{SchemaVersion: persist.CurrentSchemaVersion, DocHashes: make(map[string]string)},
	}
}

// BeginWrite acquires the exclusive build lock (spec §5 "a build holds an
// exclusive lock on the index"). Callers must call EndWrite when done.
func (ix *Index) BeginWrite() {
	ix.writeMu.Lock()
}

// EndWrite releases the exclusive build lock.
func (ix *Index) EndWrite() {
	ix.writeMu.Unlock()
}

// Metadata returns a copy of the current index metadata.
func (ix *Index) Metadata() persist.Metadata {
	ix.metaMu.RLock()
	defer ix.metaMu.RUnlock()
	hashes := make(map[string]string, len(ix.metadata.DocHashes))
	for k, v := range ix.metadata.DocHashes {
		hashes[k] = v
	}
	m := ix.metadata
	m.DocHashes = hashes
	return m
}

// SetMetadata replaces the current index metadata.
func (ix *Index) SetMetadata(m persist.Metadata) {
	ix.metaMu.Lock()
	defer ix.metaMu.Unlock()
	ix.metadata = m
}

// Load reads all four artifacts from dir into a fresh Index. Returns the
// zero-value empty Index with no error when dir has never been built
// (missing metadata.json is treated as "no prior index", not a failure;
// the builder's schema-version gate decides whether that forces a full
// rebuild).
func Load(dir string) (*Index, error) {
	ix := New()

	meta, err := persist.LoadMetadata(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return ix, nil
	}
	if err != nil {
		return nil, err
	}
	ix.metadata = meta

	docs, err := persist.LoadDocstore(dir)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		ix.Docstore.Insert(doc)
	}

	bm25Snapshot, err := persist.LoadBM25Snapshot(dir)
	if err != nil {
		return nil, err
	}
	ix.BM25.Restore(bm25Snapshot)

	vecs, err := persist.LoadVectorMap(dir)
	if err != nil {
		return nil, err
	}
	for id, v := range vecs.Vectors {
		if err := ix.Vector.Add(id, v); err != nil {
			return nil, err
		}
	}

	return ix, nil
}

// Save persists all four artifacts to dir (spec §4.9 step 6, §6).
func (ix *Index) Save(dir string) error {
	if err := persist.SaveMetadata(dir, ix.Metadata()); err != nil {
		return err
	}
	if err := persist.SaveDocstore(dir, ix.Docstore); err != nil {
		return err
	}
	if err := persist.SaveBM25Snapshot(dir, ix.BM25.Snapshot()); err != nil {
		return err
	}
	if err := persist.SaveVectorMap(dir, ix.Vector.Dim(), ix.Vector.Snapshot()); err != nil {
		return err
	}
	return nil
}
