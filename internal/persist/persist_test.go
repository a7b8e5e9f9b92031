package persist_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/bm25"
	"github.com/nekowasabi/digrag/internal/docstore"
	"github.com/nekowasabi/digrag/internal/document"
	"github.com/nekowasabi/digrag/internal/persist"
)

func TestBM25Snapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	snapshot := bm25.Snapshot{
		Postings: map[string][]bm25.Posting{
			"alpha": {{DocID: "doc1", TF: 2}, {DocID: "doc2", TF: 1}},
		},
		DocLengths: map[string]int{"doc1": 10, "doc2": 5},
		Avgdl:      7.5,
		N:          2,
	}

	require.NoError(t, persist.SaveBM25Snapshot(dir, snapshot))

	got, err := persist.LoadBM25Snapshot(dir)
	require.NoError(t, err)
	require.Equal(t, snapshot, got)
}

func TestVectorMap_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	vectors := map[string][]float32{
		"doc1": {0.1, 0.2, 0.3},
		"doc2": {0.4, 0.5, 0.6},
	}

	require.NoError(t, persist.SaveVectorMap(dir, 3, vectors))

	got, err := persist.LoadVectorMap(dir)
	require.NoError(t, err)
	require.Equal(t, 3, got.Dim)
	require.Equal(t, vectors, got.Vectors)
}

func TestDocstore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := docstore.New()
	doc := document.New("", "Title", "body text", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), []string{"memo"})
	store.Insert(doc)

	require.NoError(t, persist.SaveDocstore(dir, store))

	got, err := persist.LoadDocstore(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, doc.Title, got[doc.ID].Title)
}

func TestMetadata_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	dim := 3
	m := persist.Metadata{
		SchemaVersion: persist.CurrentSchemaVersion,
		BuiltAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EmbeddingDim:  &dim,
		DocHashes:     map[string]string{"doc1": "hash1", "doc2": "hash2"},
	}

	require.NoError(t, persist.SaveMetadata(dir, m))

	got, err := persist.LoadMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, m.SchemaVersion, got.SchemaVersion)
	require.Equal(t, m.DocHashes, got.DocHashes)
	require.NotNil(t, got.EmbeddingDim)
	require.Equal(t, 3, *got.EmbeddingDim)
}

func TestSortedDocHashKeys_IsSorted(t *testing.T) {
	m := persist.Metadata{DocHashes: map[string]string{"zeta": "h", "alpha": "h", "mid": "h"}}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, persist.SortedDocHashKeys(m))
}

func TestSaveJSONAtomic_OverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	m1 := persist.Metadata{SchemaVersion: "1.0", DocHashes: map[string]string{"a": "1"}}
	m2 := persist.Metadata{SchemaVersion: "2.0", DocHashes: map[string]string{"b": "2"}}

	require.NoError(t, persist.SaveMetadata(dir, m1))
	require.NoError(t, persist.SaveMetadata(dir, m2))

	got, err := persist.LoadMetadata(dir)
	require.NoError(t, err)
	require.Equal(t, "2.0", got.SchemaVersion)
	require.Equal(t, map[string]string{"b": "2"}, got.DocHashes)

	// no leftover temp file
	entries, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
