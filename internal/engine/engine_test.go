package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/document"
	"github.com/nekowasabi/digrag/internal/engine"
)

func TestNew_StartsEmpty(t *testing.T) {
	ix := engine.New()
	require.Equal(t, 0, ix.BM25.Len())
	require.Equal(t, 0, ix.Vector.Len())
	require.Equal(t, 0, ix.Docstore.Len())
}

func TestSaveThenLoad_RoundTripsAllFourArtifacts(t *testing.T) {
	dir := t.TempDir()

	ix := engine.New()
	doc := document.New("", "Alpha", "alpha body", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), []string{"memo"})
	ix.Docstore.Insert(doc)
	ix.BM25.Insert(doc.ID, []string{"alpha", "body"})
	require.NoError(t, ix.Vector.Add(doc.ID, []float32{0.1, 0.2, 0.3}))

	meta := ix.Metadata()
	meta.DocHashes = map[string]string{doc.ID: doc.ID}
	dim := 3
	meta.EmbeddingDim = &dim
	ix.SetMetadata(meta)

	require.NoError(t, ix.Save(dir))

	loaded, err := engine.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Docstore.Len())
	require.Equal(t, 1, loaded.BM25.Len())
	require.Equal(t, 1, loaded.Vector.Len())

	got, ok := loaded.Docstore.Get(doc.ID)
	require.True(t, ok)
	require.Equal(t, "Alpha", got.Title)

	hits := loaded.BM25.Query([]string{"alpha"}, 10, nil, "")
	require.Len(t, hits, 1)
	require.Equal(t, doc.ID, hits[0].DocID)
}

func TestLoad_MissingDirectoryReturnsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	ix, err := engine.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 0, ix.Docstore.Len())
}

func TestBeginEndWrite_SerializesBuilders(t *testing.T) {
	ix := engine.New()
	ix.BeginWrite()
	done := make(chan struct{})
	go func() {
		ix.BeginWrite()
		close(done)
		ix.EndWrite()
	}()

	select {
	case <-done:
		t.Fatal("second BeginWrite should have blocked while the first write lock is held")
	case <-time.After(50 * time.Millisecond):
	}
	ix.EndWrite()
	<-done
}
