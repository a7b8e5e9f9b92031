package searcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/digragerr"
	"github.com/nekowasabi/digrag/internal/document"
	"github.com/nekowasabi/digrag/internal/engine"
	"github.com/nekowasabi/digrag/internal/searcher"
	"github.com/nekowasabi/digrag/internal/tokenizer"
)

func mustTokenizer(t *testing.T) *tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.New()
	require.NoError(t, err)
	return tok
}

func buildIndex(t *testing.T) *engine.Index {
	t.Helper()
	ix := engine.New()

	memo := document.New("", "VimConf 2025 talk", "VimConf2025 keynote", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), []string{"memo"})
	worklog := document.New("", "Release notes", "shipped the new parser", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), []string{"worklog"})

	ix.Docstore.Insert(memo)
	ix.Docstore.Insert(worklog)
	ix.BM25.Insert(memo.ID, []string{"vimconf2025", "vim", "conf", "2025", "keynote"})
	ix.BM25.Insert(worklog.ID, []string{"shipped", "new", "parser"})

	require.NoError(t, ix.Vector.Add(memo.ID, []float32{1, 0, 0}))
	require.NoError(t, ix.Vector.Add(worklog.ID, []float32{0, 1, 0}))

	return ix
}

func TestSearch_BM25Mode_NoEmbeddingHookNeeded(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	s := searcher.New(ix, tok, nil, nil)

	hits, err := s.Search(context.Background(), "vim", searcher.Config{Mode: "bm25", TopK: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "VimConf 2025 talk", hits[0].Document.Title)
}

func TestSearch_SemanticMode_FailsWithoutEmbedHook(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	s := searcher.New(ix, tok, nil, nil)

	_, err := s.Search(context.Background(), "anything", searcher.Config{Mode: "semantic", TopK: 5})
	require.ErrorIs(t, err, digragerr.ErrCapabilityMissing)
}

func TestSearch_SemanticMode_UsesEmbedHook(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	embed := func(ctx context.Context, q string) ([]float32, error) { return []float32{1, 0, 0}, nil }
	s := searcher.New(ix, tok, embed, nil)

	hits, err := s.Search(context.Background(), "q", searcher.Config{Mode: "semantic", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "VimConf 2025 talk", hits[0].Document.Title)
}

func TestSearch_HybridMode_FusesBothLegs(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	embed := func(ctx context.Context, q string) ([]float32, error) { return []float32{1, 0, 0}, nil }
	s := searcher.New(ix, tok, embed, nil)

	hits, err := s.Search(context.Background(), "vim", searcher.Config{Mode: "hybrid", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestSearch_HybridMode_WorksWithoutEmbedHookUsingBM25Only(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	s := searcher.New(ix, tok, nil, nil)

	hits, err := s.Search(context.Background(), "vim", searcher.Config{Mode: "hybrid", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestSearch_BM25Mode_TagFilterExcludesOtherTags(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	s := searcher.New(ix, tok, nil, nil)

	hits, err := s.Search(context.Background(), "vim", searcher.Config{Mode: "bm25", TopK: 5, TagFilter: "worklog"})
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearch_InvalidConfigFailsValidation(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	s := searcher.New(ix, tok, nil, nil)

	_, err := s.Search(context.Background(), "vim", searcher.Config{Mode: "nonsense", TopK: 5})
	require.Error(t, err)
}

func TestSearch_RewriteHookError(t *testing.T) {
	ix := buildIndex(t)
	tok := mustTokenizer(t)
	rewrite := func(ctx context.Context, q string) (string, error) { return "", errors.New("boom") }
	s := searcher.New(ix, tok, nil, rewrite)

	_, err := s.Search(context.Background(), "vim", searcher.Config{Mode: "bm25", TopK: 5})
	require.Error(t, err)
}

func TestParseMode_UnknownDefaultsToHybrid(t *testing.T) {
	mode, ok := searcher.ParseMode("nonsense")
	require.False(t, ok)
	require.Equal(t, searcher.ModeHybrid, mode)
}
