package bm25_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/bm25"
)

type fakeTagFilter map[string]map[string]bool // docID -> tag -> present

func (f fakeTagFilter) HasTag(docID, tag string) bool {
	return f[docID][tag]
}

func TestQuery_EmptyForUnknownTokens(t *testing.T) {
	idx := bm25.New()
	idx.Insert("a", []string{"vim", "conf"})

	hits := idx.Query([]string{"nonexistent"}, 10, nil, "")
	require.Empty(t, hits)
}

func TestQuery_CamelCaseScenario(t *testing.T) {
	idx := bm25.New()
	idx.Insert("doc1", []string{"vimconf2025", "vim", "conf", "2025", "keynote"})

	for _, q := range []string{"vim", "2025", "vimconf2025", "conf"} {
		hits := idx.Query([]string{q}, 10, nil, "")
		require.Lenf(t, hits, 1, "query %q", q)
		require.Equal(t, "doc1", hits[0].DocID)
	}
}

func TestQuery_ScoresNonNegative(t *testing.T) {
	idx := bm25.New()
	idx.Insert("a", []string{"foo", "bar"})
	idx.Insert("b", []string{"foo", "foo", "baz"})

	hits := idx.Query([]string{"foo"}, 10, nil, "")
	for _, h := range hits {
		require.GreaterOrEqual(t, h.Score, 0.0)
	}
}

func TestQuery_TagFilter(t *testing.T) {
	idx := bm25.New()
	idx.Insert("memo-doc", []string{"daily", "update"})
	idx.Insert("worklog-doc", []string{"daily", "update"})

	tags := fakeTagFilter{
		"memo-doc":    {"memo": true},
		"worklog-doc": {"worklog": true},
	}

	hits := idx.Query([]string{"daily"}, 10, tags, "memo")
	require.Len(t, hits, 1)
	require.Equal(t, "memo-doc", hits[0].DocID)
}

func TestRemoveThenInsert_IdentityReuse(t *testing.T) {
	idx := bm25.New()
	idx.Insert("id-old", []string{"old", "content"})
	idx.Remove("id-old")
	idx.Insert("id-old", []string{"new", "content"})

	require.Equal(t, 1, idx.Len())
	hits := idx.Query([]string{"new"}, 10, nil, "")
	require.Len(t, hits, 1)
	hits = idx.Query([]string{"old"}, 10, nil, "")
	require.Empty(t, hits)
}

func TestRemove_Idempotent(t *testing.T) {
	idx := bm25.New()
	idx.Insert("a", []string{"x"})
	idx.Remove("a")
	require.NotPanics(t, func() { idx.Remove("a") })
	require.Equal(t, 0, idx.Len())
}

func TestQuery_TieBrokenByDocIDAscending(t *testing.T) {
	idx := bm25.New()
	idx.Insert("zzz", []string{"shared"})
	idx.Insert("aaa", []string{"shared"})

	hits := idx.Query([]string{"shared"}, 10, nil, "")
	require.Len(t, hits, 2)
	require.Equal(t, "aaa", hits[0].DocID)
	require.Equal(t, "zzz", hits[1].DocID)
}

func TestQuery_TopKLimit(t *testing.T) {
	idx := bm25.New()
	idx.Insert("a", []string{"x"})
	idx.Insert("b", []string{"x"})
	idx.Insert("c", []string{"x"})

	hits := idx.Query([]string{"x"}, 2, nil, "")
	require.Len(t, hits, 2)
}

func TestDocIDs_MatchesInsertedSet(t *testing.T) {
	idx := bm25.New()
	idx.Insert("b", []string{"x"})
	idx.Insert("a", []string{"y"})
	require.Equal(t, []string{"a", "b"}, idx.DocIDs())
}
