package fusion_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/fusion"
)

func TestCombine_AgreementBoostsScore(t *testing.T) {
	bm25 := fusion.FromIDs([]string{"a", "b", "c"})
	vec := fusion.FromIDs([]string{"a", "c", "b"})

	fused := fusion.Combine(bm25, vec)
	require.Equal(t, "a", fused[0].ID)

	expected := 1.0/61.0 + 1.0/61.0
	require.InDelta(t, expected, fused[0].Score, 1e-9)
}

func TestCombine_OnlyInOneListStillScored(t *testing.T) {
	bm25 := fusion.FromIDs([]string{"only-bm25"})
	vec := fusion.FromIDs([]string{"only-vec"})

	fused := fusion.Combine(bm25, vec)
	require.Len(t, fused, 2)

	scoresByID := map[string]float64{}
	for _, f := range fused {
		scoresByID[f.ID] = f.Score
	}
	require.InDelta(t, 1.0/61.0, scoresByID["only-bm25"], 1e-9)
	require.InDelta(t, 1.0/61.0, scoresByID["only-vec"], 1e-9)
}

func TestCombine_TieBrokenByIDAscending(t *testing.T) {
	bm25 := fusion.FromIDs([]string{"zzz"})
	vec := fusion.FromIDs([]string{"aaa"})

	fused := fusion.Combine(bm25, vec)
	require.Equal(t, "aaa", fused[0].ID)
	require.Equal(t, "zzz", fused[1].ID)
}

func TestCombine_EmptyListsProduceEmptyResult(t *testing.T) {
	fused := fusion.Combine([]fusion.Ranked{}, []fusion.Ranked{})
	require.Empty(t, fused)
}

func TestCombine_SingleListPreservesRankOrder(t *testing.T) {
	bm25 := fusion.FromIDs([]string{"first", "second", "third"})
	fused := fusion.Combine(bm25)
	require.Equal(t, []string{"first", "second", "third"}, []string{fused[0].ID, fused[1].ID, fused[2].ID})
}

func TestCombine_RankWithinListDecaysScore(t *testing.T) {
	bm25 := fusion.FromIDs([]string{"top", "bottom"})
	fused := fusion.Combine(bm25)

	scoresByID := map[string]float64{}
	for _, f := range fused {
		scoresByID[f.ID] = f.Score
	}
	require.Greater(t, scoresByID["top"], scoresByID["bottom"])
}
