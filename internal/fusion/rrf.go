// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fusion merges ranked result lists with Reciprocal Rank Fusion
// (spec §4.4), grounded on the teacher's hybrid BM25+embedding blend in
// services/trace/agent/routing/prefilter.go (scoreHybrid), generalized
// from a weighted score blend to rank-based RRF since the two input
// result sets here (BM25, cosine) live on incomparable score scales.
package fusion

import "sort"

// K is the RRF smoothing constant (spec §4.4). Fixed, not configurable,
// per spec.
const K = 60

// Ranked is a single ranked id from one of the input lists.
type Ranked struct {
	ID string
}

// Fused is one document's fused result.
type Fused struct {
	ID    string
	Score float64
}

// Combine merges any number of ranked lists into a single fused ranking
// using Reciprocal Rank Fusion: each list contributes 1/(K+rank) to every
// id it contains, rank counted from 1. Ids absent from a list contribute
// nothing from that list. The result is sorted by fused score descending,
// ties broken by id ascending.
func Combine(lists ...[]Ranked) []Fused {
	scores := make(map[string]float64)
	order := make([]string, 0)
	seen := make(map[string]bool)

	for _, list := range lists {
		for rank, r := range list {
			if !seen[r.ID] {
				seen[r.ID] = true
				order = append(order, r.ID)
			}
			scores[r.ID] += 1.0 / float64(K+rank+1)
		}
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		out = append(out, Fused{ID: id, Score: scores[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FromIDs converts a plain ordered id slice (as returned by bm25.Index.Query
// or vectorindex.Index.Query after dropping scores) into a Ranked slice
// suitable for Combine.
func FromIDs(ids []string) []Ranked {
	out := make([]Ranked, len(ids))
	for i, id := range ids {
		out[i] = Ranked{ID: id}
	}
	return out
}
