// Package ginindex implements the four host access-method hooks of
// spec.md section 4.5/6.1 (component C5): extract_index_keys,
// extract_query_keys, adjusted_min_score, consistent, plus the fixed
// posting-key comparator compare_partial. A real host's generalized
// inverted-index access method calls these four directly; this package
// is the boundary between that host contract and the core extraction,
// cache, and high-frequency packages built underneath it.
package ginindex

import (
	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/highfreqcache"
	"github.com/grailbio/kmersearch/kmer"
	"github.com/grailbio/kmersearch/querycache"
)

// ExtractIndexKeys runs the extractor (section 4.2) over packed and, when
// precludeHighfreq is set, drops every posting key whose k-mer integer is
// high-frequency (section 4.5 operation 1). hf may be nil only when
// precludeHighfreq is false.
func ExtractIndexKeys(packed alphabet.Seq, k, occurBits int, precludeHighfreq bool, hf highfreqcache.Cache) ([]kmer.PackedKey, error) {
	keys, err := kmer.Extract(packed, k, occurBits)
	if err != nil {
		return nil, err
	}
	if !precludeHighfreq {
		return keys, nil
	}
	return filterHighFreq(keys, hf), nil
}

// ExtractQueryKeys runs the extractor over a text query (section 4.5
// operation 2), applying the same high-frequency filter as
// ExtractIndexKeys when requested, and caches the filtered result in
// patterns keyed on (query, k). A cache hit skips extraction entirely.
func ExtractQueryKeys(query string, a alphabet.Alphabet, k, occurBits int, precludeHighfreq bool, hf highfreqcache.Cache, patterns *querycache.PatternCache) ([]kmer.PackedKey, error) {
	if cached, ok := patterns.Get(query, k); ok {
		return cached, nil
	}
	keys, err := kmer.ExtractString(query, a, k, occurBits)
	if err != nil {
		return nil, err
	}
	if precludeHighfreq {
		keys = filterHighFreq(keys, hf)
	}
	patterns.Put(query, k, keys)
	return keys, nil
}

func filterHighFreq(keys []kmer.PackedKey, hf highfreqcache.Cache) []kmer.PackedKey {
	if hf == nil {
		return keys
	}
	out := keys[:0:0]
	for _, k := range keys {
		if !hf.Contains(k.HashForm()) {
			out = append(out, k)
		}
	}
	return out
}

// AdjustedMinScore returns max(0, minScore - number of queryKeys that are
// high-frequency) (section 4.5 operation 3), caching by a hash of the key
// set so repeated queries over the same filtered key array skip the
// high-frequency membership scan.
func AdjustedMinScore(queryKeys []kmer.PackedKey, minScore int, hf highfreqcache.Cache, scores *querycache.MinScoreCache) int {
	h := querycache.HashKeys(queryKeys)
	if v, ok := scores.Get(h); ok {
		return v
	}
	highFreqCount := 0
	if hf != nil {
		for _, k := range queryKeys {
			if hf.Contains(k.HashForm()) {
				highFreqCount++
			}
		}
	}
	score := minScore - highFreqCount
	if score < 0 {
		score = 0
	}
	scores.Put(h, score)
	return score
}

// Consistent implements section 4.5 operation 4: given which query keys
// matched in a candidate row's posting-list bitmap, report whether the
// match count meets AdjustedMinScore, and a recheck flag. Posting-list
// matching is necessary but not sufficient (high-frequency filtering and
// occurrence-ordinal truncation both lose information), so recheck is
// true whenever the candidate is provisionally consistent — the host
// must still verify it against rawscore before accepting it. A candidate
// that fails the threshold outright needs no further verification.
func Consistent(matches []bool, queryKeys []kmer.PackedKey, minScore int, hf highfreqcache.Cache, scores *querycache.MinScoreCache) (ok bool, recheck bool) {
	matchCount := 0
	for _, m := range matches {
		if m {
			matchCount++
		}
	}
	threshold := AdjustedMinScore(queryKeys, minScore, hf, scores)
	ok = matchCount >= threshold
	return ok, ok
}

// ComparePartial is the host's fixed posting-key comparator (section
// 6.1): order by byte length, then by byte contents.
func ComparePartial(a, b kmer.PackedKey) int {
	return kmer.ComparePartial(a, b)
}
