// Package score implements the scoring operations of spec.md section
// 4.9 (component C9): raw_score, the number of query-extracted keys a
// stored sequence also contains, and corrected_score, raw_score adjusted
// for k-mers precluded from the inverted index because they are
// high-frequency.
package score

import (
	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/highfreqcache"
	"github.com/grailbio/kmersearch/kmer"
)

// adaptiveThreshold is the |stored_keys|*|query_keys| cutoff below which
// the nested-loop scheme beats building a hash set (spec.md section 4.9
// "Adaptive algorithm selection").
const adaptiveThreshold = 100

// RawScore extracts both sides per section 4.2 (without high-frequency
// filtering, per section 4.9) and returns how many query keys match a
// stored key. query is always treated as DNA4 text, since a text query
// expands degenerates the same way regardless of the stored column's
// alphabet.
func RawScore(stored alphabet.Seq, query string, k, occurBits int) (int, error) {
	storedKeys, err := kmer.Extract(stored, k, occurBits)
	if err != nil {
		return 0, err
	}
	queryKeys, err := kmer.ExtractString(query, alphabet.DNA4, k, occurBits)
	if err != nil {
		return 0, err
	}
	return RawScoreKeys(storedKeys, queryKeys), nil
}

// RawScoreKeys scores two already-extracted key sets, for callers (e.g.
// CorrectedScore) that need the intermediate key arrays rather than
// re-extracting.
func RawScoreKeys(storedKeys, queryKeys []kmer.PackedKey) int {
	if len(storedKeys)*len(queryKeys) < adaptiveThreshold {
		return nestedLoopScore(storedKeys, queryKeys)
	}
	return hashSetScore(storedKeys, queryKeys)
}

// nestedLoopScore is the O(|stored|*|query|) scheme: cheaper than
// building a hash set when both sides are small.
func nestedLoopScore(storedKeys, queryKeys []kmer.PackedKey) int {
	score := 0
	for _, q := range queryKeys {
		for _, s := range storedKeys {
			if q.Equal(s) {
				score++
				break
			}
		}
	}
	return score
}

// hashSetScore inserts storedKeys into a set keyed on the full packed key
// (k-mer bits and occurrence ordinal both), so a k-mer repeated r times on
// each side contributes min(r_query, r_stored) to the score: a query key
// only hits a stored key sharing both its k-mer value and its ordinal.
func hashSetScore(storedKeys, queryKeys []kmer.PackedKey) int {
	set := make(map[kmer.PackedKey]struct{}, len(storedKeys))
	for _, s := range storedKeys {
		set[s] = struct{}{}
	}
	score := 0
	for _, q := range queryKeys {
		if _, ok := set[q]; ok {
			score++
		}
	}
	return score
}

// CorrectedScore adds to RawScore the count of k-mers that appear on both
// sides and are high-frequency for the stored column (spec.md section
// 4.9): compensation for postings precluding dropped from the inverted
// index. hf may be nil, meaning preclude_highfreq_kmer is off for this
// column and no correction applies.
func CorrectedScore(stored alphabet.Seq, query string, k, occurBits int, hf highfreqcache.Cache) (int, error) {
	storedKeys, err := kmer.Extract(stored, k, occurBits)
	if err != nil {
		return 0, err
	}
	queryKeys, err := kmer.ExtractString(query, alphabet.DNA4, k, occurBits)
	if err != nil {
		return 0, err
	}
	raw := RawScoreKeys(storedKeys, queryKeys)
	if hf == nil {
		return raw, nil
	}
	return raw + mutualHighFreqCount(storedKeys, queryKeys, hf), nil
}

// mutualHighFreqCount counts distinct k-mer integers present on both sides
// that hf reports as high-frequency. Distinctness here is on the k-mer
// integer alone (not the full packed key), since high-frequency status is
// a property of the k-mer value, not of a particular occurrence.
func mutualHighFreqCount(storedKeys, queryKeys []kmer.PackedKey, hf highfreqcache.Cache) int {
	storedInts := make(map[uint64]struct{}, len(storedKeys))
	for _, s := range storedKeys {
		storedInts[s.HashForm()] = struct{}{}
	}
	seen := make(map[uint64]struct{})
	count := 0
	for _, q := range queryKeys {
		v := q.HashForm()
		if _, already := seen[v]; already {
			continue
		}
		seen[v] = struct{}{}
		if _, inStored := storedInts[v]; !inStored {
			continue
		}
		if hf.Contains(v) {
			count++
		}
	}
	return count
}
