// Package kmerconfig holds the typed configuration surface described in
// spec.md section 6.2, the same role fusion.Opts/fusion.DefaultOpts play in
// the teacher repo: one struct, one documented zero-value-safe default, and
// validation that raises before any index operation proceeds on a bad
// combination.
package kmerconfig

import (
	"fmt"

	"github.com/grailbio/kmersearch/kmerr"
)

// Config is the full named set of typed configuration variables from
// spec.md section 6.2.
type Config struct {
	// KmerSize is k, the number of bases per k-mer, required before any
	// index operation. Must be in [4,32].
	KmerSize int
	// OccurBitLen is the number of bits reserved for the occurrence
	// ordinal in packed keys. Must be in [0,16].
	OccurBitLen int
	// MaxAppearanceRate is the high-frequency threshold as a fraction of
	// rows, in [0,1].
	MaxAppearanceRate float64
	// MaxAppearanceNrow is the high-frequency threshold as an absolute row
	// count; 0 disables it.
	MaxAppearanceNrow int
	// MinScore is the baseline for AdjustedMinScore.
	MinScore int
	// PrecludeHighfreqKmer controls whether high-frequency k-mers are
	// filtered out during extraction.
	PrecludeHighfreqKmer bool
	// ForceUseParallelHighfreqKmerCache selects the shared-cache variant
	// of the high-frequency cache (section 4.7).
	ForceUseParallelHighfreqKmerCache bool
	// RawscoreCacheMaxEntries bounds the rawscore cache.
	RawscoreCacheMaxEntries int
	// QueryPatternCacheMaxEntries bounds the pattern cache.
	QueryPatternCacheMaxEntries int
	// ActualMinScoreCacheMaxEntries bounds the adjusted-min-score cache.
	ActualMinScoreCacheMaxEntries int
	// HighfreqKmerCacheLoadBatchSize is validated and carried in the
	// configuration but is not read when loading the persisted
	// high-frequency set: both cache loaders stream in batches of
	// highfreqcache.DefaultStreamBatch regardless of this value.
	HighfreqKmerCacheLoadBatchSize int
}

// DefaultConfig mirrors the defaults listed in spec.md section 6.2.
// KmerSize has no default: it is required before any index operation.
var DefaultConfig = Config{
	KmerSize:                          0,
	OccurBitLen:                       8,
	MaxAppearanceRate:                 0.05,
	MaxAppearanceNrow:                 0,
	MinScore:                          1,
	PrecludeHighfreqKmer:              false,
	ForceUseParallelHighfreqKmerCache: false,
	RawscoreCacheMaxEntries:           4096,
	QueryPatternCacheMaxEntries:       1024,
	ActualMinScoreCacheMaxEntries:     1024,
	HighfreqKmerCacheLoadBatchSize:    4096,
}

// Fingerprint is the tuple of configuration values that identifies a
// compatible analysis/index state (spec.md sections 3.1 and 9/GLOSSARY).
type Fingerprint struct {
	KmerSize          int
	OccurBits         int
	MaxAppearanceRate float64
	MaxAppearanceNrow int
}

// Fingerprint extracts c's fingerprint fields.
func (c Config) Fingerprint() Fingerprint {
	return Fingerprint{
		KmerSize:          c.KmerSize,
		OccurBits:         c.OccurBitLen,
		MaxAppearanceRate: c.MaxAppearanceRate,
		MaxAppearanceNrow: c.MaxAppearanceNrow,
	}
}

// rateTolerance is the absolute tolerance used by the planner gate (section
// 4.8) and by fingerprint comparisons more generally when comparing
// MaxAppearanceRate.
const rateTolerance = 1e-4

// Matches reports whether two fingerprints are compatible: every field
// compares exactly equal except MaxAppearanceRate, which tolerates the
// section-4.8 absolute tolerance of 1e-4.
func (f Fingerprint) Matches(other Fingerprint) bool {
	if f.KmerSize != other.KmerSize || f.OccurBits != other.OccurBits {
		return false
	}
	if f.MaxAppearanceNrow != other.MaxAppearanceNrow {
		return false
	}
	diff := f.MaxAppearanceRate - other.MaxAppearanceRate
	if diff < 0 {
		diff = -diff
	}
	return diff <= rateTolerance
}

// Validate checks the static constraints from spec.md sections 3.1 and 6.2,
// including the cross-field precondition that PrecludeHighfreqKmer requires
// ForceUseParallelHighfreqKmerCache before an index build may proceed.
func (c Config) Validate() error {
	if c.KmerSize < 4 || c.KmerSize > 32 {
		return kmerr.E(kmerr.InvalidInput, fmt.Sprintf("kmer_size must be in [4,32], got %d", c.KmerSize))
	}
	if c.OccurBitLen < 0 || c.OccurBitLen > 16 {
		return kmerr.E(kmerr.InvalidInput, fmt.Sprintf("occur_bitlen must be in [0,16], got %d", c.OccurBitLen))
	}
	if c.MaxAppearanceRate < 0 || c.MaxAppearanceRate > 1 {
		return kmerr.E(kmerr.InvalidInput, fmt.Sprintf("max_appearance_rate must be in [0,1], got %v", c.MaxAppearanceRate))
	}
	if c.MaxAppearanceNrow < 0 {
		return kmerr.E(kmerr.InvalidInput, "max_appearance_nrow must be >= 0")
	}
	if c.MinScore < 0 {
		return kmerr.E(kmerr.InvalidInput, "min_score must be >= 0")
	}
	if c.PrecludeHighfreqKmer && !c.ForceUseParallelHighfreqKmerCache {
		return kmerr.E(kmerr.ConfigMismatch,
			"preclude_highfreq_kmer=true requires force_use_parallel_highfreq_kmer_cache=true before an index build may proceed")
	}
	return nil
}

// IntWidth returns the integer-form width (in bits) used to hold a k-mer of
// this configuration's KmerSize, per spec.md section 3.1: 16/32/64 bits for
// k<=8/16/32.
func (c Config) IntWidth() int {
	switch {
	case c.KmerSize <= 8:
		return 16
	case c.KmerSize <= 16:
		return 32
	default:
		return 64
	}
}
