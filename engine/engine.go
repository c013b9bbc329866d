// Package engine ties together configuration, the three query caches,
// the high-frequency cache, and the metadata store into the per-process
// "engine context" spec.md section 9 calls for ("Global mutable state"):
// the host's backend process creates one Context at startup and passes
// it to every top-level operation instead of reaching for module-level
// globals. Context exposes the three section 6.5 user-visible
// operations plus the section 6.1 access-method hooks.
package engine

import (
	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/analysis"
	"github.com/grailbio/kmersearch/ginindex"
	"github.com/grailbio/kmersearch/highfreqcache"
	"github.com/grailbio/kmersearch/kmer"
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/metastore"
	"github.com/grailbio/kmersearch/querycache"
	"github.com/grailbio/kmersearch/score"
)

// Stats is the summary-tuple spec.md section 6.5 promises from
// perform_highfreq_analysis/undo_highfreq_analysis without shaping,
// mirroring fusion.Stats/fusion.Stats.Merge's mergeable-counters design.
type Stats struct {
	Fragments     int
	RowsScanned   int
	DistinctKmers int
	HighFreqKmers int
}

// Merge adds the field values of two Stats and returns the sum, the same
// shape as fusion.Stats.Merge.
func (s Stats) Merge(o Stats) Stats {
	s.Fragments += o.Fragments
	s.RowsScanned += o.RowsScanned
	s.DistinctKmers += o.DistinctKmers
	s.HighFreqKmers += o.HighFreqKmers
	return s
}

// Context is the per-process engine singleton. A real host constructs
// exactly one per backend process at module load and tears it down at
// module unload (spec.md section 9).
type Context struct {
	cfg   kmerconfig.Config
	store metastore.Store

	patterns  *querycache.PatternCache
	minScores *querycache.MinScoreCache
	rawscores *querycache.RawscoreCache

	hfCache *hfRegistry
}

// New validates cfg and returns a ready Context bound to store, sizing
// the three query caches from cfg's configured capacities.
func New(cfg kmerconfig.Config, store metastore.Store) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Context{
		cfg:       cfg,
		store:     store,
		patterns:  querycache.NewPatternCache(cfg.QueryPatternCacheMaxEntries),
		minScores: querycache.NewMinScoreCache(cfg.ActualMinScoreCacheMaxEntries),
		rawscores: querycache.NewRawscoreCache(cfg.RawscoreCacheMaxEntries),
		hfCache:   newHFRegistry(),
	}, nil
}

// Reconfigure applies a new configuration, validating it and clearing
// all three query caches whether or not their capacity changed, each
// rebuilt with the capacity cfg gives it (spec.md section 4.6). Any attached
// high-frequency caches are dropped unconditionally since their
// fingerprint may no longer match cfg.
func (c *Context) Reconfigure(cfg kmerconfig.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.patterns.Clear(cfg.QueryPatternCacheMaxEntries)
	c.minScores.Clear(cfg.ActualMinScoreCacheMaxEntries)
	c.rawscores.Clear(cfg.RawscoreCacheMaxEntries)
	c.hfCache.closeAll()
	return nil
}

// Close tears the context down, releasing every attached high-frequency
// cache (the shared-cache variant's process-exit cleanup callback, per
// spec.md section 4.7).
func (c *Context) Close() error {
	return c.hfCache.closeAll()
}

// highFreqCacheFor lazily loads and memoizes the high-frequency cache for
// (table,column), returning nil (not an error) when preclude_highfreq_kmer
// is off — no caller needs high-frequency membership in that mode.
func (c *Context) highFreqCacheFor(tc metastore.TableColumn) (highfreqcache.Cache, error) {
	if !c.cfg.PrecludeHighfreqKmer {
		return nil, nil
	}
	return c.hfCache.getOrLoad(tc, func() (highfreqcache.Cache, error) {
		return highfreqcache.Load(tc, c.cfg, c.store)
	})
}

// PerformHighfreqAnalysis runs the frequency analyzer (section 4.3) over
// corpus for (table,column) using workers goroutines and tempDir for
// worker-private FHT files, dropping any previously attached
// high-frequency cache for the column since the committed set it was
// built from no longer matches the fresh analysis.
func (c *Context) PerformHighfreqAnalysis(tc metastore.TableColumn, corpus analysis.Corpus, workers int, tempDir string) (Stats, error) {
	summary, err := analysis.Run(tc, corpus, c.cfg, workers, tempDir, c.store)
	if err != nil {
		return Stats{}, err
	}
	c.hfCache.drop(tc)
	return Stats{
		RowsScanned:   summary.TotalRows,
		DistinctKmers: summary.DistinctKmers,
		HighFreqKmers: summary.HighFreqKmers,
	}, nil
}

// UndoHighfreqAnalysis reverses a committed analysis (section 4.3 "Undo")
// and invalidates any attached high-frequency cache for the column
// (section 4.7 "Invalidation").
func (c *Context) UndoHighfreqAnalysis(tc metastore.TableColumn) (Stats, error) {
	if err := analysis.Undo(tc, c.store); err != nil {
		return Stats{}, err
	}
	c.hfCache.drop(tc)
	return Stats{}, nil
}

// Rawscore is the section 6.5 user-visible rawscore(sequence, query)
// operation, cached by (stored sequence bytes, query string) in the
// rawscore cache.
func (c *Context) Rawscore(stored alphabet.Seq, query string) (int, error) {
	storedStr := string(stored.Bytes())
	existing, ok := c.rawscores.Get(storedStr, query)
	if ok && existing.Score >= 0 {
		return existing.Score, nil
	}
	s, err := score.RawScore(stored, query, c.cfg.KmerSize, c.cfg.OccurBitLen)
	if err != nil {
		return 0, err
	}
	if !ok {
		existing = querycache.RawscoreResult{CorrectedScore: -1}
	}
	existing.Score = s
	c.rawscores.Put(storedStr, query, existing)
	return s, nil
}

// Correctedscore is the section 6.5 user-visible correctedscore(sequence,
// query) operation for (table,column), adjusting rawscore for mutual
// high-frequency k-mers dropped from the inverted index by precluding.
func (c *Context) Correctedscore(tc metastore.TableColumn, stored alphabet.Seq, query string) (int, error) {
	storedStr := string(stored.Bytes())
	existing, ok := c.rawscores.Get(storedStr, query)
	if ok && existing.CorrectedScore >= 0 {
		return existing.CorrectedScore, nil
	}
	hf, err := c.highFreqCacheFor(tc)
	if err != nil {
		return 0, err
	}
	s, err := score.CorrectedScore(stored, query, c.cfg.KmerSize, c.cfg.OccurBitLen, hf)
	if err != nil {
		return 0, err
	}
	if !ok {
		existing = querycache.RawscoreResult{Score: -1}
	}
	existing.CorrectedScore = s
	c.rawscores.Put(storedStr, query, existing)
	return s, nil
}

// ExtractValue is the extract_value access-method hook (section 6.1),
// forwarding to ExtractIndexKeys (section 4.5 operation 1) under tc's
// high-frequency cache.
func (c *Context) ExtractValue(tc metastore.TableColumn, packed alphabet.Seq) ([]kmer.PackedKey, error) {
	hf, err := c.highFreqCacheFor(tc)
	if err != nil {
		return nil, err
	}
	return ginindex.ExtractIndexKeys(packed, c.cfg.KmerSize, c.cfg.OccurBitLen, c.cfg.PrecludeHighfreqKmer, hf)
}

// ExtractQuery is the extract_query access-method hook (section 6.1),
// forwarding to ExtractQueryKeys (section 4.5 operation 2).
func (c *Context) ExtractQuery(tc metastore.TableColumn, query string, a alphabet.Alphabet) ([]kmer.PackedKey, error) {
	hf, err := c.highFreqCacheFor(tc)
	if err != nil {
		return nil, err
	}
	return ginindex.ExtractQueryKeys(query, a, c.cfg.KmerSize, c.cfg.OccurBitLen, c.cfg.PrecludeHighfreqKmer, hf, c.patterns)
}

// Consistent is the consistent access-method hook (section 6.1),
// forwarding to ginindex.Consistent (section 4.5 operation 4).
func (c *Context) Consistent(tc metastore.TableColumn, matches []bool, queryKeys []kmer.PackedKey) (ok bool, recheck bool, err error) {
	hf, err := c.highFreqCacheFor(tc)
	if err != nil {
		return false, false, err
	}
	ok, recheck = ginindex.Consistent(matches, queryKeys, c.cfg.MinScore, hf, c.minScores)
	return ok, recheck, nil
}

// ComparePartial is the compare_partial access-method hook (section 6.1).
func (c *Context) ComparePartial(a, b kmer.PackedKey) int {
	return ginindex.ComparePartial(a, b)
}
