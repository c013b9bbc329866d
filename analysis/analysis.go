// Package analysis implements the frequency analyzer of spec.md section
// 4.3 (component C3): a parallel pass over a corpus that counts, for
// every distinct k-mer, how many rows contain it, then persists the
// k-mers exceeding the configured thresholds as "high-frequency".
package analysis

import (
	"os"
	"strconv"

	"github.com/grailbio/base/traverse"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/fht"
	"github.com/grailbio/kmersearch/highfreqcache"
	"github.com/grailbio/kmersearch/kmer"
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/kmerr"
	"github.com/grailbio/kmersearch/metastore"
)

// Corpus is the row source the analyzer partitions across workers: a
// contiguous, randomly addressable sequence of packed rows in one column.
// This is the core's boundary with "host-level row iteration" (spec.md
// section 5); a real host binds its own block-range reader here.
type Corpus interface {
	NumRows() int
	Row(i int) (alphabet.Seq, error)
}

// Summary is the result of a completed analysis run, returned by
// perform_highfreq_analysis (spec.md section 6.5).
type Summary struct {
	TotalRows     int
	DistinctKmers int
	HighFreqKmers int
	Fingerprint   metastore.Fingerprint
}

// BatchFlushThreshold is the default number of distinct k-mers a worker
// accumulates in memory before flushing into its private FHT via BulkAdd
// (spec.md section 4.3 step 3).
const BatchFlushThreshold = 1 << 16

// Run executes the frequency analyzer (component C3) over corpus under
// cfg, fanning out across workers goroutines the way the teacher's
// traverse.Each-based parallel stages do (pileup/snp/pileup.go,
// encoding/converter/convert.go) — standing in for the spec's worker
// *processes*; see DESIGN.md for why a goroutine pool is the faithful Go
// rendition of "worker processes coordinated by one leader" here. Each
// worker writes a private temporary FHT under tempDir; Run merges them,
// classifies the high-frequency set, and commits it plus its fingerprint
// to store as one call (spec.md section 4.3 step 6).
func Run(tc metastore.TableColumn, corpus Corpus, cfg kmerconfig.Config, workers int, tempDir string, store metastore.Store) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	totalRows := corpus.NumRows()
	if workers < 1 {
		workers = 1
	}
	if totalRows > 0 && workers > totalRows {
		workers = totalRows
	}

	variant := fht.VariantFor(2 * cfg.KmerSize)
	workerPaths := make([]string, workers)
	workerTables := make([]*fht.Table, workers)

	// Registered up front so any failure path — a worker error, a merge
	// error, a commit error — removes every worker's temporary file,
	// satisfying spec.md section 4.3's "Analyzer must register a cleanup
	// callback guaranteeing removal of worker files on abort from any
	// cause."
	cleanup := func() {
		for i, t := range workerTables {
			if t != nil {
				t.Close()
			}
			if workerPaths[i] != "" {
				os.Remove(workerPaths[i])
			}
		}
	}

	for i := 0; i < workers; i++ {
		f, err := os.CreateTemp(tempDir, "kmersearch_analysis_"+strconv.Itoa(i)+"_*.fht")
		if err != nil {
			cleanup()
			return Summary{}, kmerr.E(kmerr.ResourceExhausted, "creating analysis temp file", err)
		}
		path := f.Name()
		f.Close()
		os.Remove(path) // fht.Create recreates it; only the unique name was needed
		workerPaths[i] = path
	}

	// Section 5's "restrictions on workers": each worker only extracts
	// k-mers and maintains its private hash; no host-side writes happen
	// until every worker has returned, below.
	err := traverse.Each(workers, func(w int) error {
		start := (w * totalRows) / workers
		end := ((w + 1) * totalRows) / workers

		tbl, err := fht.Create(workerPaths[w], variant, uint64(end-start))
		if err != nil {
			return err
		}
		workerTables[w] = tbl

		batch := make(map[uint64]uint64)
		for i := start; i < end; i++ {
			seq, err := corpus.Row(i)
			if err != nil {
				return err
			}
			distinctKmers, err := kmer.DistinctInts(seq, cfg.KmerSize)
			if err != nil {
				return err
			}
			for _, k := range distinctKmers {
				batch[k]++
			}
			if len(batch) >= BatchFlushThreshold {
				if err := tbl.BulkAdd(batch); err != nil {
					return err
				}
				batch = make(map[uint64]uint64)
			}
		}
		if len(batch) > 0 {
			if err := tbl.BulkAdd(batch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return Summary{}, err
	}

	// Merge every worker table pairwise into workerTables[0] (step 4:
	// "merge reads source, adds to target, deletes source").
	merged := workerTables[0]
	for i := 1; i < workers; i++ {
		if err := fht.Merge(merged, workerTables[i]); err != nil {
			cleanup()
			return Summary{}, err
		}
		workerTables[i].Close()
		os.Remove(workerPaths[i])
		workerTables[i] = nil
	}

	var highFreq []uint64
	distinct := 0
	iterErr := merged.Iterate(func(k, rowCount uint64) bool {
		distinct++
		if isHighFrequency(rowCount, uint64(totalRows), cfg) {
			highFreq = append(highFreq, k)
		}
		return true
	})
	merged.Close()
	os.Remove(workerPaths[0])
	if iterErr != nil {
		return Summary{}, iterErr
	}

	fp := metastore.Fingerprint{Fingerprint: cfg.Fingerprint()}
	if err := store.CommitAnalysis(tc, fp, highFreq); err != nil {
		return Summary{}, err
	}

	return Summary{
		TotalRows:     totalRows,
		DistinctKmers: distinct,
		HighFreqKmers: len(highFreq),
		Fingerprint:   fp,
	}, nil
}

// isHighFrequency applies spec.md section 4.3 step 5's classification
// rule: row_count/total_rows > max_appearance_rate, OR
// (max_appearance_nrow > 0 AND row_count > max_appearance_nrow).
func isHighFrequency(rowCount, totalRows uint64, cfg kmerconfig.Config) bool {
	if totalRows == 0 {
		return false
	}
	if float64(rowCount)/float64(totalRows) > cfg.MaxAppearanceRate {
		return true
	}
	return cfg.MaxAppearanceNrow > 0 && rowCount > uint64(cfg.MaxAppearanceNrow)
}

// Undo deletes the high-frequency records and fingerprint for tc (spec.md
// section 4.3 "Undo"), then calls highfreqcache.Invalidate, which drops
// this process's shared-cache attachments for tc. Process-local caches
// held elsewhere (for example by an engine) are not reached by that call.
func Undo(tc metastore.TableColumn, store metastore.Store) error {
	if err := store.UndoAnalysis(tc); err != nil {
		return err
	}
	// Drop any shared high-frequency cache segment this process attached
	// for (table,column): spec.md section 4.7 "Invalidation" requires the
	// cache be freed the moment the analysis it was built from is undone.
	highfreqcache.Invalidate(tc)
	return nil
}
