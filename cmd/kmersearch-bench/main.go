/*
kmersearch-bench runs the core end to end over a FASTA corpus: it performs
a high-frequency analysis pass, then scores every record in the corpus
against a query sequence and prints a ranked TSV.

	kmersearch-bench -fasta corpus.fa -query ACGTACGT -k 16

It stands in for the "host database" side of the access method: table and
column are caller-chosen labels, and the corpus records are the rows.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/grailbio/kmersearch/alphabet"
	"github.com/grailbio/kmersearch/encoding/fasta"
	"github.com/grailbio/kmersearch/engine"
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/metastore"
)

var (
	fastaPath    = flag.String("fasta", "", "Input FASTA file; one row per record")
	query        = flag.String("query", "", "Query DNA sequence to score every record against")
	table        = flag.String("table", "bench", "Table label for the (table,column) the corpus is attached to")
	column       = flag.String("column", "seq", "Column label for the (table,column) the corpus is attached to")
	kmerSize     = flag.Int("k", 16, "K-mer size, in [4,32]")
	occurBitLen  = flag.Int("occur-bits", kmerconfig.DefaultConfig.OccurBitLen, "Bits reserved for the occurrence ordinal in packed keys")
	appearance   = flag.Float64("max-appearance-rate", kmerconfig.DefaultConfig.MaxAppearanceRate, "High-frequency threshold as a fraction of rows")
	minScore     = flag.Int("min-score", kmerconfig.DefaultConfig.MinScore, "Baseline minimum score passed to AdjustedMinScore")
	preclude     = flag.Bool("preclude-highfreq", false, "Filter high-frequency k-mers out of extraction and scoring")
	workers      = flag.Int("workers", 0, "Analysis worker count; 0 selects one worker per corpus row up to a built-in cap")
	topN         = flag.Int("top", 10, "Number of ranked records to print; 0 prints all of them")
	alphabetName = flag.String("alphabet", "dna2", "Corpus/query alphabet: 'dna2' or 'dna4'")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -fasta corpus.fa -query ACGT [flags]\n", os.Args[0])
	flag.PrintDefaults()
}

// fastaCorpus adapts a parsed FASTA file to analysis.Corpus and
// engine.Context's row type, encoding every record once up front.
type fastaCorpus struct {
	rows []alphabet.Seq
}

func (c fastaCorpus) NumRows() int { return len(c.rows) }

func (c fastaCorpus) Row(i int) (alphabet.Seq, error) { return c.rows[i], nil }

func loadCorpus(path string, a alphabet.Alphabet) (fastaCorpus, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return fastaCorpus{}, nil, err
	}
	defer f.Close()

	records, err := fasta.ReadAll(f)
	if err != nil {
		return fastaCorpus{}, nil, err
	}
	names := make([]string, 0, len(records))
	rows := make([]alphabet.Seq, 0, len(records))
	for _, rec := range records {
		seq, err := alphabet.Encode(a, rec.Bases)
		if err != nil {
			return fastaCorpus{}, nil, fmt.Errorf("record %s: %v", rec.Name, err)
		}
		names = append(names, rec.Name)
		rows = append(rows, seq)
	}
	return fastaCorpus{rows: rows}, names, nil
}

type rankedRow struct {
	name           string
	rawScore       int
	correctedScore int
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	flag.Parse()

	if *fastaPath == "" || *query == "" {
		log.Fatal("-fasta and -query are required")
	}

	a := alphabet.DNA2
	if *alphabetName == "dna4" {
		a = alphabet.DNA4
	} else if *alphabetName != "dna2" {
		log.Fatalf("unknown -alphabet %q, want dna2 or dna4", *alphabetName)
	}

	cfg := kmerconfig.DefaultConfig
	cfg.KmerSize = *kmerSize
	cfg.OccurBitLen = *occurBitLen
	cfg.MaxAppearanceRate = *appearance
	cfg.MinScore = *minScore
	cfg.PrecludeHighfreqKmer = *preclude
	cfg.ForceUseParallelHighfreqKmerCache = *preclude

	corpus, names, err := loadCorpus(*fastaPath, a)
	if err != nil {
		log.Fatalf("loading %s: %v", *fastaPath, err)
	}
	if corpus.NumRows() == 0 {
		log.Fatalf("%s has no records", *fastaPath)
	}

	store := metastore.NewMemStore()
	ctx, err := engine.New(cfg, store)
	if err != nil {
		log.Fatalf("engine.New: %v", err)
	}
	defer ctx.Close()

	tc := metastore.TableColumn{Table: *table, Column: *column}
	w := *workers
	if w <= 0 {
		w = corpus.NumRows()
		if w > 16 {
			w = 16
		}
	}
	stats, err := ctx.PerformHighfreqAnalysis(tc, corpus, w, os.TempDir())
	if err != nil {
		log.Fatalf("PerformHighfreqAnalysis: %v", err)
	}
	log.Printf("analyzed %d rows, %d distinct kmers, %d high-frequency",
		stats.RowsScanned, stats.DistinctKmers, stats.HighFreqKmers)

	ranked := make([]rankedRow, corpus.NumRows())
	for i, row := range corpus.rows {
		raw, err := ctx.Rawscore(row, *query)
		if err != nil {
			log.Fatalf("Rawscore(%s): %v", names[i], err)
		}
		corrected, err := ctx.Correctedscore(tc, row, *query)
		if err != nil {
			log.Fatalf("Correctedscore(%s): %v", names[i], err)
		}
		ranked[i] = rankedRow{name: names[i], rawScore: raw, correctedScore: corrected}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].correctedScore > ranked[j].correctedScore
	})

	n := *topN
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	fmt.Println("name\traw_score\tcorrected_score")
	for _, r := range ranked[:n] {
		fmt.Printf("%s\t%d\t%d\n", r.name, r.rawScore, r.correctedScore)
	}
}
