// Package fasta reads whole-corpus FASTA files: a number of named
// sequences, each possibly wrapped across several lines. For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// A sequence's name is the text between '>' and the first space; anything
// after a space is a free-form description and is discarded. This package
// only supports the access pattern cmd/kmersearch-bench needs — read every
// record once, in file order — not faidx-style random access into a large
// reference, so it carries no on-disk index format and no SIMD-accelerated
// cleaning pass; alphabet.Encode already rejects characters the chosen
// alphabet does not define as part of turning a record into a Seq.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	mib            = 1024 * 1024
	bufferInitSize = 300 * mib
)

// Record is one named sequence read from a corpus file.
type Record struct {
	Name  string
	Bases string
}

// ReadAll reads every record from r, in the order they appear.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)

	var name string
	var seq strings.Builder
	flush := func() error {
		if name == "" {
			return nil
		}
		records = append(records, Record{Name: name, Bases: seq.String()})
		seq.Reset()
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.Split(line[1:], " ")[0]
			continue
		}
		if name == "" {
			return nil, errors.Errorf("malformed FASTA corpus: sequence data before first '>' header")
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading FASTA corpus")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Errorf("empty FASTA corpus")
	}
	return records, nil
}
