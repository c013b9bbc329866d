// Package kmerr defines the error taxonomy shared by every kmersearch
// component (spec.md section 7). It layers a small Kind enum over
// github.com/grailbio/base/errors, the way the teacher repo layers its own
// domain-specific error context (table/column/path) over the same base
// package instead of inventing a parallel error type.
package kmerr

import (
	"errors"
	"fmt"

	baseerrors "github.com/grailbio/base/errors"
)

// Kind categorizes an error the way spec.md section 7 requires.
type Kind int

const (
	// Unknown is the zero Kind; never returned deliberately.
	Unknown Kind = iota
	// InvalidInput covers malformed DNA, a k outside [4,32], or an
	// unsupported alphabet.
	InvalidInput
	// ConfigMismatch covers a query-time configuration that disagrees with
	// an index's or a cache's fingerprint.
	ConfigMismatch
	// MissingMetadata covers preclude_highfreq_kmer=true with no analysis
	// record for the (table,column).
	MissingMetadata
	// ResourceExhausted covers FHT I/O errors and disk-full conditions.
	ResourceExhausted
	// Corruption covers a bad FHT magic or version.
	Corruption
	// Cancellation covers a cooperative analysis cancellation.
	Cancellation
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case ConfigMismatch:
		return "config mismatch"
	case MissingMetadata:
		return "missing metadata"
	case ResourceExhausted:
		return "resource exhausted"
	case Corruption:
		return "corruption"
	case Cancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// kindError tags an error chain with a Kind. It is never returned directly;
// it is always composed into a baseerrors.Error via E.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.kind, e.err)
	}
	return e.kind.String()
}

func (e *kindError) Unwrap() error { return e.err }

// E builds an error of the given kind, composing args the same way
// github.com/grailbio/base/errors.E does (an optional wrapped error plus
// string/value context), matching the calling convention used throughout the
// teacher repo (e.g. markduplicates/metrics.go, encoding/pam/pamutil/index.go).
func E(kind Kind, args ...interface{}) error {
	var wrapped error
	rest := make([]interface{}, 0, len(args))
	for _, a := range args {
		if err, ok := a.(error); ok && wrapped == nil {
			wrapped = err
			continue
		}
		rest = append(rest, a)
	}
	ke := &kindError{kind: kind, err: wrapped}
	allArgs := make([]interface{}, 0, len(rest)+1)
	allArgs = append(allArgs, error(ke))
	allArgs = append(allArgs, rest...)
	return baseerrors.E(allArgs...)
}

// Is reports whether err (or something it wraps) was constructed with the
// given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf extracts the Kind embedded in err, returning Unknown if err's chain
// carries none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Recoverable reports whether the host may retry or otherwise continue after
// seeing err, per spec.md section 7: every category is recoverable except
// Corruption and ResourceExhausted encountered during a metadata commit.
func Recoverable(err error, duringMetadataCommit bool) bool {
	switch KindOf(err) {
	case Corruption:
		return false
	case ResourceExhausted:
		return !duringMetadataCommit
	default:
		return true
	}
}

// Hint returns the operator-facing hint spec.md section 7 calls for on
// MissingMetadata errors.
func Hint(tableID, column string) string {
	return fmt.Sprintf("run perform_highfreq_analysis(%s, %s) before querying with preclude_highfreq_kmer enabled", tableID, column)
}
