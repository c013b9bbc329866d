// Package planner implements the planner gate of spec.md section 4.8
// (component C8): the host's query planner hands it every candidate
// access path over a core-managed column, and the gate re-prices the
// paths whose backing index was built under a configuration that no
// longer matches, without ever removing a path outright.
package planner

import (
	"github.com/grailbio/kmersearch/kmerconfig"
	"github.com/grailbio/kmersearch/metastore"
)

// SentinelCost is the cost assigned to a disqualified path (spec.md
// section 4.8 step 3): large enough that the host's cost comparison
// never prefers it over any compatible alternative, without forbidding
// the host from choosing it if literally nothing else is available.
const SentinelCost = 1e10

// PathKind distinguishes a leaf access path (a single index scan) from
// the composite bitmap combinators the host may build over several.
type PathKind int

const (
	Leaf PathKind = iota
	And
	Or
)

// Path is a host access path. Leaf paths name the index they scan;
// And/Or paths combine child paths into a composite bitmap plan. Clauses
// is carried through unmodified so a synthesized alternative (step 5)
// reuses the same predicate list the original path was built for.
type Path struct {
	Kind         PathKind
	IndexID      string
	Clauses      []string
	Children     []*Path
	StartupCost  float64
	TotalCost    float64
	Disqualified bool
}

// Gate implements spec.md section 4.8 in full: re-price every path in
// paths against the index metadata and current configuration for
// (table,column), propagate disqualification up through composite
// nodes, and append a synthesized alternative for any disqualified path
// when a fingerprint-matching sibling index exists. The input paths are
// mutated in place (re-priced); the return value is paths plus any
// synthesized alternatives.
func Gate(tc metastore.TableColumn, paths []*Path, cfg kmerconfig.Config, store metastore.Store) ([]*Path, error) {
	metas, err := store.ListIndexMeta(tc)
	if err != nil {
		return nil, err
	}
	metaByID := make(map[string]metastore.IndexMeta, len(metas))
	for _, m := range metas {
		metaByID[m.IndexID] = m
	}
	current := cfg.Fingerprint()

	var anyDisqualified bool
	for _, p := range paths {
		if reprice(p, metaByID, current) {
			anyDisqualified = true
		}
	}
	if !anyDisqualified {
		return paths, nil
	}

	sibling, ok := matchingSibling(metas, current)
	if !ok {
		return paths, nil
	}
	for _, p := range paths {
		if p.Disqualified {
			paths = append(paths, synthesize(p, sibling.IndexID))
		}
	}
	return paths, nil
}

// reprice walks p depth-first. A leaf with no recorded index metadata is
// not core-managed and is left untouched (step 1). A leaf whose metadata
// fingerprint diverges from current is disqualified (steps 2-3). A
// composite node is disqualified if any child is (step 4).
func reprice(p *Path, metaByID map[string]metastore.IndexMeta, current kmerconfig.Fingerprint) bool {
	switch p.Kind {
	case Leaf:
		m, ok := metaByID[p.IndexID]
		if !ok {
			return false
		}
		if !current.Matches(m.Fingerprint) {
			p.StartupCost = SentinelCost
			p.TotalCost = SentinelCost
			p.Disqualified = true
		}
		return p.Disqualified
	default:
		childDisqualified := false
		for _, c := range p.Children {
			if reprice(c, metaByID, current) {
				childDisqualified = true
			}
		}
		if childDisqualified {
			p.StartupCost = SentinelCost
			p.TotalCost = SentinelCost
			p.Disqualified = true
		}
		return p.Disqualified
	}
}

// matchingSibling returns the first recorded index over (table,column)
// whose fingerprint matches current, for step 5's synthesis source.
func matchingSibling(metas []metastore.IndexMeta, current kmerconfig.Fingerprint) (metastore.IndexMeta, bool) {
	for _, m := range metas {
		if current.Matches(m.Fingerprint) {
			return m, true
		}
	}
	return metastore.IndexMeta{}, false
}

// synthesize deep-copies p, retargeting every leaf at siblingIndexID,
// preserving clause lists and tree shape (spec.md section 4.8 step 5:
// "synthesize a new bitmap path from that sibling with the same
// clauses").
func synthesize(p *Path, siblingIndexID string) *Path {
	clone := &Path{
		Kind:    p.Kind,
		Clauses: append([]string(nil), p.Clauses...),
	}
	if p.Kind == Leaf {
		clone.IndexID = siblingIndexID
		return clone
	}
	clone.Children = make([]*Path, len(p.Children))
	for i, c := range p.Children {
		clone.Children[i] = synthesize(c, siblingIndexID)
	}
	return clone
}
