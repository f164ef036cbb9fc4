package uks

import (
	"fmt"
	"regexp"
	"time"
)

// Query describes one read over the edge set. Zero values mean "no filter".
//
// Exact label filters (Source, RelType, Target) are case-sensitive. Regex
// filters must match the whole label; they are compiled anchored, so "cat.*"
// matches "caterpillar" but "at" does not match "cat". MaxTTL keeps only
// edges whose remaining time-to-live is at or below the bound; permanent
// edges are unaffected by it. IncludeInherited widens each candidate
// source's edge set with everything reachable through its parents.
//
// Querying is not free for the graph: every edge examined, matched or
// rejected, has its usage clock refreshed and one hit or miss recorded.
// Scoring happens for candidates, not only for results.
//
// Example:
//
//	reds, err := store.Query(uks.Query{
//		SourceRegex: "cat[0-9]*",
//		RelType:     "color",
//		MinWeight:   0.5,
//	})
//
// DetectConflicts changes the result set: instead of matches it returns the
// edges that share a relationship type but disagree on target, each
// first-seen baseline followed by its challengers.
type Query struct {
	Source  string
	RelType string
	Target  string

	SourceRegex  string
	RelTypeRegex string
	TargetRegex  string

	MinWeight float64
	MaxTTL    *time.Duration

	IncludeInherited bool
	DetectConflicts  bool
}

// Query runs q and returns read-only projections of the qualifying edges.
// An invalid regex filter is the only error besides ErrClosed.
func (s *Store) Query(q Query) ([]QueryRelationship, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	srcRe, err := compileFull(q.SourceRegex, "source")
	if err != nil {
		return nil, err
	}
	rtRe, err := compileFull(q.RelTypeRegex, "reltype")
	if err != nil {
		return nil, err
	}
	tgtRe, err := compileFull(q.TargetRegex, "target")
	if err != nil {
		return nil, err
	}

	// One clock for the whole query: every examined edge is touched with
	// the same instant.
	now := time.Now()
	var matches []*Relationship

	for _, t := range s.Things() {
		label := t.Label()
		if q.Source != "" && label != q.Source {
			continue
		}
		if srcRe != nil && !srcRe.MatchString(label) {
			continue
		}

		rels := t.Relationships()
		if q.IncludeInherited {
			rels = s.AllRelationshipsFrom([]*Thing{t}, false)
		}
		for _, r := range rels {
			if examine(r, &q, rtRe, tgtRe, now) {
				matches = append(matches, r)
			}
		}
	}

	if q.DetectConflicts {
		return projectAll(conflictsIn(matches)), nil
	}
	return projectAll(matches), nil
}

// examine applies the edge-level filters, scores the edge (touch plus
// hit/miss) and reports whether it matched.
func examine(r *Relationship, q *Query, rtRe, tgtRe *regexp.Regexp, now time.Time) bool {
	matched := true
	if q.RelType != "" && r.reltype.Label() != q.RelType {
		matched = false
	}
	if matched && rtRe != nil && !rtRe.MatchString(r.reltype.Label()) {
		matched = false
	}
	if matched && q.Target != "" && (r.target == nil || r.target.Label() != q.Target) {
		matched = false
	}
	if matched && tgtRe != nil && (r.target == nil || !tgtRe.MatchString(r.target.Label())) {
		matched = false
	}
	if matched {
		weight, ttl, lastUsed := r.usage()
		if weight < q.MinWeight {
			matched = false
		}
		if matched && q.MaxTTL != nil && ttl != InfiniteTTL {
			remaining := lastUsed.Add(ttl).Sub(now)
			if remaining > *q.MaxTTL {
				matched = false
			}
		}
	}
	r.score(matched, now)
	return matched
}

// conflictsIn reduces matches to the disagreeing subset: edges sharing a
// type whose targets differ. The first edge seen per type is the baseline;
// an edge agreeing with the baseline replaces it, a disagreeing edge is
// reported together with it. Baselines are reported once, challengers every
// time they disagree.
func conflictsIn(matches []*Relationship) []*Relationship {
	var conflicts []*Relationship
	appended := make(map[*Relationship]bool)
	seen := make(map[*Thing]*Relationship)
	for _, r := range matches {
		other := seen[r.reltype]
		if other != nil && other.target != r.target {
			if !appended[other] {
				appended[other] = true
				conflicts = append(conflicts, other)
			}
			conflicts = append(conflicts, r)
		} else {
			seen[r.reltype] = r
		}
	}
	return conflicts
}

func projectAll(rels []*Relationship) []QueryRelationship {
	out := make([]QueryRelationship, len(rels))
	for i, r := range rels {
		out[i] = r.project()
	}
	return out
}

func compileFull(expr, field string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile %s regex: %w", field, err)
	}
	return re, nil
}
