package maintenance

import "github.com/orneryd/uks/pkg/uks"

// RedundancyPruner weakens facts a thing repeats from its ancestry. When a
// thing carries an edge whose (type, target) already arrives through a
// parent from another source with weight above 0.8, the local copy loses
// 0.1 weight per pass; once it drops below 0.5 it is removed. At most one
// edge is removed per thing per pass, since removal invalidates the scan;
// the pass moves on and catches the rest next round.
type RedundancyPruner struct{}

// NewRedundancyPruner builds a pruner.
func NewRedundancyPruner() *RedundancyPruner {
	return &RedundancyPruner{}
}

func (p *RedundancyPruner) Name() string { return "prune" }

// Run applies one pruning sweep and reports how many edges were weakened or
// removed.
func (p *RedundancyPruner) Run(store *uks.Store) (int, error) {
	changed := 0
	for _, t := range store.Things() {
		changed += p.pruneThing(store, t)
	}
	return changed, nil
}

func (p *RedundancyPruner) pruneThing(store *uks.Store, t *uks.Thing) int {
	changed := 0
	for _, parent := range t.Parents() {
		inherited := store.AllRelationshipsFrom([]*uks.Thing{parent}, false)
		for _, r := range t.Relationships() {
			if !coveredByInherited(r, inherited) {
				continue
			}
			weight := r.Weight() - 0.1
			changed++
			if weight < 0.5 {
				t.RemoveRelationship(r)
				// The edge list changed under us; resume with the next
				// thing.
				return changed
			}
			r.SetWeight(weight)
		}
	}
	return changed
}

// coveredByInherited reports whether another source asserts the same
// (type, target) with conviction.
func coveredByInherited(r *uks.Relationship, inherited []*uks.Relationship) bool {
	for _, x := range inherited {
		if x.Source() != r.Source() && x.RelType() == r.RelType() && x.Target() == r.Target() {
			return x.Weight() > 0.8
		}
	}
	return false
}
