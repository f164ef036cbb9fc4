package maintenance

import (
	"sort"
	"strings"

	"github.com/orneryd/uks/pkg/uks"
)

// bubbleExcludedTypes are relationship types that never bubble: they
// describe the schema itself, not the children.
var bubbleExcludedTypes = map[string]struct{}{
	"hasProperty":   {},
	"isTransitive":  {},
	"isCommutative": {},
	"inverseOf":     {},
	"hasAttribute":  {},
	"hasDigit":      {},
}

// AttributeBubble promotes attributes to a parent when its children largely
// agree on them. Child edges are grouped by (instance-resolved type,
// target); each group's evidence is weighed against conflicting groups
// (exclusivity properties on common parents, not/no asymmetry, numeric
// attributes) and the parent edge is nudged up or down accordingly. New
// promotions start at weight 0.5, grow toward a 0.99 cap while agreement
// holds, and are dropped once they sink below 0.5 or the disagreement
// outweighs the support.
type AttributeBubble struct{}

// NewAttributeBubble builds a bubbler.
func NewAttributeBubble() *AttributeBubble {
	return &AttributeBubble{}
}

func (b *AttributeBubble) Name() string { return "bubble" }

// Run applies one bubbling sweep and reports how many parent edges were
// created, adjusted or removed.
func (b *AttributeBubble) Run(store *uks.Store) (int, error) {
	changed := 0
	for _, t := range store.Things() {
		if !t.HasAncestor("Object") {
			continue
		}
		changed += b.bubbleFor(store, t)
	}
	return changed, nil
}

func (b *AttributeBubble) bubbleFor(store *uks.Store, t *uks.Thing) int {
	if len(t.Children()) == 0 || t.Label() == "unknownObject" {
		return 0
	}

	hasChild := store.Labeled("has-child")
	var counts []*relDest
	for _, child := range t.ChildrenWithSubclasses() {
		for _, r := range child.Relationships() {
			if hasChild != nil && r.RelType() == hasChild {
				continue
			}
			groupEdge(&counts, instanceType(r.RelType()), r.Target(), r)
		}
	}
	if len(counts) == 0 {
		return 0
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return len(counts[i].rels) > len(counts[j].rels)
	})

	changed := 0
	for _, rr := range counts {
		if _, skip := bubbleExcludedTypes[rr.relType.Label()]; skip {
			continue
		}
		changed += b.weighGroup(store, t, rr, counts)
	}
	return changed
}

// weighGroup turns one (type, target) group's evidence into a parent-edge
// adjustment.
func (b *AttributeBubble) weighGroup(store *uks.Store, t *uks.Thing, rr *relDest, counts []*relDest) int {
	r := store.GetRelationship(t, rr.relType, rr.target)
	currentWeight := 0.0
	if r != nil {
		currentWeight = r.Weight()
	}

	totalCount := len(t.Children())
	positiveCount := 0
	positiveWeight := 0.0
	for _, rel := range rr.rels {
		w := rel.Weight()
		if w > 0.5 {
			positiveCount++
		}
		positiveWeight += w
	}

	negativeCount := 0
	negativeWeight := 0.0
	for _, other := range counts {
		if other == rr {
			continue
		}
		if b.conflict(store, rr, other) {
			negativeCount += len(other.rels)
			for _, rel := range other.rels {
				negativeWeight += rel.Weight()
			}
		}
	}

	// Children with no opinion count as weak agreement. The count can go
	// negative when subclass expansion saw more edges than there are direct
	// children; the formula keeps that penalty.
	noInfoCount := totalCount - (positiveCount + negativeCount)
	positiveWeight += currentWeight + float64(noInfoCount)*0.51

	if negativeCount >= positiveCount {
		if r != nil {
			t.RemoveRelationship(r)
			return 1
		}
		return 0
	}

	deltaWeight := positiveWeight - negativeWeight
	var targetWeight float64
	switch {
	case deltaWeight < 0.8:
		targetWeight = -0.1
	case deltaWeight < 1.7:
		targetWeight = 0.01
	case deltaWeight < 2.7:
		targetWeight = 0.2
	default:
		targetWeight = 0.3
	}

	if currentWeight == 0 {
		currentWeight = 0.5
	}
	newWeight := currentWeight + targetWeight
	if newWeight > 0.99 {
		newWeight = 0.99
	}
	if newWeight == currentWeight && r != nil {
		return 0
	}

	if newWeight < 0.5 {
		if r != nil {
			t.RemoveRelationship(r)
			return 1
		}
		return 0
	}

	changed := 0
	if r == nil {
		r = t.AddRelationship(rr.relType, rr.target)
	}
	r.SetWeight(newWeight)
	changed++

	// The promoted edge displaces whatever it contradicts.
	for _, existing := range t.Relationships() {
		if existing == r {
			continue
		}
		tmp := &relDest{
			relType: existing.RelType(),
			target:  existing.Target(),
			rels:    []*uks.Relationship{existing},
		}
		if b.conflict(store, tmp, rr) {
			t.RemoveRelationship(existing)
			changed++
		}
	}
	return changed
}

// conflict reports whether two groups cannot both be true of one thing.
// Groups sharing type and target never conflict. Same type with different
// targets conflicts when a common parent of the targets is marked exclusive
// (or multiple-valued); same target under different types conflicts on
// exclusive parents, on not/no asymmetry between the types' attributes, on
// exclusivity between attribute pairs, and always when numeric attributes
// are involved.
func (b *AttributeBubble) conflict(store *uks.Store, r1, r2 *relDest) bool {
	if r1.relType == r2.relType && r1.target == r2.target {
		return false
	}
	isExclusive := store.Labeled("isExclusive")
	allowMultiple := store.Labeled("allowMultiple")

	if r1.relType == r2.relType {
		for _, parent := range commonParents(r1.target, r2.target) {
			if (isExclusive != nil && parent.HasProperty(isExclusive)) ||
				(allowMultiple != nil && parent.HasProperty(allowMultiple)) {
				return true
			}
		}
	}

	if r1.target == r2.target {
		for _, parent := range commonParents(r1.target, r2.target) {
			if isExclusive != nil && parent.HasProperty(isExclusive) {
				return true
			}
		}

		r1Attrs := r1.relType.Attributes()
		r2Attrs := r2.relType.Attributes()
		if hasNegationAttr(r1Attrs) != hasNegationAttr(r2Attrs) {
			return true
		}
		for _, a1 := range r1Attrs {
			for _, a2 := range r2Attrs {
				if a1 == a2 {
					continue
				}
				for _, p := range commonParents(a1, a2) {
					if (isExclusive != nil && p.HasProperty(isExclusive)) ||
						(allowMultiple != nil && p.HasProperty(allowMultiple)) {
						return true
					}
				}
			}
		}
		if anyNumberDescended(r1Attrs) || anyNumberDescended(r2Attrs) {
			return true
		}
	}
	return false
}

// commonParents returns the parents a and b share, in a's parent order.
func commonParents(a, b *uks.Thing) []*uks.Thing {
	if a == nil || b == nil {
		return nil
	}
	bParents := b.Parents()
	inB := make(map[*uks.Thing]bool, len(bParents))
	for _, p := range bParents {
		inB[p] = true
	}
	var out []*uks.Thing
	for _, p := range a.Parents() {
		if inB[p] {
			out = append(out, p)
		}
	}
	return out
}

func hasNegationAttr(attrs []*uks.Thing) bool {
	for _, a := range attrs {
		if l := a.Label(); l == "not" || l == "no" {
			return true
		}
	}
	return false
}

func anyNumberDescended(attrs []*uks.Thing) bool {
	for _, a := range attrs {
		if a.HasAncestor("number") {
			return true
		}
	}
	return false
}

// instanceType resolves auto-numbered instances ("dog1") to their base
// class ("dog"): climb first parents while the label ends in a digit,
// carries no ".", and extends the parent's label.
func instanceType(t *uks.Thing) *uks.Thing {
	use := t
	for {
		parents := use.Parents()
		label := use.Label()
		if len(parents) == 0 || label == "" {
			break
		}
		if c := label[len(label)-1]; c < '0' || c > '9' {
			break
		}
		if strings.Contains(t.Label(), ".") {
			break
		}
		if !strings.HasPrefix(label, parents[0].Label()) {
			break
		}
		use = parents[0]
	}
	return use
}
