package maintenance

import (
	"fmt"
	"strings"

	"github.com/orneryd/uks/pkg/uks"
)

// relDest is one (type, target) bucket with the child edges asserting it.
type relDest struct {
	relType *uks.Thing
	target  *uks.Thing
	rels    []*uks.Relationship
}

// ClassBuilder carves shared attributes into intermediate classes. When at
// least minCommonAttributes children of a thing assert the same (type,
// target) edge, a "<label>.<type>.<target>" class is created under the
// thing, given that edge, and the agreeing children are reparented beneath
// it.
type ClassBuilder struct {
	minCommonAttributes int
}

// NewClassBuilder builds a class builder. minCommonAttributes <= 0 selects
// the default of 3.
func NewClassBuilder(minCommonAttributes int) *ClassBuilder {
	if minCommonAttributes <= 0 {
		minCommonAttributes = 3
	}
	return &ClassBuilder{minCommonAttributes: minCommonAttributes}
}

func (c *ClassBuilder) Name() string { return "classes" }

// Run applies one class-building sweep and reports how many classes were
// created.
func (c *ClassBuilder) Run(store *uks.Store) (int, error) {
	created := 0
	for _, t := range store.Things() {
		label := t.Label()
		if strings.Contains(label, ".") || strings.Contains(label, "unknown") {
			continue
		}
		if !t.HasAncestor("Object") {
			continue
		}
		n, err := c.buildFor(store, t)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (c *ClassBuilder) buildFor(store *uks.Store, t *uks.Thing) (int, error) {
	var attributes []*relDest
	for _, child := range t.Children() {
		for _, r := range child.Relationships() {
			if r.RelType().Label() == "has-child" {
				continue
			}
			groupEdge(&attributes, r.RelType(), r.Target(), r)
		}
	}

	created := 0
	for _, item := range attributes {
		if len(item.rels) < c.minCommonAttributes || item.target == nil {
			continue
		}
		newLabel := fmt.Sprintf("%s.%s.%s", t.Label(), item.relType.Label(), item.target.Label())
		newParent, err := store.GetOrAddThing(newLabel, t, nil)
		if err != nil {
			return created, err
		}
		if _, err := store.AddStatement(newParent, item.relType, item.target); err != nil {
			return created, err
		}
		created++
		for _, rel := range item.rels {
			child := rel.Source()
			if _, err := child.AddParent(newParent); err != nil {
				return created, err
			}
			child.RemoveParent(t)
		}
	}
	return created, nil
}

// groupEdge appends r to the (relType, target) bucket, creating it on first
// sight. Buckets key on thing identity, not label.
func groupEdge(attributes *[]*relDest, relType, target *uks.Thing, r *uks.Relationship) {
	for _, a := range *attributes {
		if a.relType == relType && a.target == target {
			a.rels = append(a.rels, r)
			return
		}
	}
	*attributes = append(*attributes, &relDest{relType: relType, target: target, rels: []*uks.Relationship{r}})
}
