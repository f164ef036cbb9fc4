package maintenance

import (
	"strings"

	"github.com/orneryd/uks/pkg/uks"
)

// TreeBalancer splits things that have accumulated too many direct
// children. For every thing under "Object" whose label carries no "."
// (auto-generated classes are dotted and left alone), as long as it has
// more than maxChildren children a sibling class with the same label is
// created under it (the registry suffixes it, so "dog" gains "dog0") and
// the oldest children are moved onto the new class until it is full.
type TreeBalancer struct {
	maxChildren int
}

// NewTreeBalancer builds a balancer. maxChildren <= 0 selects the default
// of 6.
func NewTreeBalancer(maxChildren int) *TreeBalancer {
	if maxChildren <= 0 {
		maxChildren = 6
	}
	return &TreeBalancer{maxChildren: maxChildren}
}

func (b *TreeBalancer) Name() string { return "balance" }

// Run applies one balancing sweep and reports how many children moved.
func (b *TreeBalancer) Run(store *uks.Store) (int, error) {
	moved := 0
	for _, t := range store.Things() {
		if !t.HasAncestor("Object") || strings.Contains(t.Label(), ".") {
			continue
		}
		n, err := b.split(store, t)
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (b *TreeBalancer) split(store *uks.Store, t *uks.Thing) (int, error) {
	moved := 0
	for len(t.Children()) > b.maxChildren {
		newParent, err := store.AddThing(t.Label(), t)
		if err != nil {
			return moved, err
		}
		for len(newParent.Children()) < b.maxChildren {
			children := t.Children()
			if len(children) == 0 {
				break
			}
			child := children[0]
			child.RemoveParent(t)
			if _, err := child.AddParent(newParent); err != nil {
				return moved, err
			}
			moved++
		}
	}
	return moved, nil
}
