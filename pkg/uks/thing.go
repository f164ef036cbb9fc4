package uks

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Well-known type labels. Parent/child structure is not a separate field on
// things: it is encoded as ordinary edges of the "has-child" type
// (source=parent, target=child), and the derived views below just filter by
// that type node's identity.
const (
	hasChildLabel     = "has-child"
	hasAttributeLabel = "hasAttribute"
	hasPropertyLabel  = "hasProperty"
	allowsLabel       = "allows"
)

// attributeTypeLabels are the lowercased type labels Attributes() collects.
var attributeTypeLabels = map[string]struct{}{
	"hasattribute": {},
	"is":           {},
	"hasproperty":  {},
	"allows":       {},
}

// Thing is a node in the knowledge graph: an entity, a concept, or a
// relationship type (types are first-class things, which is what makes the
// store self-describing).
//
// Every thing owns three ordered views of the edges it participates in:
//   - relationships: outgoing edges (this thing is the source)
//   - relationshipsFrom: incoming edges (this thing is the target)
//   - relationshipsAsType: edges typed by this thing
//
// Alongside the ordered lists, per-thing maps keyed by type-node identity
// index the outgoing and incoming views so Parents/Children and triple
// lookups don't scan every edge.
//
// Locking: each thing has its own RWMutex guarding the lists, the indexes
// and the value payload. Operations that touch several things' indexes at
// once (edge registration and removal) acquire the involved locks in
// ascending creation-sequence order, so unrelated things never contend and
// overlapping operations cannot deadlock. The display label is owned by the
// store's label registry and guarded by the registry mutex instead.
type Thing struct {
	st  *Store
	seq uint64

	// label is guarded by st.labels.mu, not by mu.
	label string

	mu                  sync.RWMutex
	value               any
	relationships       []*Relationship
	relationshipsFrom   []*Relationship
	relationshipsAsType []*Relationship
	outByType           map[*Thing][]*Relationship
	inByType            map[*Thing][]*Relationship
}

// Label returns the current display label. Labels are unique
// case-insensitively across the store; the case used at assignment is
// preserved here.
func (t *Thing) Label() string {
	return t.st.labels.labelOf(t)
}

// SetLabel rebinds the thing to label, applying the registry's collision
// rules, and returns the final label actually assigned. An empty label is
// ignored and returns "".
func (t *Thing) SetLabel(label string) string {
	return t.st.labels.assign(label, t)
}

// Value returns the opaque payload attached to the thing, or nil.
func (t *Thing) Value() any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// SetValue replaces the opaque payload.
func (t *Thing) SetValue(v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = v
}

// Relationships returns a copy of the outgoing edge list.
func (t *Thing) Relationships() []*Relationship {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Relationship, len(t.relationships))
	copy(out, t.relationships)
	return out
}

// RelationshipsFrom returns a copy of the incoming edge list.
func (t *Thing) RelationshipsFrom() []*Relationship {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Relationship, len(t.relationshipsFrom))
	copy(out, t.relationshipsFrom)
	return out
}

// RelationshipsAsType returns a copy of the edges typed by this thing.
func (t *Thing) RelationshipsAsType() []*Relationship {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Relationship, len(t.relationshipsAsType))
	copy(out, t.relationshipsAsType)
	return out
}

// String renders the label plus the value payload when present.
func (t *Thing) String() string {
	label := t.Label()
	if v := t.Value(); v != nil {
		return fmt.Sprintf("%s V: %v", label, v)
	}
	return label
}

// ===== Edge registration =====

// AddRelationship creates a new edge from this thing and registers it in all
// indexes: source-outgoing, target-incoming, type-as-type, and the store's
// transient set when a TTL option is given. It always creates; the
// triple-upsert semantics live on Store.AddRelationship/AddStatement.
// Thing-level mutation fires no events.
func (t *Thing) AddRelationship(reltype, target *Thing, opts ...Option) *Relationship {
	o := buildRelOptions(opts)
	ttl := InfiniteTTL
	if o.hasTTL {
		ttl = o.ttl
	}
	now := time.Now()
	rel := newRelationship(t, reltype, target, o.weight, ttl, now)

	locked := lockThings(t, reltype, target)
	registerLocked(rel)
	unlockThings(locked)

	if o.hasTTL {
		t.st.transients.add(rel)
	}
	return rel
}

// RemoveRelationship detaches rel from every index it appears in. Removing
// an edge that is already gone is a safe no-op.
func (t *Thing) RemoveRelationship(rel *Relationship) {
	if rel == nil {
		return
	}
	t.st.detach(rel)
}

// registerLocked appends rel to the three list views and both by-type
// indexes. Callers must hold the locks of rel's source, type and target.
func registerLocked(rel *Relationship) {
	src, rt, tgt := rel.source, rel.reltype, rel.target

	src.relationships = append(src.relationships, rel)
	src.outByType[rt] = append(src.outByType[rt], rel)

	if tgt != nil {
		tgt.relationshipsFrom = append(tgt.relationshipsFrom, rel)
		tgt.inByType[rt] = append(tgt.inByType[rt], rel)
	}

	rt.relationshipsAsType = append(rt.relationshipsAsType, rel)
}

// detachLocked removes rel from the three list views and both by-type
// indexes, reporting whether it was still registered on its source. Callers
// must hold the locks of rel's source, type and target.
func detachLocked(rel *Relationship) bool {
	src, rt, tgt := rel.source, rel.reltype, rel.target

	removed := removeRel(&src.relationships, rel)
	removeFromBucket(src.outByType, rt, rel)

	if tgt != nil {
		removeRel(&tgt.relationshipsFrom, rel)
		removeFromBucket(tgt.inByType, rt, rel)
	}

	removeRel(&rt.relationshipsAsType, rel)
	return removed
}

// findOutgoingLocked returns the live edge matching (t, reltype, target) by
// identity, or nil. Caller must hold t's lock.
func (t *Thing) findOutgoingLocked(reltype, target *Thing) *Relationship {
	for _, rel := range t.outByType[reltype] {
		if rel.target == target {
			return rel
		}
	}
	return nil
}

func removeRel(list *[]*Relationship, rel *Relationship) bool {
	for i, r := range *list {
		if r == rel {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func removeFromBucket(index map[*Thing][]*Relationship, key *Thing, rel *Relationship) {
	bucket := index[key]
	for i, r := range bucket {
		if r == rel {
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(index, key)
			} else {
				index[key] = bucket
			}
			return
		}
	}
}

// ===== Parent/child structure =====

// AddParent attaches this thing as a child of parent by creating the
// has-child edge (source=parent, target=this). It returns
// ErrChildTypeMissing when the "has-child" type node does not exist, which
// means the store's bootstrap invariant was violated.
func (t *Thing) AddParent(parent *Thing) (*Relationship, error) {
	hasChild := t.st.labels.lookup(hasChildLabel)
	if hasChild == nil {
		return nil, ErrChildTypeMissing
	}
	return parent.AddRelationship(hasChild, t), nil
}

// RemoveParent detaches the first has-child edge from parent to this thing,
// if any.
func (t *Thing) RemoveParent(parent *Thing) {
	hasChild := t.st.labels.lookup(hasChildLabel)
	if hasChild == nil {
		return
	}
	parent.mu.RLock()
	var match *Relationship
	for _, rel := range parent.outByType[hasChild] {
		if rel.target == t {
			match = rel
			break
		}
	}
	parent.mu.RUnlock()

	if match != nil {
		t.st.detach(match)
	}
}

// Parents returns the things that hold a has-child edge targeting this one.
func (t *Thing) Parents() []*Thing {
	hasChild := t.st.labels.lookup(hasChildLabel)
	if hasChild == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	bucket := t.inByType[hasChild]
	out := make([]*Thing, 0, len(bucket))
	for _, rel := range bucket {
		out = append(out, rel.source)
	}
	return out
}

// Children returns the targets of this thing's has-child edges.
func (t *Thing) Children() []*Thing {
	hasChild := t.st.labels.lookup(hasChildLabel)
	if hasChild == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	bucket := t.outByType[hasChild]
	out := make([]*Thing, 0, len(bucket))
	for _, rel := range bucket {
		if rel.target != nil {
			out = append(out, rel.target)
		}
	}
	return out
}

// ChildrenWithSubclasses returns the direct children, except that any child
// whose label begins with this thing's label is treated as an auto-split
// subclass/instance and is replaced by its own children. The substitution
// repeats until no remaining entry's label begins with this thing's label.
func (t *Thing) ChildrenWithSubclasses() []*Thing {
	label := t.Label()
	children := t.Children()
	for i := 0; i < len(children); {
		c := children[i]
		if strings.HasPrefix(c.Label(), label) {
			children = append(children, c.Children()...)
			children = append(children[:i], children[i+1:]...)
			continue
		}
		i++
	}
	return children
}

// Ancestors returns the transitive closure over Parents, each thing at most
// once, in discovery order. Callers are responsible for not constructing
// parent/child cycles; the dedup set is the only guard.
func (t *Thing) Ancestors() []*Thing {
	var result []*Thing
	seen := make(map[*Thing]bool)
	stack := t.Parents()
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[parent] {
			continue
		}
		seen[parent] = true
		result = append(result, parent)
		stack = append(stack, parent.Parents()...)
	}
	return result
}

// Descendants returns the transitive closure over Children, each thing at
// most once, in discovery order.
func (t *Thing) Descendants() []*Thing {
	var result []*Thing
	seen := make(map[*Thing]bool)
	stack := t.Children()
	for len(stack) > 0 {
		child := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[child] {
			continue
		}
		seen[child] = true
		result = append(result, child)
		stack = append(stack, child.Children()...)
	}
	return result
}

// HasAncestor reports whether any ancestor carries exactly the given label.
func (t *Thing) HasAncestor(label string) bool {
	for _, anc := range t.Ancestors() {
		if anc.Label() == label {
			return true
		}
	}
	return false
}

// ===== Attributes and properties =====

// Attributes returns the targets of outgoing edges whose type label is one
// of hasAttribute, is, hasProperty or allows (case-insensitive).
func (t *Thing) Attributes() []*Thing {
	var out []*Thing
	for _, rel := range t.Relationships() {
		if rel.target == nil {
			continue
		}
		if _, ok := attributeTypeLabels[strings.ToLower(rel.reltype.Label())]; ok {
			out = append(out, rel.target)
		}
	}
	return out
}

// SetAttribute attaches value via a hasAttribute edge, creating the type
// node (parentless) when missing.
func (t *Thing) SetAttribute(value *Thing) *Relationship {
	return t.setAttributeAs(value, hasAttributeLabel)
}

// SetProperty attaches value via a hasProperty edge.
func (t *Thing) SetProperty(value *Thing) *Relationship {
	return t.setAttributeAs(value, hasPropertyLabel)
}

// SetAllows attaches value via an allows edge.
func (t *Thing) SetAllows(value *Thing) *Relationship {
	return t.setAttributeAs(value, allowsLabel)
}

func (t *Thing) setAttributeAs(value *Thing, typeLabel string) *Relationship {
	reltype := t.st.labels.lookup(typeLabel)
	if reltype == nil {
		reltype = t.st.newThing(typeLabel, nil)
	}
	return t.AddRelationship(reltype, value)
}

// HasProperty reports whether this thing, or failing that any ancestor
// along the parent chain, carries a hasProperty edge targeting v. First
// match wins.
func (t *Thing) HasProperty(v *Thing) bool {
	return t.hasTypedTarget("hasproperty", v)
}

// Allows reports whether this thing or any ancestor carries an allows edge
// targeting v.
func (t *Thing) Allows(v *Thing) bool {
	return t.hasTypedTarget("allows", v)
}

func (t *Thing) hasTypedTarget(typeLabelLower string, v *Thing) bool {
	for _, rel := range t.Relationships() {
		if rel.target == v && strings.ToLower(rel.reltype.Label()) == typeLabelLower {
			return true
		}
	}
	for _, parent := range t.Parents() {
		if parent.hasTypedTarget(typeLabelLower, v) {
			return true
		}
	}
	return false
}
