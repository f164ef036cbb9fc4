package uks

import (
	"fmt"
	"time"
)

// resolve turns a *Thing or label string into a live thing, creating
// missing labels under "Object". Nil stays nil.
func (s *Store) resolve(param any) (*Thing, error) {
	switch v := param.(type) {
	case nil:
		return nil, nil
	case *Thing:
		return v, nil
	case string:
		if t := s.labels.lookup(v); t != nil {
			return t, nil
		}
		return s.AddThing(v, s.labels.lookup("Object"))
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadReference, param)
	}
}

// peek resolves like resolve but never creates; unknown labels and foreign
// types come back nil.
func (s *Store) peek(param any) *Thing {
	switch v := param.(type) {
	case *Thing:
		return v
	case string:
		return s.labels.lookup(v)
	default:
		return nil
	}
}

// AddRelationship asserts the fact (source, reltype, target) and returns its
// edge. source/reltype/target accept *Thing or string; strings resolve by
// label, creating missing things under "Object". A nil target asserts a bare
// edge.
//
// The operation is an idempotent upsert keyed on the triple: when the edge
// already exists its weight becomes max(old, new), a supplied TTL refreshes
// the expiry clock (re-registering the edge as transient), and an update
// event fires. Otherwise the edge is created and an add event fires. The
// find-or-insert runs under all involved thing locks, so two concurrent
// asserts of one triple leave exactly one live edge.
func (s *Store) AddRelationship(source, reltype, target any, opts ...Option) (*Relationship, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	src, rt, tgt, err := s.resolveTriple(source, reltype, target)
	if err != nil {
		return nil, err
	}
	o := buildRelOptions(opts)
	now := time.Now()

	locked := lockThings(src, rt, tgt)
	if existing := src.findOutgoingLocked(rt, tgt); existing != nil {
		existing.mergeWeight(o.weight)
		if o.hasTTL {
			existing.refreshTTL(o.ttl, now)
		}
		unlockThings(locked)
		if o.hasTTL {
			s.transients.add(existing)
		}
		s.hooks.fire(EventUpdate, existing)
		return existing, nil
	}
	rel := s.insertLocked(src, rt, tgt, o, now)
	unlockThings(locked)

	if o.hasTTL {
		s.transients.add(rel)
	}
	s.hooks.fire(EventAdd, rel)
	return rel, nil
}

// AddStatement is the lighter-weight fact entry point: the same upsert as
// AddRelationship, but an existing triple only ever has its weight raised,
// with no TTL refresh and no event. Creation behaves exactly like
// AddRelationship and fires add.
func (s *Store) AddStatement(source, reltype, target any, opts ...Option) (*Relationship, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	src, rt, tgt, err := s.resolveTriple(source, reltype, target)
	if err != nil {
		return nil, err
	}
	o := buildRelOptions(opts)
	now := time.Now()

	locked := lockThings(src, rt, tgt)
	if existing := src.findOutgoingLocked(rt, tgt); existing != nil {
		existing.mergeWeight(o.weight)
		unlockThings(locked)
		return existing, nil
	}
	rel := s.insertLocked(src, rt, tgt, o, now)
	unlockThings(locked)

	if o.hasTTL {
		s.transients.add(rel)
	}
	s.hooks.fire(EventAdd, rel)
	return rel, nil
}

func (s *Store) resolveTriple(source, reltype, target any) (src, rt, tgt *Thing, err error) {
	if src, err = s.resolve(source); err != nil {
		return nil, nil, nil, err
	}
	if rt, err = s.resolve(reltype); err != nil {
		return nil, nil, nil, err
	}
	if tgt, err = s.resolve(target); err != nil {
		return nil, nil, nil, err
	}
	if src == nil || rt == nil {
		return nil, nil, nil, fmt.Errorf("%w: source and reltype are required", ErrBadReference)
	}
	return src, rt, tgt, nil
}

// insertLocked builds and registers a fresh edge. Caller holds the locks of
// src, rt and tgt.
func (s *Store) insertLocked(src, rt, tgt *Thing, o relOptions, now time.Time) *Relationship {
	ttl := InfiniteTTL
	if o.hasTTL {
		ttl = o.ttl
	}
	rel := newRelationship(src, rt, tgt, o.weight, ttl, now)
	registerLocked(rel)
	return rel
}

// GetRelationship returns the live edge for (source, reltype, target), or
// nil. Labels resolve without creating; an unresolvable source or reltype
// means nil. The lookup does not touch the edge's usage clock.
func (s *Store) GetRelationship(source, reltype, target any) *Relationship {
	src := s.peek(source)
	rt := s.peek(reltype)
	if src == nil || rt == nil {
		return nil
	}
	var tgt *Thing
	if target != nil {
		tgt = s.peek(target)
	}
	src.mu.RLock()
	defer src.mu.RUnlock()
	return src.findOutgoingLocked(rt, tgt)
}

// RemoveRelationship detaches rel from all indexes and the transient set. A
// remove event fires only when the edge was actually live; removing twice is
// a silent no-op.
func (s *Store) RemoveRelationship(rel *Relationship) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if rel == nil {
		return ErrNilRelationship
	}
	if s.detach(rel) {
		s.hooks.fire(EventRemove, rel)
	}
	return nil
}

// RemoveStatement resolves the triple and removes its edge if present.
// Unknown labels and absent triples are no-ops.
func (s *Store) RemoveStatement(source, reltype, target any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	rel := s.GetRelationship(source, reltype, target)
	if rel == nil {
		return nil
	}
	if s.detach(rel) {
		s.hooks.fire(EventRemove, rel)
	}
	return nil
}

// AddClause records that source depends on target through clauseType
// ("if", "because", ...). clauseType accepts *Thing or string
// (lookup-or-create under "Object").
func (s *Store) AddClause(source *Relationship, clauseType any, target *Relationship) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if source == nil || target == nil {
		return ErrNilRelationship
	}
	ct, err := s.resolve(clauseType)
	if err != nil {
		return err
	}
	if ct == nil {
		return fmt.Errorf("%w: clause type is required", ErrBadReference)
	}
	source.AddClause(ct, target)
	return nil
}

// AllRelationshipsFrom collects every outgoing edge of every thing reachable
// from roots, walking Parents when reverse is false or Children when reverse
// is true. Each thing is visited at most once; edge order follows the
// traversal.
func (s *Store) AllRelationshipsFrom(roots []*Thing, reverse bool) []*Relationship {
	var result []*Relationship
	visited := make(map[*Thing]bool)
	stack := make([]*Thing, len(roots))
	copy(stack, roots)

	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if t == nil || visited[t] {
			continue
		}
		visited[t] = true
		result = append(result, t.Relationships()...)
		if reverse {
			stack = append(stack, t.Children()...)
		} else {
			stack = append(stack, t.Parents()...)
		}
	}
	return result
}
