// Package uks provides the Universal Knowledge Store: an in-memory,
// concurrently accessed, labeled directed graph for agents that accumulate
// and revise knowledge at runtime.
//
// This package implements the core store API: node and edge lifecycle, the
// case-insensitive label registry, TTL-driven eviction of transient facts,
// the query/conflict-detection engine, clause tracking between facts, and
// statement-based persistence.
//
// Key Features:
//   - Things (nodes) with unique case-insensitive labels and optional values
//   - Relationships (edges) typed by other Things, so the schema describes
//     itself
//   - Idempotent upserts: re-asserting a fact merges weight and refreshes TTL
//   - Sliding expiration: unused transient facts evaporate on their own
//   - Hit/miss scored queries with regex filters and inheritance
//   - Conflict detection across same-typed facts with different targets
//   - Synchronous add/update/remove hooks
//   - JSON and XML project round-trips
//
// Architecture:
//   - Store: the facade; owns the thing list, registry, transients, hooks
//   - labelRegistry: one mutex, one map; label uniqueness lives here
//   - Thing: per-node RWMutex over edge lists and by-type indexes
//   - Relationship: per-edge mutex over weight/TTL/usage counters
//   - pkg/expiry: the background sweep driving EvictExpired
//
// Example Usage:
//
//	store, err := uks.New(uks.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	// Assert some facts. Strings resolve to things, creating them under
//	// "Object" when missing.
//	store.AddRelationship("cat", "is-a", "mammal")
//	store.AddRelationship("cat", "color", "black", uks.WithWeight(0.8))
//
//	// Short-lived observation: gone ~2s after last use.
//	store.AddRelationship("cat", "is", "nearby", uks.WithTTL(2*time.Second))
//
//	// Query it back.
//	results, err := store.Query(uks.Query{Source: "cat"})
//	for _, r := range results {
//		fmt.Printf("%s -%s-> %s (%.2f)\n",
//			r.Source.Label(), r.RelType.Label(), r.Target.Label(), r.Weight)
//	}
//
// ELI12 (Explain Like I'm 12):
//
// Think of the store as a giant corkboard of index cards with strings
// between them:
//
//  1. **Cards are things**: "cat", "mammal", even "is-a" get their own card.
//     Every card's name is unique: pin up a second "cat" and it becomes
//     "cat0" automatically.
//
//  2. **Strings are facts**: a string from "cat" through "color" to "black"
//     means the cat is black. The string carries a confidence sticker
//     (weight) that only ever goes up when you repeat the fact.
//
//  3. **Some strings dissolve**: facts added with a time-to-live fall off
//     the board if nobody looks at them for a while. Looking at a fact
//     resets its timer.
//
//  4. **The board notices arguments**: ask it to detect conflicts and it
//     points at strings that share a type but end on different cards,
//     "cat is black" versus "cat is white".
//
// It's a memory that strengthens what you repeat, forgets what you ignore,
// and can tell you when it believes two contradictory things at once.
package uks

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/uks/pkg/expiry"
)

// Store is the facade over the whole knowledge graph. All node and edge
// lifecycle goes through it; Things hand out read views but never own their
// peers.
//
// A Store is safe for concurrent use. Mutations lock only the things they
// touch, so unrelated writes proceed in parallel; there is no store-wide
// data lock. Close stops the background eviction sweep and gates further
// mutation behind ErrClosed.
type Store struct {
	mu     sync.RWMutex // guards things and closed
	closed bool
	things []*Thing

	seq        atomic.Uint64
	labels     *labelRegistry
	transients *transientSet
	hooks      *hookSet
	sweeper    *expiry.Manager
	log        *zap.Logger
}

// New builds a store from cfg, bootstraps the minimal structure ("Object",
// "has-child", "unknownObject" under Object), and starts the background
// eviction sweep when enabled.
//
// Example:
//
//	cfg := uks.DefaultConfig()
//	cfg.EvictionEnabled = false // tests drive EvictExpired directly
//	store, err := uks.New(cfg)
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{
		labels:     newLabelRegistry(),
		transients: newTransientSet(),
		hooks:      newHookSet(),
		log:        log,
	}
	s.bootstrap()

	if cfg.EvictionEnabled {
		s.sweeper = expiry.New(cfg.EvictionInterval, log)
		s.sweeper.Start(s.EvictExpired)
	}

	log.Info("knowledge store ready",
		zap.Bool("eviction", cfg.EvictionEnabled),
		zap.Duration("eviction_interval", cfg.EvictionInterval))
	return s, nil
}

// bootstrap creates the structural minimum every graph relies on: the root
// "Object", the "has-child" relationship type, and "unknownObject" under the
// root. Order matters: has-child must exist before the first AddParent.
func (s *Store) bootstrap() {
	root := s.newThing("Object", nil)
	s.newThing(hasChildLabel, nil)
	unknown := s.newThing("unknownObject", nil)
	// has-child was just created, so the error path is unreachable.
	_, _ = unknown.AddParent(root)
}

// newThing allocates, labels and registers a thing. The creation sequence
// number doubles as the lock-ordering key for multi-thing operations.
func (s *Store) newThing(label string, value any) *Thing {
	t := &Thing{
		st:        s,
		seq:       s.seq.Add(1),
		value:     value,
		outByType: make(map[*Thing][]*Relationship),
		inByType:  make(map[*Thing][]*Relationship),
	}
	s.labels.assign(label, t)
	s.mu.Lock()
	s.things = append(s.things, t)
	s.mu.Unlock()
	return t
}

// AddThing creates a new thing with the given label (auto-suffixed on
// collision) and optional parent.
func (s *Store) AddThing(label string, parent *Thing) (*Thing, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t := s.newThing(label, nil)
	if parent != nil {
		if _, err := t.AddParent(parent); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// GetOrAddThing returns the thing already labeled label
// (case-insensitively), or creates one with the given parent and value.
// Parent and value apply only on creation.
func (s *Store) GetOrAddThing(label string, parent *Thing, value any) (*Thing, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if t := s.labels.lookup(label); t != nil {
		return t, nil
	}
	t := s.newThing(label, value)
	if parent != nil {
		if _, err := t.AddParent(parent); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Labeled returns the thing with the given label, case-insensitively, or
// nil. It never creates.
func (s *Store) Labeled(label string) *Thing {
	return s.labels.lookup(label)
}

// DeleteThing removes t and every edge that references it (outgoing,
// incoming, and edges typed by t) from all indexes and the transient set,
// then releases its label. Deleting an unknown or already-deleted thing is a
// no-op. Cascade removal fires no events.
func (s *Store) DeleteThing(t *Thing) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	t.mu.RLock()
	edges := make([]*Relationship, 0,
		len(t.relationships)+len(t.relationshipsFrom)+len(t.relationshipsAsType))
	edges = append(edges, t.relationships...)
	edges = append(edges, t.relationshipsFrom...)
	edges = append(edges, t.relationshipsAsType...)
	t.mu.RUnlock()

	for _, rel := range edges {
		s.detach(rel)
	}

	s.labels.release(s.labels.labelOf(t))

	s.mu.Lock()
	for i, other := range s.things {
		if other == t {
			s.things = append(s.things[:i], s.things[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// detach removes rel from every index and the transient set, reporting
// whether it was still live. Fires nothing; event-firing callers wrap it.
func (s *Store) detach(rel *Relationship) bool {
	locked := lockThings(rel.source, rel.reltype, rel.target)
	removed := detachLocked(rel)
	unlockThings(locked)
	s.transients.remove(rel)
	return removed
}

// Things returns a snapshot of all things in creation order.
func (s *Store) Things() []*Thing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Thing, len(s.things))
	copy(out, s.things)
	return out
}

// ThingCount returns the number of live things.
func (s *Store) ThingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.things)
}

// RelationshipCount returns the number of live edges. Each edge is counted
// once, on its source.
func (s *Store) RelationshipCount() int {
	total := 0
	for _, t := range s.Things() {
		t.mu.RLock()
		total += len(t.relationships)
		t.mu.RUnlock()
	}
	return total
}

// TransientCount returns the number of edges currently carrying a finite
// TTL.
func (s *Store) TransientCount() int {
	return s.transients.len()
}

// EvictExpired removes every transient edge whose sliding expiry
// (lastUsed + ttl) has passed, firing a remove event per evicted edge, and
// returns the evicted count. The background sweep calls this once per
// interval; tests and tools may call it directly.
func (s *Store) EvictExpired() int {
	now := time.Now()
	evicted := 0
	for _, rel := range s.transients.expiredOf(now) {
		if s.detach(rel) {
			s.hooks.fire(EventRemove, rel)
			evicted++
		}
	}
	if evicted > 0 {
		s.log.Debug("evicted expired relationships", zap.Int("count", evicted))
	}
	return evicted
}

// Reset wipes the graph and re-bootstraps the minimal structure. Meant for
// tests and "new project" flows; subscriptions survive, handles into the old
// graph do not.
func (s *Store) Reset() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.wipe()
	s.bootstrap()
	s.log.Info("knowledge store reset")
	return nil
}

// wipe drops all things, labels and transients wholesale. Edges die with
// the things that index them.
func (s *Store) wipe() {
	s.mu.Lock()
	s.things = nil
	s.mu.Unlock()
	s.labels.clear()
	s.transients.clear()
}

// Close stops and joins the background eviction sweep. Mutating and query
// calls after Close return ErrClosed; plain reads keep working. Close is
// idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	s.log.Info("knowledge store closed")
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
