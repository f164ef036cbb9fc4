package uks

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// InfiniteTTL marks a relationship that never expires. It is the default for
// relationships created without a TTL option.
const InfiniteTTL = time.Duration(math.MaxInt64)

// Clause is a dependency link from one relationship to another: "this fact
// holds because of that fact". The clause type is an ordinary thing, so the
// dependency vocabulary is itself part of the graph.
type Clause struct {
	Type *Thing
	Rel  *Relationship
}

// Relationship is a directed, typed, weighted edge between two things.
//
// The identifying triple (source, type, target) is immutable for the life of
// the relationship; everything else (weight, TTL, usage counters, clause
// lists) is mutable and guarded by the relationship's own mutex so scoring
// and expiry checks never contend with the per-thing index locks.
//
// Scoring model:
//   - Weight is the asserted confidence, merged to max on re-assertion.
//   - Hits count query matches, misses count query rejections; both are
//     bumped for every edge a query examines, not only for results.
//   - Value() combines them: weight * (hits+1) / (hits+misses+2), a smoothed
//     "how often does this edge pay off" estimate.
//
// Expiry model: TTL is sliding, not absolute. Every touch (query
// consideration or upsert with a TTL) resets the clock, so a frequently-used
// edge with a short TTL never expires while a neglected one lapses.
type Relationship struct {
	source  *Thing
	reltype *Thing
	target  *Thing
	created time.Time

	mu          sync.Mutex
	weight      float64
	ttl         time.Duration
	lastUsed    time.Time
	hits        int
	misses      int
	clauses     []Clause
	clausesFrom []*Relationship
}

func newRelationship(source, reltype, target *Thing, weight float64, ttl time.Duration, now time.Time) *Relationship {
	return &Relationship{
		source:   source,
		reltype:  reltype,
		target:   target,
		created:  now,
		weight:   weight,
		ttl:      ttl,
		lastUsed: now,
	}
}

// Source returns the owning thing of the relationship.
func (r *Relationship) Source() *Thing { return r.source }

// RelType returns the type node of the relationship.
func (r *Relationship) RelType() *Thing { return r.reltype }

// Target returns the target thing, or nil for bare attribute edges.
func (r *Relationship) Target() *Thing { return r.target }

// Created returns the creation timestamp.
func (r *Relationship) Created() time.Time { return r.created }

// Weight returns the current asserted confidence.
func (r *Relationship) Weight() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weight
}

// TTL returns the current time-to-live, InfiniteTTL for permanent edges.
func (r *Relationship) TTL() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl
}

// LastUsed returns the last time the relationship was touched.
func (r *Relationship) LastUsed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed
}

// Hits returns how many times the relationship matched a query.
func (r *Relationship) Hits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits
}

// Misses returns how many times the relationship was examined and rejected.
func (r *Relationship) Misses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.misses
}

// Value returns the smoothed usefulness score:
// weight * (hits+1) / (hits+misses+2).
func (r *Relationship) Value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valueLocked()
}

func (r *Relationship) valueLocked() float64 {
	return r.weight * float64(r.hits+1) / float64(r.hits+r.misses+2)
}

// Touch refreshes lastUsed, resetting the sliding expiry clock.
func (r *Relationship) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = time.Now()
}

// Clauses returns a copy of the outgoing clause list.
func (r *Relationship) Clauses() []Clause {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Clause, len(r.clauses))
	copy(out, r.clauses)
	return out
}

// ClausesFrom returns a copy of the relationships that depend on this one.
func (r *Relationship) ClausesFrom() []*Relationship {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Relationship, len(r.clausesFrom))
	copy(out, r.clausesFrom)
	return out
}

// AddClause links this relationship to other with the given clause type and
// records the back-reference on other. The two appends run in separate
// critical sections, so concurrent clause linking in both directions cannot
// deadlock.
func (r *Relationship) AddClause(clauseType *Thing, other *Relationship) {
	r.mu.Lock()
	r.clauses = append(r.clauses, Clause{Type: clauseType, Rel: other})
	r.mu.Unlock()

	other.mu.Lock()
	other.clausesFrom = append(other.clausesFrom, r)
	other.mu.Unlock()
}

// String renders the triple as "source->type->target" (target omitted for
// attribute-only edges).
func (r *Relationship) String() string {
	src := r.source.Label()
	rt := r.reltype.Label()
	if r.target == nil {
		return fmt.Sprintf("%s->%s", src, rt)
	}
	return fmt.Sprintf("%s->%s->%s", src, rt, r.target.Label())
}

// mergeWeight raises weight to w when w is greater.
func (r *Relationship) mergeWeight(w float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w > r.weight {
		r.weight = w
	}
}

// SetWeight overwrites the confidence unconditionally, outside the
// max-merge path. Meant for grooming passes that nudge weights up and down;
// ordinary callers should re-assert through AddRelationship instead.
func (r *Relationship) SetWeight(w float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weight = w
}

// refreshTTL installs a new TTL and restarts the sliding clock.
func (r *Relationship) refreshTTL(ttl time.Duration, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = ttl
	r.lastUsed = now
}

// expiredAt reports whether the sliding window has lapsed at now.
func (r *Relationship) expiredAt(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl != InfiniteTTL && r.lastUsed.Add(r.ttl).Before(now)
}

// transient reports whether the relationship carries a finite TTL.
func (r *Relationship) transient() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl != InfiniteTTL
}

// usage returns weight, ttl and lastUsed in one consistent read. Query
// filtering reads these before scoring.
func (r *Relationship) usage() (weight float64, ttl time.Duration, lastUsed time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weight, r.ttl, r.lastUsed
}

// score refreshes lastUsed and records one hit or miss. Every edge a query
// examines is scored, matched or not.
func (r *Relationship) score(hit bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = now
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

// QueryRelationship is the read-only projection returned by Store.Query.
// It snapshots the scoring fields at match time; mutating it has no effect
// on the live edge.
type QueryRelationship struct {
	Source  *Thing
	RelType *Thing
	Target  *Thing
	Weight  float64
	Value   float64
	Hits    int
	Misses  int
}

// project snapshots the edge into a QueryRelationship.
func (r *Relationship) project() QueryRelationship {
	r.mu.Lock()
	defer r.mu.Unlock()
	return QueryRelationship{
		Source:  r.source,
		RelType: r.reltype,
		Target:  r.target,
		Weight:  r.weight,
		Value:   r.valueLocked(),
		Hits:    r.hits,
		Misses:  r.misses,
	}
}

// Option tunes relationship creation and upsert behavior on
// Store.AddRelationship, Store.AddStatement and Thing.AddRelationship.
type Option func(*relOptions)

type relOptions struct {
	weight float64
	ttl    time.Duration
	hasTTL bool
}

func buildRelOptions(opts []Option) relOptions {
	o := relOptions{weight: 1.0}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithWeight sets the asserted confidence of the relationship. The default
// is 1.0.
func WithWeight(w float64) Option {
	return func(o *relOptions) { o.weight = w }
}

// WithTTL makes the relationship transient with the given sliding
// time-to-live. On upsert of an existing edge the TTL and the expiry clock
// are refreshed.
func WithTTL(d time.Duration) Option {
	return func(o *relOptions) {
		o.ttl = d
		o.hasTTL = true
	}
}
