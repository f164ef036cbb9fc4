package uks

import (
	"sync"
	"time"
)

// transientSet tracks every edge carrying a finite TTL so the eviction
// sweep only visits candidates instead of walking the whole graph. The set
// is identity-keyed: an edge is registered at most once no matter how many
// times its TTL is refreshed.
type transientSet struct {
	mu  sync.Mutex
	set map[*Relationship]struct{}
}

func newTransientSet() *transientSet {
	return &transientSet{set: make(map[*Relationship]struct{})}
}

func (s *transientSet) add(rel *Relationship) {
	s.mu.Lock()
	s.set[rel] = struct{}{}
	s.mu.Unlock()
}

func (s *transientSet) remove(rel *Relationship) {
	s.mu.Lock()
	delete(s.set, rel)
	s.mu.Unlock()
}

// snapshot returns the current members. Eviction works on the copy so edge
// locks are never taken while the set's own mutex is held.
func (s *transientSet) snapshot() []*Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Relationship, 0, len(s.set))
	for rel := range s.set {
		out = append(out, rel)
	}
	return out
}

func (s *transientSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

func (s *transientSet) clear() {
	s.mu.Lock()
	s.set = make(map[*Relationship]struct{})
	s.mu.Unlock()
}

// expiredOf partitions the snapshot by the sliding-expiry rule
// lastUsed+ttl < now and returns the expired members.
func (s *transientSet) expiredOf(now time.Time) []*Relationship {
	var expired []*Relationship
	for _, rel := range s.snapshot() {
		if rel.expiredAt(now) {
			expired = append(expired, rel)
		}
	}
	return expired
}
