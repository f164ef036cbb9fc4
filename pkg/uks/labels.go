package uks

import (
	"strconv"
	"strings"
	"sync"
)

// labelRegistry maintains the bijection between case-insensitive labels and
// live things. Keys are lowercased; the case-preserving display form lives on
// the Thing itself and is guarded by the registry mutex, so label reads and
// reassignments never race.
//
// Collision handling: assigning a label already held by another thing
// auto-suffixes with the smallest integer >= 0 that is free for that base
// name. A trailing "*" on the requested label strips the star and forces
// suffixing to start at 0 even when the bare base name is free, which is how
// auto-split instances ("dog" -> "dog0", "dog1", ...) are minted.
type labelRegistry struct {
	mu    sync.RWMutex
	byKey map[string]*Thing
}

func newLabelRegistry() *labelRegistry {
	return &labelRegistry{byKey: make(map[string]*Thing)}
}

// assign binds label to t, resolving collisions, and returns the final label.
// An empty label is a no-op returning "". Any label previously held by t is
// released first so relabeling works. The resolve-and-insert runs as one
// critical section: concurrent assignments of colliding base names can never
// settle on the same final label.
func (r *labelRegistry) assign(label string, t *Thing) string {
	if label == "" {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.label != "" {
		delete(r.byKey, strings.ToLower(t.label))
	}

	base := label
	cur := -1
	if strings.HasSuffix(label, "*") {
		base = strings.TrimSuffix(label, "*")
		cur = 0
		label = base + "0"
	}

	for {
		key := strings.ToLower(label)
		existing, ok := r.byKey[key]
		if !ok || existing == t {
			r.byKey[key] = t
			t.label = label
			return label
		}
		cur++
		label = base + strconv.Itoa(cur)
	}
}

// lookup returns the thing currently bound to label (case-insensitive), or
// nil. It never creates.
func (r *labelRegistry) lookup(label string) *Thing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[strings.ToLower(label)]
}

// release unbinds label if present. Releasing an unknown label is a no-op.
func (r *labelRegistry) release(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, strings.ToLower(label))
}

// labelOf reads t's current display label.
func (r *labelRegistry) labelOf(t *Thing) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return t.label
}

// clear wipes every binding. Used by Reset and non-merging imports.
func (r *labelRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]*Thing)
}

func (r *labelRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
