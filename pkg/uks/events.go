package uks

import "sync"

// EventKind discriminates graph change notifications.
type EventKind string

const (
	// EventAdd fires when a new edge is created, whether directly or as a
	// side effect of a higher-level operation.
	EventAdd EventKind = "add"
	// EventUpdate fires when an existing edge is re-asserted through
	// AddRelationship and its weight/TTL are merged in place.
	EventUpdate EventKind = "update"
	// EventRemove fires when a live edge is detached, including eviction.
	EventRemove EventKind = "remove"
)

// Handler receives the affected edge. Handlers run synchronously on the
// goroutine performing the mutation, after store locks are released, so it
// is safe to call back into the store; a slow handler slows the writer
// down with it.
type Handler func(*Relationship)

type hook struct {
	id int
	fn Handler
}

// hookSet is the subscriber registry backing Store.On. Handlers for a kind
// run in registration order.
type hookSet struct {
	mu     sync.RWMutex
	nextID int
	hooks  map[EventKind][]hook
}

func newHookSet() *hookSet {
	return &hookSet{hooks: make(map[EventKind][]hook)}
}

func (h *hookSet) add(kind EventKind, fn Handler) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.hooks[kind] = append(h.hooks[kind], hook{id: id, fn: fn})
	return id
}

func (h *hookSet) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for kind, list := range h.hooks {
		for i, hk := range list {
			if hk.id == id {
				h.hooks[kind] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (h *hookSet) fire(kind EventKind, rel *Relationship) {
	h.mu.RLock()
	list := h.hooks[kind]
	fns := make([]Handler, len(list))
	for i, hk := range list {
		fns[i] = hk.fn
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(rel)
	}
}

// On registers fn for the given event kind and returns a token for Off.
// Handlers fire on the mutating goroutine, in registration order, with no
// queuing.
func (s *Store) On(kind EventKind, fn Handler) int {
	return s.hooks.add(kind, fn)
}

// Off removes a handler previously registered with On. Unknown tokens are
// ignored.
func (s *Store) Off(id int) {
	s.hooks.remove(id)
}
