package uks

import "sort"

// lockThings write-locks every distinct non-nil thing in ascending creation
// sequence and returns the locked set in that order. Acquiring multi-thing
// locks only through this helper is what makes edge registration deadlock
// free: two goroutines locking overlapping sets always take the common
// things in the same order.
func lockThings(things ...*Thing) []*Thing {
	set := things[:0:0]
	for _, t := range things {
		if t != nil {
			set = append(set, t)
		}
	}
	sort.Slice(set, func(i, j int) bool { return set[i].seq < set[j].seq })

	locked := set[:0]
	var prev *Thing
	for _, t := range set {
		if t == prev {
			continue
		}
		t.mu.Lock()
		locked = append(locked, t)
		prev = t
	}
	return locked
}

// unlockThings releases locks taken by lockThings, in reverse order.
func unlockThings(locked []*Thing) {
	for i := len(locked) - 1; i >= 0; i-- {
		locked[i].mu.Unlock()
	}
}
