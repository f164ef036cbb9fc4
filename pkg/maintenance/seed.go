package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/uks/pkg/uks"
)

// maxSeedCount bounds one seeding run.
const maxSeedCount = 100_000

// subtreeSize is the capacity of one outer subtree: the A root, 100 B
// children, 10 C grandchildren under each B.
const subtreeSize = 1 + 100 + 100*10

// ErrSeedCount rejects non-positive or oversized seed requests.
var ErrSeedCount = errors.New("seed count out of range")

// Seeder bulk-inserts a three-level test hierarchy: parentless roots
// A0..A99, each with children B<outer><j> and grandchildren C<outer><j><k>.
// Insertion stops exactly at count, walking the tree depth-first, so
// repeated runs with the same count are idempotent.
type Seeder struct {
	count int
}

// NewSeeder builds a seeder for count things.
func NewSeeder(count int) *Seeder {
	return &Seeder{count: count}
}

func (s *Seeder) validate() error {
	if s.count <= 0 {
		return fmt.Errorf("%w: %d", ErrSeedCount, s.count)
	}
	if s.count > maxSeedCount {
		return fmt.Errorf("%w: %d (max %d)", ErrSeedCount, s.count, maxSeedCount)
	}
	return nil
}

// Seed inserts the hierarchy one subtree at a time and returns how many
// things were created or reused.
func (s *Seeder) Seed(store *uks.Store) (int, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}
	created := 0
	for outer := 0; created < s.count && outer < 100; outer++ {
		n, err := s.seedSubtree(store, outer, s.count-created)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

// SeedConcurrent splits the outer subtrees across at most workers
// goroutines and returns the same count as Seed; only the insertion
// order differs. workers <= 0 means one goroutine per subtree.
func (s *Seeder) SeedConcurrent(ctx context.Context, store *uks.Store, workers int) (int, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}

	type job struct {
		outer  int
		budget int
	}
	var jobs []job
	remaining := s.count
	for outer := 0; remaining > 0 && outer < 100; outer++ {
		budget := subtreeSize
		if budget > remaining {
			budget = remaining
		}
		jobs = append(jobs, job{outer: outer, budget: budget})
		remaining -= budget
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	var created atomic.Int64
	for _, jb := range jobs {
		jb := jb
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := s.seedSubtree(store, jb.outer, jb.budget)
			created.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	return int(created.Load()), err
}

// seedSubtree fills the subtree rooted at A<outer>, stopping after budget
// insertions.
func (s *Seeder) seedSubtree(store *uks.Store, outer, budget int) (int, error) {
	created := 0
	a, err := store.GetOrAddThing(fmt.Sprintf("A%d", outer), nil, nil)
	if err != nil {
		return created, err
	}
	created++
	if created >= budget {
		return created, nil
	}
	for j := 0; j < 100; j++ {
		b, err := store.GetOrAddThing(fmt.Sprintf("B%d%d", outer, j), a, nil)
		if err != nil {
			return created, err
		}
		created++
		if created >= budget {
			return created, nil
		}
		for k := 0; k < 10; k++ {
			if _, err := store.GetOrAddThing(fmt.Sprintf("C%d%d%d", outer, j, k), b, nil); err != nil {
				return created, err
			}
			created++
			if created >= budget {
				return created, nil
			}
		}
	}
	return created, nil
}
