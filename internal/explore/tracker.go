// Package explore tracks which destination cities have already been searched
// and picks fresh ones for the next search.
package explore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

// CityStore is the persistence the tracker needs. storage.Repository
// satisfies it.
type CityStore interface {
	UnvisitedCities(ctx context.Context) ([]flight.City, error)
	MarkCitiesVisited(ctx context.Context, names []string) error
}

// Tracker selects unexplored cities and records explored ones.
type Tracker struct {
	store CityStore

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTracker constructs a Tracker with a randomly seeded source.
func NewTracker(store CityStore) *Tracker {
	return NewTrackerWithRand(store, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewTrackerWithRand constructs a Tracker with an explicit random source (for tests).
func NewTrackerWithRand(store CityStore, rng *rand.Rand) *Tracker {
	return &Tracker{store: store, rng: rng}
}

// RequestBatch returns up to n unvisited cities drawn uniformly at random,
// without replacement, from the unvisited set as it exists right now. An
// empty batch means every known city has been explored.
func (t *Tracker) RequestBatch(ctx context.Context, n int) ([]flight.City, error) {
	if n <= 0 {
		return nil, nil
	}

	cities, err := t.store.UnvisitedCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading unvisited cities: %w", err)
	}

	// The store may hand back a stale or visited row; never return one.
	pool := make([]flight.City, 0, len(cities))
	for _, c := range cities {
		if !c.Visited {
			pool = append(pool, c)
		}
	}

	if n > len(pool) {
		n = len(pool)
	}

	// Partial Fisher-Yates: the first n slots end up as a uniform sample.
	t.mu.Lock()
	for i := 0; i < n; i++ {
		j := i + t.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	t.mu.Unlock()

	return pool[:n], nil
}

// MarkVisited flags the named cities as explored. Names are matched without
// regard to case; duplicates and blanks are dropped. Calling it again with
// overlapping names is safe.
func (t *Tracker) MarkVisited(ctx context.Context, names []string) error {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToUpper(n)
		if n == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, n)
	}
	if len(unique) == 0 {
		return nil
	}

	if err := t.store.MarkCitiesVisited(ctx, unique); err != nil {
		return fmt.Errorf("marking cities visited: %w", err)
	}
	return nil
}
