package orchestrator

import (
	"context"
	"fmt"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

// ToggleFavorite flips the favorite flag of flight id in the published result
// set and returns the new flag. The new set is published immediately; the
// store is updated in the background and a failed write is not rolled back.
// Until the write lands, searches that publish keep the toggled flag.
func (o *Orchestrator) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	favorite, seq, ok := o.state.toggle(id, o.clock.Now())
	if !ok {
		return false, ErrFlightNotFound
	}

	persistCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.deps.Flights.SetFavorite(persistCtx, id, favorite)
		o.state.settle(id, seq, err == nil)
		if err != nil {
			o.log.Error("persisting favorite failed", "flight_id", id, "favorite", favorite, "err", err)
			o.metrics.FavoriteToggles.WithLabelValues("failed").Inc()
			return
		}
		o.metrics.FavoriteToggles.WithLabelValues("persisted").Inc()
	}()

	return favorite, nil
}

// FavoriteStore is the interface satisfied by storage.Repository.
type FavoriteStore interface {
	Favorites(ctx context.Context) ([]flight.Flight, error)
	FavoritesCount(ctx context.Context) (int, error)
}

// Favorites reads the stored favorites.
type Favorites struct {
	store FavoriteStore
}

// NewFavorites constructs a Favorites backed by store.
func NewFavorites(store FavoriteStore) *Favorites {
	return &Favorites{store: store}
}

// Filter returns the stored favorites matching query, grouped by destination
// country in ascending name order. An empty query matches every favorite.
func (f *Favorites) Filter(ctx context.Context, query string) ([]flight.CountryGroup, error) {
	all, err := f.store.Favorites(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading favorites: %w", err)
	}
	return flight.GroupByDestinationCountry(flight.FilterFavorites(all, query)), nil
}

// Count returns the number of stored favorites.
func (f *Favorites) Count(ctx context.Context) (int, error) {
	n, err := f.store.FavoritesCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting favorites: %w", err)
	}
	return n, nil
}
