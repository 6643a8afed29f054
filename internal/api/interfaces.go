package api

import (
	"context"

	"github.com/neexbeast/flight-explorer/internal/flight"
	"github.com/neexbeast/flight-explorer/internal/orchestrator"
)

// FlightService defines the search operations needed by handlers.
type FlightService interface {
	Snapshot() orchestrator.Snapshot
	Refresh(ctx context.Context) bool
	Search(ctx context.Context, cities []flight.CityFilter) (orchestrator.Snapshot, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)
}

// FavoriteService defines the favorites queries needed by handlers.
type FavoriteService interface {
	Filter(ctx context.Context, query string) ([]flight.CountryGroup, error)
	Count(ctx context.Context) (int, error)
}

// CityLookup defines the city autocomplete query needed by handlers.
type CityLookup interface {
	FilterCities(ctx context.Context, text string) ([]flight.City, error)
}
