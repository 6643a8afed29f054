package flight

import (
	"sort"
	"strings"
)

// ResultSet is an immutable, ordered list of flights published to readers.
// Changes always produce a new set; the receiver is never modified.
type ResultSet struct {
	flights []Flight
}

// NewResultSet copies flights into a new set.
func NewResultSet(flights []Flight) *ResultSet {
	dup := make([]Flight, len(flights))
	copy(dup, flights)
	return &ResultSet{flights: dup}
}

// Len returns the number of flights; a nil set has none.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.flights)
}

// Flights returns a copy of the flights in result order.
func (r *ResultSet) Flights() []Flight {
	if r == nil {
		return nil
	}
	dup := make([]Flight, len(r.flights))
	copy(dup, r.flights)
	return dup
}

// Find returns the flight with the given id.
func (r *ResultSet) Find(id string) (Flight, bool) {
	if r == nil {
		return Flight{}, false
	}
	for _, f := range r.flights {
		if f.ID == id {
			return f, true
		}
	}
	return Flight{}, false
}

// WithFavorite returns a new set where the flight with the given id has its
// favorite flag set to favorite. The second return value is false when no
// flight matches, in which case the receiver is returned unchanged.
func (r *ResultSet) WithFavorite(id string, favorite bool) (*ResultSet, bool) {
	if r == nil {
		return nil, false
	}
	idx := -1
	for i, f := range r.flights {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return r, false
	}

	next := NewResultSet(r.flights)
	next.flights[idx].IsFavorite = favorite
	return next, true
}

// FilterFavorites returns the flights whose destination country name,
// destination city or destination country code contains query, ignoring case.
// An empty query matches every flight.
func FilterFavorites(flights []Flight, query string) []Flight {
	q := strings.ToUpper(strings.TrimSpace(query))

	out := make([]Flight, 0, len(flights))
	for _, f := range flights {
		if q == "" ||
			strings.Contains(strings.ToUpper(f.CountryTo.Name), q) ||
			strings.Contains(strings.ToUpper(f.CityTo), q) ||
			strings.Contains(strings.ToUpper(f.CountryTo.Code), q) {
			out = append(out, f)
		}
	}
	return out
}

// CountryGroup is the set of flights heading to one destination country.
type CountryGroup struct {
	Country string   `json:"country"`
	Flights []Flight `json:"flights"`
}

// GroupByDestinationCountry groups flights by destination country name. Groups
// are sorted by name; flights inside a group keep their input order.
func GroupByDestinationCountry(flights []Flight) []CountryGroup {
	index := make(map[string]int)
	var groups []CountryGroup

	for _, f := range flights {
		i, ok := index[f.CountryTo.Name]
		if !ok {
			i = len(groups)
			index[f.CountryTo.Name] = i
			groups = append(groups, CountryGroup{Country: f.CountryTo.Name})
		}
		groups[i].Flights = append(groups[i].Flights, f)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Country < groups[b].Country
	})
	return groups
}
