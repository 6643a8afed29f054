package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

const cityFilterLimit = 20

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// InsertCountries stores countries, skipping codes that already exist.
func (r *Repository) InsertCountries(ctx context.Context, countries []flight.Country) error {
	if len(countries) == 0 {
		return nil
	}

	names := make([]string, len(countries))
	codes := make([]string, len(countries))
	for i, c := range countries {
		names[i], codes[i] = c.Name, c.Code
	}

	const q = `
		INSERT INTO countries (name, code)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (code) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, q, names, codes); err != nil {
		return fmt.Errorf("inserting %d countries: %w", len(countries), err)
	}
	return nil
}

// InsertCities stores cities as unvisited, skipping (name, country) pairs that
// already exist so that an existing visited flag is never reset.
func (r *Repository) InsertCities(ctx context.Context, cities []flight.City) error {
	if len(cities) == 0 {
		return nil
	}

	names := make([]string, len(cities))
	codes := make([]string, len(cities))
	for i, c := range cities {
		names[i], codes[i] = c.Name, c.CountryCode
	}

	const q = `
		INSERT INTO cities (name, country_code)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (name, country_code) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, q, names, codes); err != nil {
		return fmt.Errorf("inserting %d cities: %w", len(cities), err)
	}
	return nil
}

// InsertAirports stores airports, skipping IATA codes that already exist.
func (r *Repository) InsertAirports(ctx context.Context, airports []flight.Airport) error {
	if len(airports) == 0 {
		return nil
	}

	names := make([]string, len(airports))
	iatas := make([]string, len(airports))
	countries := make([]string, len(airports))
	cities := make([]string, len(airports))
	for i, a := range airports {
		names[i], iatas[i], countries[i], cities[i] = a.Name, a.IATACode, a.CountryCode, a.City
	}

	const q = `
		INSERT INTO airports (name, iata_code, country_code, city)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[])
		ON CONFLICT (iata_code) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, q, names, iatas, countries, cities); err != nil {
		return fmt.Errorf("inserting %d airports: %w", len(airports), err)
	}
	return nil
}

// AirportCodesInCity returns the IATA codes of every airport in the given
// city, matching city and country case-insensitively.
func (r *Repository) AirportCodesInCity(ctx context.Context, city, countryCode string) ([]string, error) {
	const q = `
		SELECT iata_code FROM airports
		WHERE UPPER(city) = UPPER($1) AND UPPER(country_code) = UPPER($2)
		ORDER BY iata_code
	`

	rows, err := r.q.Query(ctx, q, city, countryCode)
	if err != nil {
		return nil, fmt.Errorf("querying airports in %s, %s: %w", city, countryCode, err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning airport row: %w", err)
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating airport rows: %w", err)
	}

	return codes, nil
}

func (r *Repository) queryCities(ctx context.Context, q string, args ...any) ([]flight.City, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cities: %w", err)
	}
	defer rows.Close()

	var cities []flight.City
	for rows.Next() {
		var c flight.City
		if err := rows.Scan(&c.ID, &c.Name, &c.CountryCode, &c.Visited); err != nil {
			return nil, fmt.Errorf("scanning city row: %w", err)
		}
		cities = append(cities, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating city rows: %w", err)
	}

	return cities, nil
}

// UnvisitedCities returns every city not yet explored.
func (r *Repository) UnvisitedCities(ctx context.Context) ([]flight.City, error) {
	return r.queryCities(ctx, `SELECT id, name, country_code, visited FROM cities WHERE NOT visited`)
}

// FilterCities returns up to 20 cities whose name contains text, ignoring
// case, ordered by country code. Wildcards in text match literally.
func (r *Repository) FilterCities(ctx context.Context, text string) ([]flight.City, error) {
	const q = `
		SELECT id, name, country_code, visited FROM cities
		WHERE UPPER(name) LIKE '%' || UPPER($1) || '%' ESCAPE '\'
		ORDER BY country_code ASC, name ASC
		LIMIT $2
	`
	return r.queryCities(ctx, q, likeEscaper.Replace(text), cityFilterLimit)
}

// MarkCitiesVisited flags every city whose name matches one of names,
// ignoring case. The update only ever sets visited to true, so repeated and
// overlapping calls converge on the same state.
func (r *Repository) MarkCitiesVisited(ctx context.Context, names []string) error {
	upper := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			upper = append(upper, strings.ToUpper(n))
		}
	}
	if len(upper) == 0 {
		return nil
	}

	const q = `UPDATE cities SET visited = TRUE WHERE NOT visited AND UPPER(name) = ANY($1)`
	if _, err := r.q.Exec(ctx, q, upper); err != nil {
		return fmt.Errorf("marking %d cities visited: %w", len(upper), err)
	}
	return nil
}
