package storage

import (
	"context"
	"fmt"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

const flightColumns = `
	flight_id, city_code_to, city_to,
	from_country_name, from_country_code, to_country_name, to_country_code,
	price, currency, distance,
	d_time, d_time_utc, a_time, a_time_utc,
	duration, is_favorite, image_id
`

func scanFlight(s scanner) (flight.Flight, error) {
	var f flight.Flight
	err := s.Scan(
		&f.ID,
		&f.CityCodeTo,
		&f.CityTo,
		&f.CountryFrom.Name,
		&f.CountryFrom.Code,
		&f.CountryTo.Name,
		&f.CountryTo.Code,
		&f.Price,
		&f.Currency,
		&f.Distance,
		&f.DepartureTime,
		&f.DepartureTimeUTC,
		&f.ArrivalTime,
		&f.ArrivalTimeUTC,
		&f.Duration,
		&f.IsFavorite,
		&f.ImageID,
	)
	return f, err
}

// InsertIfAbsent stores f unless a flight with the same id already exists.
// It reports whether a row was written; an existing row is left untouched.
func (r *Repository) InsertIfAbsent(ctx context.Context, f flight.Flight) (bool, error) {
	const q = `
		INSERT INTO flights (` + flightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (flight_id) DO NOTHING
	`

	currency := f.Currency
	if currency == "" {
		currency = flight.DefaultCurrency
	}

	tag, err := r.q.Exec(ctx, q,
		f.ID, f.CityCodeTo, f.CityTo,
		f.CountryFrom.Name, f.CountryFrom.Code, f.CountryTo.Name, f.CountryTo.Code,
		f.Price, currency, f.Distance,
		f.DepartureTime, f.DepartureTimeUTC, f.ArrivalTime, f.ArrivalTimeUTC,
		f.Duration, f.IsFavorite, f.ImageID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting flight %s: %w", f.ID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// FlightExists reports whether a flight with the given id is cached.
func (r *Repository) FlightExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM flights WHERE flight_id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking flight %s: %w", id, err)
	}
	return exists, nil
}

// SetFavorite updates the favorite flag of a single flight by id. Unknown ids
// are a no-op.
func (r *Repository) SetFavorite(ctx context.Context, id string, favorite bool) error {
	const q = `UPDATE flights SET is_favorite = $2 WHERE flight_id = $1`

	if _, err := r.q.Exec(ctx, q, id, favorite); err != nil {
		return fmt.Errorf("updating favorite flag for flight %s: %w", id, err)
	}
	return nil
}

// Favorites returns every cached flight marked as favorite, oldest first.
func (r *Repository) Favorites(ctx context.Context) ([]flight.Flight, error) {
	q := `SELECT ` + flightColumns + ` FROM flights WHERE is_favorite ORDER BY created_at, flight_id`

	rows, err := r.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying favorite flights: %w", err)
	}
	defer rows.Close()

	var results []flight.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning flight row: %w", err)
		}
		results = append(results, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flight rows: %w", err)
	}

	return results, nil
}

// FavoriteIDs returns the subset of ids whose cached flight is a favorite.
func (r *Repository) FavoriteIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.q.Query(ctx, `SELECT flight_id FROM flights WHERE is_favorite AND flight_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying favorite ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning favorite id: %w", err)
		}
		out[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating favorite ids: %w", err)
	}

	return out, nil
}

// FavoritesCount returns the number of favorite flights.
func (r *Repository) FavoritesCount(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM flights WHERE is_favorite`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting favorite flights: %w", err)
	}
	return n, nil
}
