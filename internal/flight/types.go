package flight

import "encoding/json"

// DefaultCurrency is applied to flights until a search response overrides it.
const DefaultCurrency = "EUR"

// Country is a country reference. It is embedded by value in Flight for both
// the origin and the destination.
type Country struct {
	ID   int    `json:"-"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// City is a known destination city and its exploration status.
type City struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code"`
	Visited     bool   `json:"visited"`
}

// Airport is a read-only reference row mapping a city to an IATA code.
type Airport struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	IATACode    string `json:"iata_code"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
}

// Flight is a single offer returned by the search API and stored in the cache.
// Only IsFavorite and ImageID change after creation.
type Flight struct {
	ID               string  `json:"id"`
	CityCodeTo       string  `json:"cityCodeTo"`
	CityTo           string  `json:"cityTo"`
	CountryFrom      Country `json:"countryFrom"`
	CountryTo        Country `json:"countryTo"`
	Price            int     `json:"price"`
	Currency         string  `json:"currency"`
	Distance         float64 `json:"distance"`
	DepartureTime    int64   `json:"dTime"`
	DepartureTimeUTC int64   `json:"dTimeUTC"`
	ArrivalTime      int64   `json:"aTime"`
	ArrivalTimeUTC   int64   `json:"aTimeUTC"`
	Duration         string  `json:"fly_duration"`
	IsFavorite       bool    `json:"is_favorite"`
	ImageID          string  `json:"image_id"`
}

// SearchResult is the response envelope of a flight search. FxRate is kept
// raw; the API sends a number, a string or an empty string.
type SearchResult struct {
	SearchID string          `json:"search_id"`
	Time     int64           `json:"time"`
	Currency string          `json:"currency"`
	FxRate   json.RawMessage `json:"fx_rate"`
	Data     []Flight        `json:"data"`
}

// Location is a single match returned by the locations API.
type Location struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	SlugEn string `json:"slug_en"`
	Code   string `json:"code"`
}

// CityFilter is a destination explicitly chosen by the caller.
type CityFilter struct {
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
}
