package skypicker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

const (
	httpTimeout = 30 * time.Second

	// DefaultBaseURL is the production search and locations API.
	DefaultBaseURL = "https://api.skypicker.com"

	partner      = "skypicker-android"
	flightsLimit = 5
	oneForCity   = 1
)

// ErrTransport marks a failed remote call: network error, non-200 status or
// an undecodable body.
var ErrTransport = errors.New("skypicker transport error")

// newHTTPClient returns an http.Client with a generous ceiling; the real
// deadline is enforced by the caller's context.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// doGet performs a GET request and decodes the JSON response into dst.
func doGet(ctx context.Context, client *http.Client, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %w", rawURL, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d: %w", rawURL, resp.StatusCode, ErrTransport)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w: %w", rawURL, ErrTransport, err)
	}

	return nil
}

// ---- Flights ----

// SearchClient issues flight searches against the /flights endpoint.
type SearchClient struct {
	baseURL string
	client  *http.Client
}

// NewSearchClient constructs a SearchClient using the production URL.
func NewSearchClient() *SearchClient {
	return NewSearchClientWithURL(DefaultBaseURL)
}

// NewSearchClientWithURL constructs a SearchClient pointing at a custom base URL.
func NewSearchClientWithURL(baseURL string) *SearchClient {
	return &SearchClient{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient()}
}

// Search looks up flights from origin to any of the destination codes.
// Canceling ctx aborts the request and no result is returned.
func (c *SearchClient) Search(ctx context.Context, origin string, destinationCodes []string) (*flight.SearchResult, error) {
	q := url.Values{}
	q.Set("fly_from", origin)
	q.Set("fly_to", "airport:"+strings.Join(destinationCodes, ","))
	q.Set("partner", partner)
	q.Set("limit", strconv.Itoa(flightsLimit))
	q.Set("one_for_city", strconv.Itoa(oneForCity))

	endpoint := c.baseURL + "/flights?" + q.Encode()

	var raw flight.SearchResult
	if err := doGet(ctx, c.client, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("searching flights from %s: %w", origin, err)
	}

	for i := range raw.Data {
		if raw.Data[i].Currency == "" {
			raw.Data[i].Currency = flight.DefaultCurrency
		}
	}

	return &raw, nil
}

// ---- Locations ----

// LocationsClient resolves free-text terms through the /locations endpoint.
type LocationsClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewLocationsClient constructs a LocationsClient using the production URL.
func NewLocationsClient(log *slog.Logger) *LocationsClient {
	return NewLocationsClientWithURL(DefaultBaseURL, log)
}

// NewLocationsClientWithURL constructs a LocationsClient pointing at a custom base URL.
func NewLocationsClientWithURL(baseURL string, log *slog.Logger) *LocationsClient {
	return &LocationsClient{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(), log: log}
}

type locationsResponse struct {
	Locations []flight.Location `json:"locations"`
}

func (c *LocationsClient) locations(ctx context.Context, term string, limit int, locationTypes string) ([]flight.Location, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("location_types", locationTypes)

	var raw locationsResponse
	if err := doGet(ctx, c.client, c.baseURL+"/locations?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("locations lookup for %q: %w", term, err)
	}
	return raw.Locations, nil
}

// Discover returns up to limit airport identifiers matching term. The ids can
// be used directly as destination codes in a search.
func (c *LocationsClient) Discover(ctx context.Context, term string, limit int) ([]string, error) {
	locs, err := c.locations(ctx, term, limit, "airport")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(locs))
	for _, l := range locs {
		if l.ID == "" {
			continue
		}
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// ResolveImage returns the image identifier for a destination name, or an
// empty string when it cannot be resolved. Failures are logged, never returned.
func (c *LocationsClient) ResolveImage(ctx context.Context, name string) string {
	locs, err := c.locations(ctx, name, 1, "city")
	if err != nil {
		c.log.Warn("image lookup failed", "destination", name, "err", err)
		return ""
	}
	if len(locs) == 0 {
		c.log.Warn("image lookup returned no locations", "destination", name)
		return ""
	}
	return locs[0].ID
}

// ---- Images ----

const imageBaseURL = "https://images.kiwi.com/photos"

// ImageURL builds the photo URL for an image id sized for a display of the
// given width. It returns an empty string for an empty id.
func ImageURL(id string, width int) string {
	if id == "" {
		return ""
	}

	dim := "1280x720"
	switch {
	case width <= 320:
		dim = "300x165"
	case width <= 600:
		dim = "600x330"
	}
	return imageBaseURL + "/" + dim + "/" + id + ".jpg"
}
