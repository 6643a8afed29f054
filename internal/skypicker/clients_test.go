package skypicker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/flight-explorer/internal/skypicker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flightsHandler(t *testing.T, captured *url.Values) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flights", r.URL.Path)
		if captured != nil {
			*captured = r.URL.Query()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"search_id": "s-1",
			"time":      1700000000,
			"currency":  "USD",
			"fx_rate":   1.08,
			"data": []map[string]any{
				{
					"id":           "F1",
					"cityCodeTo":   "AAA",
					"cityTo":       "Alpha",
					"countryFrom":  map[string]any{"name": "Turkey", "code": "TR"},
					"countryTo":    map[string]any{"name": "Spain", "code": "ES"},
					"price":        120,
					"distance":     2950.5,
					"dTime":        1700001000,
					"dTimeUTC":     1700000000,
					"aTime":        1700011000,
					"aTimeUTC":     1700010000,
					"fly_duration": "4h 10m",
				},
			},
		})
	}
}

func locationsHandler(t *testing.T, captured *url.Values, ids ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/locations", r.URL.Path)
		if captured != nil {
			*captured = r.URL.Query()
		}
		locs := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			locs = append(locs, map[string]any{"id": id, "active": true, "name": id, "slug": id, "slug_en": id, "code": id})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"locations": locs})
	}
}

func TestSearchClient_Search(t *testing.T) {
	var q url.Values
	srv := httptest.NewServer(flightsHandler(t, &q))
	defer srv.Close()

	c := skypicker.NewSearchClientWithURL(srv.URL)
	res, err := c.Search(context.Background(), "antalya_tr", []string{"AAA", "BBB"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "antalya_tr", q.Get("fly_from"))
	assert.Equal(t, "airport:AAA,BBB", q.Get("fly_to"))
	assert.Equal(t, "skypicker-android", q.Get("partner"))
	assert.Equal(t, "5", q.Get("limit"))
	assert.Equal(t, "1", q.Get("one_for_city"))

	assert.Equal(t, "s-1", res.SearchID)
	assert.Equal(t, "USD", res.Currency)
	require.Len(t, res.Data, 1)

	f := res.Data[0]
	assert.Equal(t, "F1", f.ID)
	assert.Equal(t, 120, f.Price)
	assert.Equal(t, "Spain", f.CountryTo.Name)
	assert.Equal(t, "TR", f.CountryFrom.Code)
	assert.Equal(t, int64(1700000000), f.DepartureTimeUTC)
	assert.Equal(t, "4h 10m", f.Duration)
	assert.Equal(t, "EUR", f.Currency, "currency defaults until the search applies its own")
	assert.False(t, f.IsFavorite)
}

func TestSearchClient_LooseFxRate(t *testing.T) {
	for _, raw := range []string{`""`, `"1.08"`, `null`} {
		t.Run(raw, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"search_id":"s-2","currency":"EUR","fx_rate":` + raw + `,"data":[{"id":"F1","cityTo":"Alpha","price":90}]}`))
			}))
			defer srv.Close()

			c := skypicker.NewSearchClientWithURL(srv.URL)
			res, err := c.Search(context.Background(), "antalya_tr", []string{"AAA"})
			require.NoError(t, err)
			assert.Equal(t, "s-2", res.SearchID)
			require.Len(t, res.Data, 1)
			assert.Equal(t, 90, res.Data[0].Price)
		})
	}
}

func TestSearchClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := skypicker.NewSearchClientWithURL(srv.URL)
	_, err := c.Search(context.Background(), "antalya_tr", []string{"AAA"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, skypicker.ErrTransport))
}

func TestSearchClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := skypicker.NewSearchClientWithURL(srv.URL)
	_, err := c.Search(context.Background(), "antalya_tr", []string{"AAA"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, skypicker.ErrTransport))
}

func TestSearchClient_Canceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := skypicker.NewSearchClientWithURL(srv.URL)
	_, err := c.Search(ctx, "antalya_tr", []string{"AAA"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLocationsClient_Discover(t *testing.T) {
	var q url.Values
	srv := httptest.NewServer(locationsHandler(t, &q, "MAD", "BCN", ""))
	defer srv.Close()

	c := skypicker.NewLocationsClientWithURL(srv.URL, discardLogger())
	ids, err := c.Discover(context.Background(), "spain", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"MAD", "BCN"}, ids)
	assert.Equal(t, "spain", q.Get("term"))
	assert.Equal(t, "5", q.Get("limit"))
	assert.Equal(t, "airport", q.Get("location_types"))
}

func TestLocationsClient_Discover_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := skypicker.NewLocationsClientWithURL(srv.URL, discardLogger())
	_, err := c.Discover(context.Background(), "spain", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, skypicker.ErrTransport))
}

func TestLocationsClient_ResolveImage(t *testing.T) {
	var q url.Values
	srv := httptest.NewServer(locationsHandler(t, &q, "madrid_es"))
	defer srv.Close()

	c := skypicker.NewLocationsClientWithURL(srv.URL, discardLogger())
	id := c.ResolveImage(context.Background(), "Madrid")

	assert.Equal(t, "madrid_es", id)
	assert.Equal(t, "Madrid", q.Get("term"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "city", q.Get("location_types"))
}

func TestLocationsClient_ResolveImage_SoftFailures(t *testing.T) {
	empty := httptest.NewServer(locationsHandler(t, nil))
	defer empty.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusInternalServerError)
	}))
	defer broken.Close()

	for _, u := range []string{empty.URL, broken.URL} {
		c := skypicker.NewLocationsClientWithURL(u, discardLogger())
		assert.Equal(t, "", c.ResolveImage(context.Background(), "Nowhere"))
	}
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, "https://images.kiwi.com/photos/300x165/madrid_es.jpg", skypicker.ImageURL("madrid_es", 320))
	assert.Equal(t, "https://images.kiwi.com/photos/600x330/madrid_es.jpg", skypicker.ImageURL("madrid_es", 480))
	assert.Equal(t, "https://images.kiwi.com/photos/1280x720/madrid_es.jpg", skypicker.ImageURL("madrid_es", 1024))
	assert.Equal(t, "", skypicker.ImageURL("", 1024))
}
