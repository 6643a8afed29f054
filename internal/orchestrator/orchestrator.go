// Package orchestrator runs flight searches for unexplored destinations and
// publishes the outcome as a Snapshot.
//
// A search picks destinations (explicit cities, then an exploration batch,
// then a discovery term), races the remote search against a deadline, enriches
// the flights with images, caches them and marks their cities visited. Only
// one search runs at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/flight-explorer/internal/flight"
	"github.com/neexbeast/flight-explorer/internal/metrics"
)

var (
	// ErrNetworkTimeout is returned by the supervisor when the search deadline
	// expires before the remote call completes.
	ErrNetworkTimeout = errors.New("flight search timed out")
	// ErrSearchInProgress is returned by Search while another search runs.
	ErrSearchInProgress = errors.New("a flight search is already in progress")
	// ErrFlightNotFound is returned by ToggleFavorite for an id that is not in
	// the published result set.
	ErrFlightNotFound = errors.New("flight not in current results")
)

// FlightSearcher is the interface satisfied by skypicker.SearchClient.
type FlightSearcher interface {
	Search(ctx context.Context, origin string, destinationCodes []string) (*flight.SearchResult, error)
}

// Discoverer is the interface satisfied by skypicker.LocationsClient.
type Discoverer interface {
	Discover(ctx context.Context, term string, limit int) ([]string, error)
}

// ImageResolver is the interface satisfied by cache.ImageCache.
type ImageResolver interface {
	ResolveImage(ctx context.Context, name string) string
}

// FlightCache is the persistent flight store.
type FlightCache interface {
	InsertIfAbsent(ctx context.Context, f flight.Flight) (bool, error)
	FavoriteIDs(ctx context.Context, ids []string) (map[string]bool, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
}

// Explorer is the interface satisfied by explore.Tracker.
type Explorer interface {
	RequestBatch(ctx context.Context, n int) ([]flight.City, error)
	MarkVisited(ctx context.Context, names []string) error
}

// AirportLookup resolves a city to its airport codes.
type AirportLookup interface {
	AirportCodesInCity(ctx context.Context, city, countryCode string) ([]string, error)
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Searcher   FlightSearcher
	Discoverer Discoverer
	Images     ImageResolver
	Flights    FlightCache
	Explorer   Explorer
	Airports   AirportLookup
	Metrics    *metrics.Metrics
}

// Config tunes a search. Zero values are replaced by defaults.
type Config struct {
	Origin           string
	Timeout          time.Duration
	BatchSize        int
	FallbackTerm     string
	FallbackLimit    int
	ImageConcurrency int
}

func (c Config) withDefaults() Config {
	if c.Origin == "" {
		c.Origin = "antalya_tr"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.FallbackTerm == "" {
		c.FallbackTerm = "spain"
	}
	if c.FallbackLimit <= 0 {
		c.FallbackLimit = 5
	}
	if c.ImageConcurrency <= 0 {
		c.ImageConcurrency = 4
	}
	return c
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock driving the search deadline.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithIDGenerator sets the function producing invocation ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// Orchestrator owns the search state machine and the published snapshot.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	clock   clockwork.Clock
	newID   func() string
	log     *slog.Logger
	metrics *metrics.Metrics

	state *store
	wg    sync.WaitGroup
}

// New constructs an Orchestrator in the Idle state.
func New(deps Deps, cfg Config, log *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:    deps,
		cfg:     cfg.withDefaults(),
		clock:   clockwork.NewRealClock(),
		newID:   uuid.NewString,
		log:     log,
		metrics: deps.Metrics,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	o.state = newStore(o.clock.Now())
	return o
}

// Snapshot returns the latest published state.
func (o *Orchestrator) Snapshot() Snapshot {
	return o.state.get()
}

// Subscribe streams every published snapshot. A slow subscriber skips
// intermediate snapshots but always receives the newest. The returned
// function unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	return o.state.subscribe(buffer)
}

// Wait blocks until the background search and pending favorite writes finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Refresh starts a search over unexplored destinations in the background. It
// returns false, and does nothing, when a search is already running.
func (o *Orchestrator) Refresh(ctx context.Context) bool {
	id := o.newID()
	if !o.state.begin(id, o.clock.Now()) {
		o.log.Info("refresh ignored, search in progress")
		return false
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(context.WithoutCancel(ctx), id, nil)
	}()
	return true
}

// Search runs a search for the given cities and returns the published
// snapshot. With no cities, or cities without airports, it explores like
// Refresh.
func (o *Orchestrator) Search(ctx context.Context, cities []flight.CityFilter) (Snapshot, error) {
	id := o.newID()
	if !o.state.begin(id, o.clock.Now()) {
		return o.state.get(), ErrSearchInProgress
	}
	return o.run(ctx, id, cities), nil
}

func (o *Orchestrator) run(ctx context.Context, id string, cities []flight.CityFilter) Snapshot {
	log := o.log.With("invocation_id", id)
	start := o.clock.Now()

	codes, err := o.destinations(ctx, log, cities)
	if err != nil {
		log.Error("selecting destinations failed", "err", err)
		return o.finish(id, Error, GenericError, nil, "error")
	}
	if len(codes) == 0 {
		log.Info("no destinations to search")
		return o.finish(id, NoResults, NoFlightsFound, nil, "no_results")
	}

	log.Info("searching flights", "origin", o.cfg.Origin, "destinations", len(codes))
	result, err := supervise(ctx, o.clock, o.cfg.Timeout, func(ctx context.Context) (*flight.SearchResult, error) {
		return o.deps.Searcher.Search(ctx, o.cfg.Origin, codes)
	})
	o.metrics.SearchDuration.Observe(o.clock.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrNetworkTimeout):
		log.Warn("flight search timed out", "timeout", o.cfg.Timeout)
		return o.finish(id, TimedOut, NetworkTimeout, nil, "timeout")
	case err != nil:
		log.Error("flight search failed", "err", err)
		return o.finish(id, Error, GenericError, nil, "error")
	case result == nil || len(result.Data) == 0:
		log.Info("flight search returned no flights")
		return o.finish(id, NoResults, NoFlightsFound, nil, "no_results")
	}

	// Post-search work outlives the caller's request.
	persistCtx := context.WithoutCancel(ctx)

	flights, readGen := o.enrich(persistCtx, log, result)
	o.cacheFlights(persistCtx, log, flights)

	visited := make([]string, 0, len(flights))
	for _, f := range flights {
		visited = append(visited, f.CityTo)
	}
	if err := o.deps.Explorer.MarkVisited(persistCtx, visited); err != nil {
		log.Error("marking destinations visited failed", "err", err)
	}

	snap, _ := o.state.publish(id, flight.NewResultSet(flights), result.SearchID, readGen, o.clock.Now())
	o.metrics.Searches.WithLabelValues("published").Inc()
	log.Info("flights published", "count", len(flights), "search_id", result.SearchID)
	return snap
}

func (o *Orchestrator) finish(id string, state State, status Status, results *flight.ResultSet, outcome string) Snapshot {
	snap, _ := o.state.finish(id, state, status, results, "", o.clock.Now())
	o.metrics.Searches.WithLabelValues(outcome).Inc()
	return snap
}

// destinations picks the codes to search: explicit cities first, then a batch
// of unexplored cities, then the discovery term.
func (o *Orchestrator) destinations(ctx context.Context, log *slog.Logger, cities []flight.CityFilter) ([]string, error) {
	if len(cities) > 0 {
		codes, err := o.codesFor(ctx, cities)
		if err != nil {
			return nil, err
		}
		if len(codes) > 0 {
			return codes, nil
		}
		log.Info("selected cities have no airports, exploring instead", "cities", len(cities))
	}

	batch, err := o.deps.Explorer.RequestBatch(ctx, o.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("requesting exploration batch: %w", err)
	}
	filters := make([]flight.CityFilter, 0, len(batch))
	for _, c := range batch {
		filters = append(filters, flight.CityFilter{City: c.Name, CountryCode: c.CountryCode})
	}
	codes, err := o.codesFor(ctx, filters)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		return codes, nil
	}

	log.Info("exploration exhausted, discovering by term", "term", o.cfg.FallbackTerm, "batch", len(batch))
	ids, err := o.deps.Discoverer.Discover(ctx, o.cfg.FallbackTerm, o.cfg.FallbackLimit)
	if err != nil {
		return nil, fmt.Errorf("discovering destinations: %w", err)
	}
	return ids, nil
}

func (o *Orchestrator) codesFor(ctx context.Context, cities []flight.CityFilter) ([]string, error) {
	var codes []string
	seen := make(map[string]bool)
	for _, c := range cities {
		found, err := o.deps.Airports.AirportCodesInCity(ctx, c.City, c.CountryCode)
		if err != nil {
			return nil, fmt.Errorf("resolving airports in %s: %w", c.City, err)
		}
		for _, code := range found {
			code = strings.TrimSpace(code)
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// enrich copies the result's flights, resolves an image for each destination
// concurrently, applies the search currency and takes favorite flags from the
// store. It returns the read generation of the favorites lookup.
func (o *Orchestrator) enrich(ctx context.Context, log *slog.Logger, result *flight.SearchResult) ([]flight.Flight, uint64) {
	flights := make([]flight.Flight, len(result.Data))
	copy(flights, result.Data)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ImageConcurrency)
	for i := range flights {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error("image resolution panicked", "city", flights[i].CityTo, "recover", r)
				}
			}()
			flights[i].ImageID = o.deps.Images.ResolveImage(gCtx, flights[i].CityTo)
			return nil
		})
	}
	_ = g.Wait()

	ids := make([]string, 0, len(flights))
	for i := range flights {
		if result.Currency != "" {
			flights[i].Currency = result.Currency
		}
		if flights[i].Currency == "" {
			flights[i].Currency = flight.DefaultCurrency
		}
		ids = append(ids, flights[i].ID)
	}

	readGen := o.state.beginRead()
	favorites, err := o.deps.Flights.FavoriteIDs(ctx, ids)
	if err != nil {
		log.Warn("reading stored favorites failed", "err", err)
		return flights, readGen
	}
	for i := range flights {
		flights[i].IsFavorite = favorites[flights[i].ID]
	}
	return flights, readGen
}

// cacheFlights writes each flight that is not cached yet. Rows are written one
// at a time; a failed row is logged and skipped.
func (o *Orchestrator) cacheFlights(ctx context.Context, log *slog.Logger, flights []flight.Flight) {
	inserted := 0
	for _, f := range flights {
		ok, err := o.deps.Flights.InsertIfAbsent(ctx, f)
		if err != nil {
			log.Error("caching flight failed", "flight_id", f.ID, "err", err)
			continue
		}
		if ok {
			inserted++
		}
	}
	o.metrics.FlightsCached.Add(float64(inserted))
	log.Debug("flights cached", "inserted", inserted, "total", len(flights))
}
