package orchestrator

import (
	"sync"
	"time"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

// State is the orchestrator's position in the search lifecycle.
type State int

const (
	Idle State = iota
	Searching
	Published
	NoResults
	Error
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Published:
		return "published"
	case NoResults:
		return "no_results"
	case Error:
		return "error"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the outcome reported to clients alongside the result set.
type Status int

const (
	NoError Status = iota
	NoFlightsFound
	GenericError
	NetworkTimeout
)

func (s Status) String() string {
	switch s {
	case NoError:
		return "NoError"
	case NoFlightsFound:
		return "NoFlightsFound"
	case GenericError:
		return "GenericError"
	case NetworkTimeout:
		return "NetworkTimeout"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is the published view of the orchestrator. Results is immutable and
// shared between snapshots; it is only ever replaced.
type Snapshot struct {
	State        State
	Status       Status
	Running      bool
	Results      *flight.ResultSet
	SearchID     string
	InvocationID string
	UpdatedAt    time.Time
}

// favoriteOverride is a toggled flag whose write may not be visible to a
// favorites read yet.
type favoriteOverride struct {
	favorite  bool
	seq       uint64
	settled   bool
	settledAt uint64
}

// store coordinates concurrent updates to the snapshot and fans each new
// snapshot out to subscribers.
type store struct {
	mu       sync.Mutex
	snapshot Snapshot
	subs     map[int]chan Snapshot
	nextSub  int

	overrides map[string]favoriteOverride
	seq       uint64
	reads     uint64
}

func newStore(now time.Time) *store {
	return &store{
		snapshot:  Snapshot{State: Idle, Status: NoError, UpdatedAt: now},
		subs:      make(map[int]chan Snapshot),
		overrides: make(map[string]favoriteOverride),
	}
}

func (s *store) get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// begin moves to Searching for invocation id. It returns false when a search
// is already running.
func (s *store) begin(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot.Running {
		return false
	}
	s.snapshot.State = Searching
	s.snapshot.Status = NoError
	s.snapshot.Running = true
	s.snapshot.InvocationID = id
	s.snapshot.UpdatedAt = now
	s.broadcast()
	return true
}

// finish publishes the outcome of invocation id and clears the running flag.
// Only the first finish for a running invocation is applied. A nil results
// keeps the previously published set.
func (s *store) finish(id string, state State, status Status, results *flight.ResultSet, searchID string, now time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(id, state, status, results, searchID, now)
}

// publish finishes invocation id as Published with results. Toggles whose
// write had not settled before the favorites read of generation readGen are
// applied on top of results.
func (s *store) publish(id string, results *flight.ResultSet, searchID string, readGen uint64, now time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.snapshot.Running || s.snapshot.InvocationID != id {
		return s.snapshot, false
	}
	for flightID, o := range s.overrides {
		if o.settled && o.settledAt < readGen {
			delete(s.overrides, flightID)
			continue
		}
		if next, ok := results.WithFavorite(flightID, o.favorite); ok {
			results = next
		}
	}
	return s.finishLocked(id, Published, NoError, results, searchID, now)
}

func (s *store) finishLocked(id string, state State, status Status, results *flight.ResultSet, searchID string, now time.Time) (Snapshot, bool) {
	if !s.snapshot.Running || s.snapshot.InvocationID != id {
		return s.snapshot, false
	}
	s.snapshot.State = state
	s.snapshot.Status = status
	s.snapshot.Running = false
	if results != nil {
		s.snapshot.Results = results
		s.snapshot.SearchID = searchID
	}
	s.snapshot.UpdatedAt = now
	s.broadcast()
	return s.snapshot, true
}

// toggle flips the favorite flag of flight id in the published set and returns
// the new flag with the sequence number of its pending write.
func (s *store) toggle(id string, now time.Time) (bool, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.snapshot.Results.Find(id)
	if !ok {
		return false, 0, false
	}
	favorite := !f.IsFavorite
	next, _ := s.snapshot.Results.WithFavorite(id, favorite)
	s.snapshot.Results = next
	s.snapshot.UpdatedAt = now

	s.seq++
	s.overrides[id] = favoriteOverride{favorite: favorite, seq: s.seq}
	s.broadcast()
	return favorite, s.seq, true
}

// settle records the end of the write for toggle seq of flight id. A persisted
// flag stays applied until a favorites read starts after this point; a failed
// one is dropped so the stored flag wins. Superseded toggles are ignored.
func (s *store) settle(id string, seq uint64, persisted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.overrides[id]
	if !ok || o.seq != seq {
		return
	}
	if !persisted {
		delete(s.overrides, id)
		return
	}
	o.settled = true
	o.settledAt = s.reads
	s.overrides[id] = o
}

// beginRead returns the generation of a favorites read about to start.
func (s *store) beginRead() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.reads
}

func (s *store) subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// broadcast must be called with mu held. A full subscriber loses its oldest
// pending snapshot so it always ends up with the newest one.
func (s *store) broadcast() {
	for _, ch := range s.subs {
		select {
		case ch <- s.snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.snapshot:
		default:
		}
	}
}
