package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/flight-explorer/internal/flight"
)

func TestSupervise_SearchWins(t *testing.T) {
	clock := clockwork.NewFakeClock()

	v, err := supervise(context.Background(), clock, 15*time.Second, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSupervise_SearchErrorPassesThrough(t *testing.T) {
	clock := clockwork.NewFakeClock()
	boom := errors.New("boom")

	_, err := supervise(context.Background(), clock, 15*time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNetworkTimeout)
}

func TestSupervise_TimerWinsCancelsSearch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	canceled := make(chan error, 1)

	done := make(chan error, 1)
	go func() {
		_, err := supervise(context.Background(), clock, 15*time.Second, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			canceled <- ctx.Err()
			return 42, nil
		})
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(15 * time.Second)

	assert.ErrorIs(t, <-done, ErrNetworkTimeout)
	assert.ErrorIs(t, <-canceled, context.Canceled)
}

func TestSupervise_RecoversPanic(t *testing.T) {
	clock := clockwork.NewFakeClock()

	_, err := supervise(context.Background(), clock, time.Second, func(context.Context) (int, error) {
		panic("bad response")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search panicked")
}

func TestStore_BeginRejectsWhileRunning(t *testing.T) {
	s := newStore(time.Now())

	assert.True(t, s.begin("a", time.Now()))
	assert.False(t, s.begin("b", time.Now()))
	assert.Equal(t, "a", s.get().InvocationID)
}

func TestStore_FinishAppliesOnce(t *testing.T) {
	s := newStore(time.Now())
	require.True(t, s.begin("a", time.Now()))

	_, ok := s.finish("a", TimedOut, NetworkTimeout, nil, "", time.Now())
	assert.True(t, ok)

	_, ok = s.finish("a", Published, NoError, flight.NewResultSet([]flight.Flight{{ID: "F1"}}), "s", time.Now())
	assert.False(t, ok, "a late result must not be published after a timeout")

	snap := s.get()
	assert.Equal(t, TimedOut, snap.State)
	assert.Nil(t, snap.Results)
}

func TestStore_FinishIgnoresOtherInvocation(t *testing.T) {
	s := newStore(time.Now())
	require.True(t, s.begin("a", time.Now()))

	_, ok := s.finish("b", Published, NoError, nil, "", time.Now())
	assert.False(t, ok)
	assert.True(t, s.get().Running)
}

func TestStore_SlowSubscriberGetsNewest(t *testing.T) {
	s := newStore(time.Now())
	ch, unsubscribe := s.subscribe(1)

	require.True(t, s.begin("a", time.Now()))
	_, ok := s.finish("a", NoResults, NoFlightsFound, nil, "", time.Now())
	require.True(t, ok)

	got := <-ch
	assert.Equal(t, NoResults, got.State)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestStore_ToggleUnknown(t *testing.T) {
	s := newStore(time.Now())

	_, _, ok := s.toggle("F1", time.Now())
	assert.False(t, ok)
}

// publishedStore returns a store with F1 published as not favorite.
func publishedStore(t *testing.T) *store {
	t.Helper()
	s := newStore(time.Now())
	require.True(t, s.begin("a", time.Now()))
	_, ok := s.finish("a", Published, NoError, flight.NewResultSet([]flight.Flight{{ID: "F1"}}), "s", time.Now())
	require.True(t, ok)
	return s
}

func TestStore_PublishKeepsUnsettledToggle(t *testing.T) {
	s := publishedStore(t)
	favorite, _, ok := s.toggle("F1", time.Now())
	require.True(t, ok)
	require.True(t, favorite)

	require.True(t, s.begin("b", time.Now()))
	gen := s.beginRead()
	snap, ok := s.publish("b", flight.NewResultSet([]flight.Flight{{ID: "F1"}}), "s2", gen, time.Now())
	require.True(t, ok)

	f, _ := snap.Results.Find("F1")
	assert.True(t, f.IsFavorite, "the pending toggle wins over a stale read")
}

func TestStore_PublishKeepsToggleSettledAfterRead(t *testing.T) {
	s := publishedStore(t)
	_, seq, _ := s.toggle("F1", time.Now())

	require.True(t, s.begin("b", time.Now()))
	gen := s.beginRead()
	s.settle("F1", seq, true)
	snap, _ := s.publish("b", flight.NewResultSet([]flight.Flight{{ID: "F1"}}), "s2", gen, time.Now())

	f, _ := snap.Results.Find("F1")
	assert.True(t, f.IsFavorite)
	assert.Contains(t, s.overrides, "F1")
}

func TestStore_PublishDropsToggleSettledBeforeRead(t *testing.T) {
	s := publishedStore(t)
	_, seq, _ := s.toggle("F1", time.Now())
	s.settle("F1", seq, true)

	require.True(t, s.begin("b", time.Now()))
	gen := s.beginRead()
	snap, _ := s.publish("b", flight.NewResultSet([]flight.Flight{{ID: "F1"}}), "s2", gen, time.Now())

	f, _ := snap.Results.Find("F1")
	assert.False(t, f.IsFavorite, "a read after the write is authoritative")
	assert.NotContains(t, s.overrides, "F1")
}

func TestStore_SettleFailedOrSupersededToggle(t *testing.T) {
	s := publishedStore(t)
	_, first, _ := s.toggle("F1", time.Now())
	_, second, _ := s.toggle("F1", time.Now())

	s.settle("F1", first, true)
	assert.False(t, s.overrides["F1"].settled, "a superseded write does not settle the newer toggle")

	s.settle("F1", second, false)
	assert.NotContains(t, s.overrides, "F1")
}
