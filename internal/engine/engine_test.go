package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trappiz/tesla-order-status/internal/store"
	"github.com/trappiz/tesla-order-status/internal/testutil"
	"github.com/trappiz/tesla-order-status/internal/tree"
)

// fakeFetcher serves canned order lists and detail trees and counts detail
// fetches per reference.
type fakeFetcher struct {
	orders     []Order
	details    map[string]tree.Node
	detailErr  map[string]error
	listErr    error
	detailHits map[string]int
}

func (f *fakeFetcher) List(_ context.Context, _ string) ([]Order, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orders, nil
}

func (f *fakeFetcher) Details(_ context.Context, _, reference string) (tree.Node, error) {
	if f.detailHits == nil {
		f.detailHits = make(map[string]int)
	}
	f.detailHits[reference]++
	if err := f.detailErr[reference]; err != nil {
		return nil, err
	}
	node, ok := f.details[reference]
	if !ok {
		return nil, NewNotFoundError(reference)
	}
	return node, nil
}

// fakeTokens hands out a fixed record without ever refreshing.
type fakeTokens struct {
	loadErr   error
	ensureErr error
}

func (f *fakeTokens) Load(_ context.Context) (store.TokenRecord, error) {
	if f.loadErr != nil {
		return store.TokenRecord{}, f.loadErr
	}
	return store.TokenRecord{AccessToken: "tok"}, nil
}

func (f *fakeTokens) EnsureValid(_ context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	if f.ensureErr != nil {
		return store.TokenRecord{}, f.ensureErr
	}
	return rec, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func orderSummary(ref, status string) Order {
	return Order{
		Reference: ref,
		Summary:   tree.Object{"referenceNumber": tree.String(ref), "orderStatus": tree.String(status)},
	}
}

func details(vin tree.Node) tree.Node {
	return tree.Object{
		"tasks": tree.Object{
			"scheduling": tree.Object{"vin": vin},
		},
	}
}

func newTestEngine(t *testing.T, f *fakeFetcher, clock *testutil.Clock) (*Engine, *store.Store) {
	t.Helper()
	st := openStore(t)
	e := New(st, f, &fakeTokens{}, Config{Clock: clock})
	return e, st
}

func TestFirstSeenStoresSnapshotWithoutHistory(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, st := newTestEngine(t, f, clock)

	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.FirstSeen)
	assert.Equal(t, CodeNoChange, res.Code)
	assert.Empty(t, res.Changes)

	snap, err := st.LoadSnapshot(context.Background(), "RN100")
	require.NoError(t, err)
	assert.True(t, tree.Equal(res.Snapshot.Body, snap.Body))

	history, err := st.History(context.Background(), "RN100")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChangeDetectedAndPersisted(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, st := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	// VIN assigned on the next poll after the TTL window.
	clock.Advance(2 * time.Minute)
	f.details["RN100"] = details(tree.String("LRW3E7EK"))

	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, CodeChanged, res.Code)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "details.tasks.scheduling.vin", res.Changes[0].Path.String())

	history, err := st.History(context.Background(), "RN100")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].Seq)
	require.Len(t, history[0].Changes, 1)
}

func TestTTLReusesCacheInsideWindow(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, _ := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, f.detailHits["RN100"])

	// 59 seconds later: still inside the window, no fetch, pending.
	clock.Advance(59 * time.Second)
	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Throttled)
	assert.Equal(t, CodePending, results[0].Code)
	assert.Equal(t, 1, f.detailHits["RN100"])

	// 61 seconds after the first fetch: window elapsed, fresh fetch.
	clock.Advance(2 * time.Second)
	results, err = e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, results[0].Throttled)
	assert.Equal(t, CodeNoChange, results[0].Code)
	assert.Equal(t, 2, f.detailHits["RN100"])
}

func TestUnchangedPollRestartsWindow(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, st := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	_, err = e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	snap, err := st.LoadSnapshot(context.Background(), "RN100")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), snap.FetchedAt.UTC())

	// No change batch was written for the identical tree.
	history, err := st.History(context.Background(), "RN100")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestBypassCacheFetchesInsideWindow(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, _ := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	clock.Advance(time.Second)
	results, err := e.CheckAll(context.Background(), Options{BypassCache: true})
	require.NoError(t, err)
	assert.False(t, results[0].Throttled)
	assert.Equal(t, 2, f.detailHits["RN100"])
}

func TestPerReferenceFailureIsolation(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders: []Order{orderSummary("RN-A", "BOOKED"), orderSummary("RN-B", "BOOKED")},
		details: map[string]tree.Node{
			"RN-B": details(tree.Null{}),
		},
		detailErr: map[string]error{
			"RN-A": NewTransientError("gateway down", nil),
		},
	}
	e, st := newTestEngine(t, f, clock)

	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "RN-A", results[0].Reference)
	assert.Equal(t, CodeError, results[0].Code)
	assert.True(t, IsTransient(results[0].Err))

	assert.Equal(t, "RN-B", results[1].Reference)
	assert.Equal(t, CodeNoChange, results[1].Code)

	// The failed reference left no snapshot, the healthy one persisted.
	_, err = st.LoadSnapshot(context.Background(), "RN-A")
	assert.True(t, errors.Is(err, store.ErrNoSnapshot))
	_, err = st.LoadSnapshot(context.Background(), "RN-B")
	assert.NoError(t, err)
}

func TestFetchFailureLeavesCacheUntouched(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, st := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	first, err := st.LoadSnapshot(context.Background(), "RN100")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	f.detailErr = map[string]error{"RN100": NewTransientError("gateway down", nil)}

	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, CodeError, results[0].Code)

	after, err := st.LoadSnapshot(context.Background(), "RN100")
	require.NoError(t, err)
	assert.Equal(t, first.FetchedAt, after.FetchedAt)
}

func TestRunLevelErrors(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	t.Run("missing credentials", func(t *testing.T) {
		st := openStore(t)
		e := New(st, &fakeFetcher{}, &fakeTokens{loadErr: NewMissingCredentials()}, Config{Clock: clock})

		_, err := e.CheckAll(context.Background(), Options{})
		require.Error(t, err)
		assert.True(t, IsMissingCredentials(err))
	})

	t.Run("refresh failure", func(t *testing.T) {
		st := openStore(t)
		e := New(st, &fakeFetcher{}, &fakeTokens{ensureErr: NewAuthError("refresh failed", nil)}, Config{Clock: clock})

		_, err := e.CheckAll(context.Background(), Options{})
		require.Error(t, err)
		assert.True(t, IsAuthError(err))
	})

	t.Run("list failure", func(t *testing.T) {
		st := openStore(t)
		f := &fakeFetcher{listErr: NewTransientError("gateway down", nil)}
		e := New(st, f, &fakeTokens{}, Config{Clock: clock})

		_, err := e.CheckAll(context.Background(), Options{})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})
}

func TestForceCachedServesSnapshots(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, _ := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	results, err := e.CheckAll(context.Background(), Options{ForceCached: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, CodeNoChange, results[0].Code)
	assert.Equal(t, 1, f.detailHits["RN100"], "cached mode must not fetch")
}

func TestForceCachedEmptyStoreIsCacheMiss(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	e, _ := newTestEngine(t, &fakeFetcher{}, clock)

	_, err := e.CheckAll(context.Background(), Options{ForceCached: true})
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestForceCachedUnknownFilterReported(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": details(tree.Null{})},
	}
	e, _ := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	results, err := e.CheckAll(context.Background(), Options{ForceCached: true, OrderFilter: "RN999"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "RN999", results[1].Reference)
	assert.True(t, IsCacheMiss(results[1].Err))
	assert.Equal(t, CodeError, results[1].Code)
}

func TestIgnoredPrefixesStillRecorded(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	base := tree.Object{
		"tasks": tree.Object{
			"scheduling": tree.Object{
				"vin":          tree.Null{},
				"translations": tree.Object{"title": tree.String("Zeitplanung")},
			},
		},
	}
	f := &fakeFetcher{
		orders:  []Order{orderSummary("RN100", "BOOKED")},
		details: map[string]tree.Node{"RN100": base},
	}
	e, st := newTestEngine(t, f, clock)

	_, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	translated := tree.Object{
		"tasks": tree.Object{
			"scheduling": tree.Object{
				"vin":          tree.Null{},
				"translations": tree.Object{"title": tree.String("Scheduling")},
			},
		},
	}
	f.details["RN100"] = translated

	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Translation churn never flips the code, but the batch is persisted.
	assert.Equal(t, CodeNoChange, results[0].Code)
	require.Len(t, results[0].Changes, 1)

	history, err := st.History(context.Background(), "RN100")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestResultsSortedByReference(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		orders: []Order{orderSummary("RN-C", "BOOKED"), orderSummary("RN-A", "BOOKED"), orderSummary("RN-B", "BOOKED")},
		details: map[string]tree.Node{
			"RN-A": details(tree.Null{}),
			"RN-B": details(tree.Null{}),
			"RN-C": details(tree.Null{}),
		},
	}
	e, _ := newTestEngine(t, f, clock)

	results, err := e.CheckAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "RN-A", results[0].Reference)
	assert.Equal(t, "RN-B", results[1].Reference)
	assert.Equal(t, "RN-C", results[2].Reference)
}
