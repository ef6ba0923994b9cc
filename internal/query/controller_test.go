package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverly/admin-console/internal/filters"
	"github.com/deliverly/admin-console/internal/shared"
)

type vendor struct {
	ID     string
	Status string
}

type pendingCall struct {
	state filters.State
	reply chan result
}

type result struct {
	page shared.Page[vendor]
	err  error
}

// scriptedFetcher parks every call until the test resolves it, ignoring
// cancellation so responses can be delivered in any order.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls []*pendingCall
	added chan struct{}
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{added: make(chan struct{}, 64)}
}

func (f *scriptedFetcher) fetch(ctx context.Context, state filters.State) (shared.Page[vendor], error) {
	call := &pendingCall{state: state, reply: make(chan result, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	f.added <- struct{}{}
	r := <-call.reply
	return r.page, r.err
}

func (f *scriptedFetcher) waitCalls(t *testing.T, n int) []*pendingCall {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		if len(f.calls) >= n {
			out := append([]*pendingCall(nil), f.calls...)
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		select {
		case <-f.added:
		case <-deadline:
			t.Fatalf("expected %d fetches", n)
		}
	}
}

// find returns the call issued for the given status filter. Fetches start
// on their own goroutines, so arrival order is not deterministic.
func find(t *testing.T, calls []*pendingCall, status string) *pendingCall {
	t.Helper()
	for _, c := range calls {
		if c.state.Values["status"] == status {
			return c
		}
	}
	t.Fatalf("no fetch for status %q", status)
	return nil
}

func (f *scriptedFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type staleCounter struct {
	mu    sync.Mutex
	count int
}

func (s *staleCounter) StaleResponse(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
}

func (s *staleCounter) get() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func pageOf(status string, n, total int) shared.Page[vendor] {
	items := make([]vendor, n)
	for i := range items {
		items[i] = vendor{ID: status + "-" + string(rune('a'+i)), Status: status}
	}
	return shared.Page[vendor]{Items: items, TotalCount: total, PageNumber: 1, PageSize: 10}
}

func awaitSettled(t *testing.T, c *Controller[vendor]) Snapshot[vendor] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := c.Await(ctx)
	require.NoError(t, err)
	return snap
}

func TestInitialFetchTransitions(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10, Values: map[string]string{"status": "Pending"}})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)
	defer c.Close()

	assert.Equal(t, StatusIdle, c.Snapshot().Status)

	c.Start(context.Background())
	assert.Equal(t, StatusLoading, c.Snapshot().Status)

	calls := f.waitCalls(t, 1)
	calls[0].reply <- result{page: pageOf("Pending", 10, 47)}

	snap := awaitSettled(t, c)
	assert.Equal(t, StatusSuccess, snap.Status)
	require.NotNil(t, snap.Data)
	assert.Len(t, snap.Data.Items, 10)
	assert.Equal(t, 47, snap.Data.TotalCount)
}

func TestFilterChangeIssuesNewFetchWithResetPage(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10, Values: map[string]string{"status": "Pending"}})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)
	defer c.Close()
	c.Start(context.Background())
	f.waitCalls(t, 1)[0].reply <- result{page: pageOf("Pending", 10, 47)}
	awaitSettled(t, c)

	store.SetFilter("status", "Approved")

	calls := f.waitCalls(t, 2)
	assert.Equal(t, filters.State{Page: 1, PageSize: 10, Values: map[string]string{"status": "Approved"}}, calls[1].state)
	assert.Equal(t, StatusLoading, c.Snapshot().Status)
	calls[1].reply <- result{page: pageOf("Approved", 3, 3)}
	snap := awaitSettled(t, c)
	assert.Equal(t, "Approved", snap.Data.Items[0].Status)
}

func TestLastRequestWinsWhenResponsesArriveOutOfOrder(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	stale := &staleCounter{}
	c := NewController("vendors", store, f.fetch, WithObserver(stale))
	defer c.Close()
	c.Start(context.Background())
	f.waitCalls(t, 1)[0].reply <- result{page: pageOf("All", 2, 2)}
	awaitSettled(t, c)

	store.SetFilter("status", "A")
	store.SetFilter("status", "B")
	calls := f.waitCalls(t, 3)
	callA, callB := find(t, calls, "A"), find(t, calls, "B")

	// B resolves first, then the stale A.
	callB.reply <- result{page: pageOf("B", 1, 1)}
	snap := awaitSettled(t, c)
	require.Equal(t, "B", snap.Data.Items[0].Status)

	callA.reply <- result{page: pageOf("A", 5, 5)}
	require.Eventually(t, func() bool { return stale.get() == 1 }, time.Second, 5*time.Millisecond)

	snap = c.Snapshot()
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "B", snap.Data.Items[0].Status)
	assert.Equal(t, "B", snap.Filters.Values["status"])
}

func TestStaleResponseWhileNewerStillLoading(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)
	defer c.Close()
	c.Start(context.Background())

	store.SetFilter("status", "B")
	calls := f.waitCalls(t, 2)

	find(t, calls, "").reply <- result{page: pageOf("initial", 1, 1)}
	time.Sleep(20 * time.Millisecond)
	snap := c.Snapshot()
	assert.Equal(t, StatusLoading, snap.Status, "stale response must not settle a newer generation")
	assert.Nil(t, snap.Data)

	find(t, calls, "B").reply <- result{page: pageOf("B", 1, 1)}
	snap = awaitSettled(t, c)
	assert.Equal(t, "B", snap.Data.Items[0].Status)
}

func TestFailedRefetchKeepsLastGoodData(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	var handled []error
	var mu sync.Mutex
	c := NewController("vendors", store, f.fetch, WithErrorHandler(func(err error) {
		mu.Lock()
		handled = append(handled, err)
		mu.Unlock()
	}))
	defer c.Close()
	c.Start(context.Background())
	good := pageOf("Pending", 4, 4)
	f.waitCalls(t, 1)[0].reply <- result{page: good}
	first := awaitSettled(t, c)

	boom := errors.New("upstream down")
	c.Invalidate()
	f.waitCalls(t, 2)[1].reply <- result{err: boom}

	snap := awaitSettled(t, c)
	assert.Equal(t, StatusError, snap.Status)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Same(t, first.Data, snap.Data)
	assert.Equal(t, good, *snap.Data)

	mu.Lock()
	assert.Equal(t, []error{boom}, handled)
	mu.Unlock()

	// Recovery clears the error.
	c.Invalidate()
	f.waitCalls(t, 3)[2].reply <- result{page: pageOf("Pending", 2, 2)}
	snap = awaitSettled(t, c)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.NoError(t, snap.Err)
	assert.Len(t, snap.Data.Items, 2)
}

func TestInvalidateBeforeStartAndAfterCloseIsNoop(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)

	c.Invalidate()
	assert.Equal(t, 0, f.count())

	c.Start(context.Background())
	f.waitCalls(t, 1)[0].reply <- result{page: pageOf("x", 1, 1)}
	awaitSettled(t, c)

	c.Close()
	c.Invalidate()
	store.SetFilter("status", "Approved")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.count())
}

func TestCloseDiscardsInFlightResponse(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)
	c.Start(context.Background())
	calls := f.waitCalls(t, 1)

	var notified int
	var mu sync.Mutex
	c.Subscribe(func(Snapshot[vendor]) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	c.Close()
	_, err := c.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	calls[0].reply <- result{page: pageOf("late", 1, 1)}
	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, c.Snapshot().Data)
	mu.Lock()
	assert.Equal(t, 0, notified)
	mu.Unlock()
}

func TestFetchContextCancelledWhenSuperseded(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	cancelled := make(chan filters.State, 4)
	fetch := func(ctx context.Context, state filters.State) (shared.Page[vendor], error) {
		if state.Values["status"] == "" {
			<-ctx.Done()
			cancelled <- state
			return shared.Page[vendor]{}, ctx.Err()
		}
		return pageOf(state.Values["status"], 1, 1), nil
	}
	c := NewController("vendors", store, fetch)
	defer c.Close()
	c.Start(context.Background())
	store.SetFilter("status", "Approved")

	select {
	case st := <-cancelled:
		assert.Empty(t, st.Values)
	case <-time.After(time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	snap := awaitSettled(t, c)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, "Approved", snap.Data.Items[0].Status)
}

func TestSubscribersSeeTransitions(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)
	defer c.Close()

	var mu sync.Mutex
	var statuses []Status
	c.Subscribe(func(s Snapshot[vendor]) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})
	c.Start(context.Background())
	f.waitCalls(t, 1)[0].reply <- result{page: pageOf("x", 1, 1)}
	awaitSettled(t, c)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, statuses)
	mu.Unlock()
}

func TestListenersRunOneAtATimeInTransitionOrder(t *testing.T) {
	fetch := func(context.Context, filters.State) (shared.Page[vendor], error) {
		return pageOf("x", 1, 1), nil
	}
	for range 100 {
		store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
		c := NewController("vendors", store, fetch)

		var mu sync.Mutex
		var statuses []Status
		var active, overlaps atomic.Int32
		c.Subscribe(func(s Snapshot[vendor]) {
			if active.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer active.Add(-1)
			if s.Status == StatusLoading {
				time.Sleep(200 * time.Microsecond)
			}
			mu.Lock()
			statuses = append(statuses, s.Status)
			mu.Unlock()
		})
		c.Start(context.Background())
		awaitSettled(t, c)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(statuses) == 2
		}, time.Second, time.Millisecond)
		mu.Lock()
		require.Equal(t, []Status{StatusLoading, StatusSuccess}, statuses)
		mu.Unlock()
		require.Zero(t, overlaps.Load())
		c.Close()
	}
}

func TestListenerMayInvalidate(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	var fetches atomic.Int32
	c := NewController("vendors", store, func(context.Context, filters.State) (shared.Page[vendor], error) {
		fetches.Add(1)
		return pageOf("x", 1, 1), nil
	})
	defer c.Close()

	var once sync.Once
	c.Subscribe(func(s Snapshot[vendor]) {
		if s.Status == StatusSuccess {
			once.Do(c.Invalidate)
		}
	})
	c.Start(context.Background())

	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return fetches.Load() == 2 && snap.Generation == 2 && snap.Status == StatusSuccess
	}, time.Second, time.Millisecond)
}

func TestAwaitHonoursContext(t *testing.T) {
	store := filters.NewStore(filters.State{Page: 1, PageSize: 10})
	f := newScriptedFetcher()
	c := NewController("vendors", store, f.fetch)
	defer c.Close()
	c.Start(context.Background())
	f.waitCalls(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	snap, err := c.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusLoading, snap.Status)
}

func TestStatusText(t *testing.T) {
	for status, want := range map[Status]string{
		StatusIdle: "idle", StatusLoading: "loading", StatusSuccess: "success", StatusError: "error",
	} {
		text, err := status.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(text))
	}
}
