// Package query keeps one paginated listing in sync with its filter store.
//
// Every fetch is tagged with a generation number. Only the response of the
// newest generation is applied; anything older is discarded when it lands,
// so observable state follows the order in which filters changed rather
// than the order in which responses arrive.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/deliverly/admin-console/internal/filters"
	"github.com/deliverly/admin-console/internal/shared"
)

// ErrClosed is returned by Await once the controller has been closed.
var ErrClosed = errors.New("query: controller closed")

// Status is the lifecycle state of a listing.
type Status int

const (
	// StatusIdle means nothing has been fetched yet.
	StatusIdle Status = iota
	// StatusLoading means a fetch for the current generation is in flight.
	StatusLoading
	// StatusSuccess means the current generation resolved.
	StatusSuccess
	// StatusError means the current generation failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Fetcher loads one page for the given filters.
type Fetcher[T any] func(ctx context.Context, state filters.State) (shared.Page[T], error)

// Snapshot is what the controller exposes to its views. Data keeps the last
// good page even while Status is Error.
type Snapshot[T any] struct {
	Data       *shared.Page[T]
	Status     Status
	Err        error
	Filters    filters.State
	Generation uint64
}

// Observer is told about responses dropped because they were superseded.
type Observer interface {
	StaleResponse(resource string)
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
	onError  func(error)
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver installs a stale-response observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithErrorHandler is called with every applied fetch error, e.g. to sign
// the admin out on unauthorized responses.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// Controller drives the Idle → Loading → Success|Error state machine for a
// single listing.
type Controller[T any] struct {
	name  string
	fetch Fetcher[T]
	store *filters.Store
	opts  options

	mu        sync.Mutex
	snap      Snapshot[T]
	version   uint64
	started   bool
	closed    bool
	baseCtx   context.Context
	stopBase  context.CancelFunc
	cancel    context.CancelFunc
	settled   chan struct{}
	unsub     func()
	listeners map[int]func(Snapshot[T])
	nextID    int
	// queue holds transitions not yet handed to listeners, in the order
	// they happened. One goroutine at a time drains it.
	queue      []Snapshot[T]
	delivering bool
}

// NewController wires fetch to store. Nothing is fetched until Start.
func NewController[T any](name string, store *filters.Store, fetch Fetcher[T], opts ...Option) *Controller[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	settled := make(chan struct{})
	close(settled)
	return &Controller[T]{
		name:      name,
		fetch:     fetch,
		store:     store,
		opts:      o,
		snap:      Snapshot[T]{Status: StatusIdle, Filters: store.Snapshot()},
		settled:   settled,
		listeners: make(map[int]func(Snapshot[T])),
	}
}

// Name returns the listing name.
func (c *Controller[T]) Name() string {
	return c.name
}

// Start subscribes to the filter store and issues the first fetch. Fetches
// run under ctx until it is cancelled or Close is called.
func (c *Controller[T]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.baseCtx, c.stopBase = context.WithCancel(ctx)
	c.mu.Unlock()

	unsub := c.store.Subscribe(c.onFilters)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsub = unsub
	if c.snap.Generation > 0 {
		// A filter change raced Subscribe and already started a fetch.
		c.mu.Unlock()
		return
	}
	state, version := c.store.Current()
	c.version = version
	c.beginLocked(state)
	c.mu.Unlock()
	c.deliver()
}

// Invalidate marks the current result stale and refetches with the
// current filters. It is a no-op before Start and after Close.
func (c *Controller[T]) Invalidate() {
	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return
	}
	state, version := c.store.Current()
	if version > c.version {
		c.version = version
	}
	c.beginLocked(state)
	c.mu.Unlock()
	c.deliver()
}

// Snapshot returns the current view state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Await blocks until the current generation settles, ctx is done, or the
// controller is closed. It returns the latest snapshot in every case.
func (c *Controller[T]) Await(ctx context.Context) (Snapshot[T], error) {
	for {
		c.mu.Lock()
		snap, ch, closed := c.snap, c.settled, c.closed
		c.mu.Unlock()
		if closed {
			return snap, ErrClosed
		}
		if snap.Status != StatusLoading {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Subscribe registers fn for every later state transition. Transitions
// are delivered one at a time, in order.
func (c *Controller[T]) Subscribe(fn func(Snapshot[T])) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops listening to filters, cancels the in-flight fetch and makes
// sure no later response is applied.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsub
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stopBase != nil {
		c.stopBase()
	}
	if c.snap.Status == StatusLoading {
		close(c.settled)
	}
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller[T]) onFilters(state filters.State, version uint64) {
	c.mu.Lock()
	if !c.started || c.closed || version <= c.version {
		c.mu.Unlock()
		return
	}
	c.version = version
	c.beginLocked(state)
	c.mu.Unlock()
	c.deliver()
}

// beginLocked starts a new generation. The caller holds c.mu and calls
// deliver after unlocking.
func (c *Controller[T]) beginLocked(state filters.State) {
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	if c.snap.Status != StatusLoading {
		c.settled = make(chan struct{})
	}
	c.snap.Generation++
	c.snap.Status = StatusLoading
	c.snap.Filters = state
	gen := c.snap.Generation
	c.enqueueLocked(c.snap)
	go c.run(ctx, cancel, gen, state)
}

func (c *Controller[T]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, state filters.State) {
	defer cancel()
	page, err := c.fetch(ctx, state)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if gen != c.snap.Generation {
		c.mu.Unlock()
		c.opts.logger.Debug("discarding stale list response",
			slog.String("resource", c.name),
			slog.Uint64("generation", gen))
		if c.opts.observer != nil {
			c.opts.observer.StaleResponse(c.name)
		}
		return
	}
	c.cancel = nil
	if err != nil {
		c.snap.Status = StatusError
		c.snap.Err = err
	} else {
		c.snap.Status = StatusSuccess
		c.snap.Err = nil
		c.snap.Data = &page
	}
	close(c.settled)
	c.enqueueLocked(c.snap)
	c.mu.Unlock()

	if err != nil {
		c.opts.logger.Warn("list fetch failed", slog.String("resource", c.name), slog.Any("error", err))
		if c.opts.onError != nil {
			c.opts.onError(err)
		}
	}
	c.deliver()
}

func (c *Controller[T]) enqueueLocked(snap Snapshot[T]) {
	if len(c.listeners) > 0 {
		c.queue = append(c.queue, snap)
	}
}

// deliver hands queued transitions to the listeners. Listeners never run
// concurrently and always see transitions in the order they happened; a
// listener may call back into the controller.
func (c *Controller[T]) deliver() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.queue) > 0 {
		snap := c.queue[0]
		c.queue = c.queue[1:]
		listeners := make([]func(Snapshot[T]), 0, len(c.listeners))
		for _, l := range c.listeners {
			listeners = append(listeners, l)
		}
		c.mu.Unlock()
		for _, l := range listeners {
			l(snap)
		}
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}
