// Package mutation executes create, update and action calls against the
// marketplace API and refreshes the listings they affect.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/shared"
)

// ErrInFlight is returned when a mutation for the same key is still pending.
var ErrInFlight = errors.New("mutation already in flight")

// ErrUnknownResource is returned when no executor is registered for a request.
var ErrUnknownResource = errors.New("mutation: unknown resource")

// NotifyKind is the flavour of a user-facing notification.
type NotifyKind string

const (
	// NotifySuccess reports a completed mutation.
	NotifySuccess NotifyKind = "success"
	// NotifyError reports a network or server failure.
	NotifyError NotifyKind = "error"
)

// NotifyFunc delivers a message to the notification surface.
type NotifyFunc func(kind NotifyKind, message string)

// CurrentUserFunc returns the signed-in admin, or false when nobody is.
type CurrentUserFunc func() (shared.AdminUser, bool)

// Observer records mutation outcomes.
type Observer interface {
	Mutation(resource, action, outcome string)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithNotifier installs the notification callback.
func WithNotifier(fn NotifyFunc) Option {
	return func(d *Dispatcher) { d.notify = fn }
}

// WithUnauthorizedHandler installs the sign-out callback.
func WithUnauthorizedHandler(fn func(error)) Option {
	return func(d *Dispatcher) { d.onUnauthorized = fn }
}

// WithObserver installs a metrics observer.
func WithObserver(obs Observer) Option {
	return func(d *Dispatcher) { d.observer = obs }
}

// Dispatcher runs mutations with at most one pending call per key.
type Dispatcher struct {
	currentUser    CurrentUserFunc
	logger         *slog.Logger
	notify         NotifyFunc
	onUnauthorized func(error)
	observer       Observer

	mu           sync.Mutex
	executors    map[string]Executor
	inFlight     map[string]struct{}
	invalidators map[string]map[int]func()
	nextID       int
}

// NewDispatcher constructs a dispatcher. currentUser supplies attribution.
func NewDispatcher(currentUser CurrentUserFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		currentUser:  currentUser,
		executors:    make(map[string]Executor),
		inFlight:     make(map[string]struct{}),
		invalidators: make(map[string]map[int]func()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Register binds the executor used for requests naming resource.
func (d *Dispatcher) Register(resource string, exec Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[resource] = exec
}

// Watch registers fn to run after every successful mutation that
// invalidates resource. The returned func removes it.
func (d *Dispatcher) Watch(resource string, fn func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	if d.invalidators[resource] == nil {
		d.invalidators[resource] = make(map[int]func())
	}
	d.invalidators[resource][id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.invalidators[resource], id)
	}
}

// Pending reports whether a mutation for key is in flight.
func (d *Dispatcher) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[key]
	return ok
}

// Execute runs req. A second call with the same key while the first is
// pending fails with ErrInFlight without touching the network. Failures
// leave every listing untouched.
func (d *Dispatcher) Execute(ctx context.Context, key string, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	d.mu.Lock()
	exec, ok := d.executors[req.Resource]
	if !ok {
		d.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownResource, req.Resource)
	}
	if _, busy := d.inFlight[key]; busy {
		d.mu.Unlock()
		return Result{}, ErrInFlight
	}
	d.inFlight[key] = struct{}{}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
	}()

	user, signedIn := shared.AdminUser{}, false
	if d.currentUser != nil {
		user, signedIn = d.currentUser()
	}
	if !signedIn {
		err := &apiclient.Error{Kind: apiclient.KindUnauthorized, Message: shared.ErrNotSignedIn.Error()}
		d.fail(req, err)
		return Result{}, err
	}
	attribute(req.Payload, user)

	if apiclient.IdempotencyKeyFromContext(ctx) == "" {
		ctx = apiclient.WithIdempotencyKey(ctx, uuid.NewString())
	}

	result, err := exec.Execute(ctx, req)
	if err != nil {
		d.fail(req, err)
		return Result{}, err
	}

	d.observe(req, "success")
	d.logger.Info("mutation applied",
		slog.String("resource", req.Resource),
		slog.String("action", req.label()),
		slog.String("id", req.ResourceID),
		slog.String("admin_id", user.ID))
	d.invalidate(req.invalidates())
	if d.notify != nil {
		d.notify(NotifySuccess, req.successMessage())
	}
	return result, nil
}

func (d *Dispatcher) fail(req Request, err error) {
	kind := apiclient.KindOf(err)
	outcome := string(kind)
	if outcome == "" {
		outcome = "error"
	}
	d.observe(req, outcome)
	switch kind {
	case apiclient.KindValidation:
		// Rendered inline by the form.
	case apiclient.KindUnauthorized:
		d.logger.Warn("mutation rejected, signing out",
			slog.String("resource", req.Resource), slog.Any("error", err))
		if d.onUnauthorized != nil {
			d.onUnauthorized(err)
		}
	default:
		d.logger.Error("mutation failed",
			slog.String("resource", req.Resource),
			slog.String("action", req.label()),
			slog.Any("error", err))
		if d.notify != nil {
			d.notify(NotifyError, failureMessage(err))
		}
	}
}

func (d *Dispatcher) invalidate(resources []string) {
	var fns []func()
	d.mu.Lock()
	for _, res := range resources {
		for _, fn := range d.invalidators[res] {
			fns = append(fns, fn)
		}
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (d *Dispatcher) observe(req Request, outcome string) {
	if d.observer != nil {
		d.observer.Mutation(req.Resource, req.label(), outcome)
	}
}

func failureMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case apiclient.KindNetwork:
			return "Could not reach the server: " + apiErr.Message
		case apiclient.KindServer:
			return "The server could not complete the request. Please try again."
		}
	}
	return "Something went wrong: " + err.Error()
}
