// Package console serves the admin resource manager to the browser shell.
// Every signed-in session owns one Workspace holding a panel per managed
// resource; each panel keeps its filters, its listing and its modal in sync.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/marketplace"
	"github.com/deliverly/admin-console/internal/mutation"
	"github.com/deliverly/admin-console/internal/observability"
	"github.com/deliverly/admin-console/internal/shared"
)

// ErrUnknownResource is returned for resource names without a panel.
var ErrUnknownResource = errors.New("console: unknown resource")

// Settings are the knobs shared by every workspace.
type Settings struct {
	SearchDelay     time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

// Notification is a message produced by a mutation for the toast surface.
type Notification struct {
	Kind    mutation.NotifyKind `json:"kind"`
	Message string              `json:"message"`
	At      time.Time           `json:"at"`
}

// Workspace is the console state of one admin session.
type Workspace struct {
	sessionID  string
	admin      shared.AdminUser
	logger     *slog.Logger
	dispatcher *mutation.Dispatcher
	panels     map[string]Panel
	order      []string
	ctx        context.Context
	cancel     context.CancelFunc

	mu        sync.Mutex
	signedOut bool
	inbox     []Notification
	bulkSeen  map[string]bool
	// bulkQueued maps a resource to its unfinished queued bulk job. An
	// empty id means the job is being enqueued.
	bulkQueued map[string]string
}

// NewWorkspace builds a panel for every marketplace resource. api is the
// service client; calls are made with the admin's bearer token.
func NewWorkspace(sessionID string, admin shared.AdminUser, token string, api *apiclient.Client, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	ws := &Workspace{
		sessionID: sessionID,
		admin:     admin,
		logger:    logger.With(slog.String("session", shortID(sessionID)), slog.String("admin_id", admin.ID)),
		panels:    make(map[string]Panel),
		ctx:       ctx,
		cancel:    cancel,
		bulkSeen:  make(map[string]bool),

		bulkQueued: make(map[string]string),
	}
	ws.dispatcher = mutation.NewDispatcher(ws.currentUser,
		mutation.WithLogger(ws.logger),
		mutation.WithNotifier(ws.notify),
		mutation.WithUnauthorizedHandler(ws.unauthorized),
		mutation.WithObserver(metrics))

	client := api.WithToken(token)
	env := panelEnv{
		client:   client,
		dispatch: ws.dispatcher,
		settings: settings,
		logger:   ws.logger,
		metrics:  metrics,
		onError:  ws.fetchFailed,
	}
	ws.add(newPanel(env, marketplace.VendorResource()))
	ws.add(newPanel(env, marketplace.RiderResource()))
	ws.add(newPanel(env, marketplace.UserResource()))
	ws.add(newPanel(env, marketplace.DeductionResource()))
	ws.add(newPanel(env, marketplace.StrikeResource()))
	ws.add(newPanel(env, marketplace.FeatureRequestResource()))
	ws.add(newPanel(env, marketplace.TransactionResource()))
	ws.add(newPanel(env, marketplace.WalletResource()))
	return ws
}

func (ws *Workspace) add(p Panel) {
	name := p.Definition().Name
	ws.panels[name] = p
	ws.order = append(ws.order, name)
}

// SessionID returns the owning session id.
func (ws *Workspace) SessionID() string {
	return ws.sessionID
}

// Admin returns the admin the workspace acts for.
func (ws *Workspace) Admin() shared.AdminUser {
	return ws.admin
}

// Panel returns the panel for resource and starts its listing on first use.
func (ws *Workspace) Panel(resource string) (Panel, error) {
	p, ok := ws.panels[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	p.start(ws.ctx)
	return p, nil
}

// Definitions lists the resources in navigation order.
func (ws *Workspace) Definitions() []marketplace.Definition {
	out := make([]marketplace.Definition, 0, len(ws.order))
	for _, name := range ws.order {
		out = append(out, ws.panels[name].Definition())
	}
	return out
}

// Dispatcher exposes the mutation dispatcher shared by the panels.
func (ws *Workspace) Dispatcher() *mutation.Dispatcher {
	return ws.dispatcher
}

// SignedOut reports whether the API rejected the admin's credentials.
func (ws *Workspace) SignedOut() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.signedOut
}

// DrainNotifications returns and clears pending notifications.
func (ws *Workspace) DrainNotifications() []Notification {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := ws.inbox
	ws.inbox = nil
	return out
}

// Notify queues a notification for the toast surface.
func (ws *Workspace) Notify(kind mutation.NotifyKind, message string) {
	ws.notify(kind, message)
}

// markBulkSeen reports whether id was not seen before and records it.
func (ws *Workspace) markBulkSeen(id string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.bulkSeen[id] {
		return false
	}
	ws.bulkSeen[id] = true
	return true
}

// reserveBulk claims the queued bulk slot of resource. When the slot is
// taken it returns false and the id of the job holding it.
func (ws *Workspace) reserveBulk(resource string) (string, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if id, busy := ws.bulkQueued[resource]; busy {
		return id, false
	}
	ws.bulkQueued[resource] = ""
	return "", true
}

// bindBulk records the job enqueued under a reserved slot.
func (ws *Workspace) bindBulk(resource, id string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.bulkQueued[resource] = id
}

// releaseBulk frees the slot of resource if job id still holds it.
func (ws *Workspace) releaseBulk(resource, id string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if current, ok := ws.bulkQueued[resource]; ok && current == id {
		delete(ws.bulkQueued, resource)
	}
}

// Close unmounts every panel. Late responses are discarded.
func (ws *Workspace) Close() {
	ws.cancel()
	for _, p := range ws.panels {
		p.close()
	}
}

func (ws *Workspace) currentUser() (shared.AdminUser, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.signedOut || ws.admin.ID == "" {
		return shared.AdminUser{}, false
	}
	return ws.admin, true
}

func (ws *Workspace) notify(kind mutation.NotifyKind, message string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.inbox = append(ws.inbox, Notification{Kind: kind, Message: message, At: time.Now().UTC()})
}

func (ws *Workspace) unauthorized(err error) {
	ws.mu.Lock()
	already := ws.signedOut
	ws.signedOut = true
	ws.mu.Unlock()
	if !already {
		ws.logger.Warn("admin credentials rejected", slog.Any("error", err))
	}
}

func (ws *Workspace) fetchFailed(err error) {
	if apiclient.IsUnauthorized(err) {
		ws.unauthorized(err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
