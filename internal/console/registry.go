package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deliverly/admin-console/internal/shared"
)

// Factory builds the workspace of a freshly seen session.
type Factory func(sessionID string, admin shared.AdminUser, token string) *Workspace

type registryEntry struct {
	ws       *Workspace
	token    string
	lastSeen time.Time
}

// Registry keeps one workspace per session and unmounts idle ones.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry constructs a registry. A non-positive idleTTL disables expiry.
func NewRegistry(factory Factory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Acquire returns the workspace of sessionID, creating it when missing or
// when the admin's token changed since it was built.
func (r *Registry) Acquire(sessionID string, admin shared.AdminUser, token string) *Workspace {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	if ok && entry.token == token && entry.ws.Admin().ID == admin.ID {
		entry.lastSeen = r.now()
		r.mu.Unlock()
		return entry.ws
	}
	var stale *Workspace
	if ok {
		stale = entry.ws
	}
	ws := r.factory(sessionID, admin, token)
	r.entries[sessionID] = &registryEntry{ws: ws, token: token, lastSeen: r.now()}
	r.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	return ws
}

// Remove unmounts the workspace of sessionID.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if ok {
		entry.ws.Close()
	}
}

// Len reports the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep unmounts workspaces idle for longer than the TTL and returns how
// many were removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)
	var idle []*Workspace
	r.mu.Lock()
	for id, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			idle = append(idle, entry.ws)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	for _, ws := range idle {
		ws.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("workspaces expired", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done, then unmounts everything.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close unmounts every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.ws.Close()
	}
}
