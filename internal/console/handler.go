package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/modal"
	"github.com/deliverly/admin-console/internal/mutation"
	"github.com/deliverly/admin-console/internal/platform/httpx"
	"github.com/deliverly/admin-console/internal/shared"
	"github.com/deliverly/admin-console/jobs"
	"github.com/deliverly/admin-console/report"
)

const defaultViewTimeout = 10 * time.Second

// BulkQueue hands bulk actions to the background worker.
type BulkQueue interface {
	EnqueueBulkAction(ctx context.Context, payload jobs.BulkActionPayload) (string, error)
	Status(ctx context.Context, id string) (jobs.BulkStatus, error)
}

// HandlerConfig collects the handler dependencies. Bulk and Reports are
// optional.
type HandlerConfig struct {
	API         *apiclient.Client
	Registry    *Registry
	Sessions    *shared.SessionManager
	CSRF        *shared.CSRFManager
	Bulk        BulkQueue
	Reports     *report.Client
	Logger      *slog.Logger
	ViewTimeout time.Duration
}

// Handler serves the console API under /console.
type Handler struct {
	api         *apiclient.Client
	registry    *Registry
	sessions    *shared.SessionManager
	csrf        *shared.CSRFManager
	bulk        BulkQueue
	reports     *report.Client
	logger      *slog.Logger
	viewTimeout time.Duration
	pdfGroup    singleflight.Group
}

// NewHandler constructs the console handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ViewTimeout
	if timeout <= 0 {
		timeout = defaultViewTimeout
	}
	return &Handler{
		api:         cfg.API,
		registry:    cfg.Registry,
		sessions:    cfg.Sessions,
		csrf:        cfg.CSRF,
		bulk:        cfg.Bulk,
		reports:     cfg.Reports,
		logger:      logger,
		viewTimeout: timeout,
	}
}

// MountRoutes registers console routes. The session and CSRF middleware
// must already be installed on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/session", h.getSession)
	r.Post("/session", h.signIn)
	r.Delete("/session", h.signOut)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/resources", h.resources)
		r.Get("/notifications", h.notifications)
		r.Route("/{resource}", func(r chi.Router) {
			r.Use(h.withPanel)
			r.Get("/", h.list)
			r.Patch("/filters", h.setFilters)
			r.Put("/page/{page}", h.setPage)
			r.Post("/search", h.search)
			r.Post("/reset", h.reset)
			r.Post("/invalidate", h.invalidate)
			r.Get("/modal", h.getModal)
			r.Post("/modal", h.openModal)
			r.Delete("/modal", h.closeModal)
			r.Post("/modal/submit", h.submitModal)
			r.Post("/bulk", h.startBulk)
			r.Get("/bulk/{id}", h.bulkStatus)
			r.Get("/export.csv", h.exportCSV)
			r.Get("/export.pdf", h.exportPDF)
		})
	})
}

type ctxKey int

const (
	workspaceKey ctxKey = iota
	panelKey
)

func workspaceFrom(ctx context.Context) *Workspace {
	ws, _ := ctx.Value(workspaceKey).(*Workspace)
	return ws
}

func panelFrom(ctx context.Context) Panel {
	p, _ := ctx.Value(panelKey).(Panel)
	return p
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		admin, ok := sess.Admin()
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		ws := h.registry.Acquire(sess.ID, admin, sess.Token())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), workspaceKey, ws)))
	})
}

func (h *Handler) withPanel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := workspaceFrom(r.Context()).Panel(chi.URLParam(r, "resource"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), panelKey, p)))
	})
}

// settle mirrors workspace notifications into the session flashes and
// signs the session out when the API rejected the admin. It must run
// before the response header is written.
func (h *Handler) settle(r *http.Request) bool {
	ws := workspaceFrom(r.Context())
	sess := shared.SessionFromContext(r.Context())
	if ws == nil || sess == nil {
		return false
	}
	for _, n := range ws.DrainNotifications() {
		sess.AddFlash(shared.FlashMessage{Kind: string(n.Kind), Message: n.Message})
	}
	if !ws.SignedOut() {
		return false
	}
	h.registry.Remove(sess.ID)
	h.sessions.Destroy(sess)
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	if h.settle(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired, sign in again")
		return
	}
	httpx.JSON(w, status, body)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.settle(r) || apiclient.IsUnauthorized(err) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired, sign in again")
		return
	}
	switch {
	case errors.Is(err, ErrUnknownResource), errors.Is(err, jobs.ErrResultNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, mutation.ErrInFlight):
		httpx.Problem(w, http.StatusConflict, "Conflict", "a submission for this form is already in progress")
	case errors.Is(err, modal.ErrUnknownMode), errors.Is(err, modal.ErrNoModal), errors.Is(err, modal.ErrNotSubmittable):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, report.ErrNotConfigured):
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "PDF rendering is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", err.Error())
	default:
		if apiclient.KindOf(err) == "" && !errors.Is(err, httpx.ErrBadRequest) {
			h.logger.Error("console request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func (h *Handler) viewContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.viewTimeout)
}

func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, p Panel) {
	ctx, cancel := h.viewContext(r)
	defer cancel()
	view, err := p.View(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view.Error != nil && view.Error.Kind == apiclient.KindUnauthorized {
		workspaceFrom(r.Context()).unauthorized(errors.New(view.Error.Message))
	}
	h.respond(w, r, http.StatusOK, view)
}

type sessionView struct {
	SignedIn  bool              `json:"signedIn"`
	Admin     *shared.AdminUser `json:"admin,omitempty"`
	CSRFToken string            `json:"csrfToken"`
}

func (h *Handler) sessionView(ctx context.Context, sess *shared.Session) (sessionView, error) {
	token, err := h.csrf.EnsureToken(ctx, sess)
	if err != nil {
		return sessionView{}, err
	}
	out := sessionView{CSRFToken: token}
	if admin, ok := sess.Admin(); ok {
		out.SignedIn = true
		out.Admin = &admin
	}
	return out, nil
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessionView(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type signInRequest struct {
	Token string `json:"token"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		h.fail(w, r, apiclient.NewValidationError("token required", map[string]string{"token": "is required"}))
		return
	}
	admin, err := h.api.WithToken(req.Token).CurrentAdmin(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	h.registry.Remove(sess.ID)
	sess.SignIn(admin, req.Token)
	h.logger.Info("admin signed in", slog.String("admin_id", admin.ID))

	view, err := h.sessionView(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.registry.Remove(sess.ID)
	h.sessions.Destroy(sess)
	w.WriteHeader(http.StatusNoContent)
}

type resourceView struct {
	Name        string       `json:"name"`
	Title       string       `json:"title"`
	Filters     []string     `json:"filters"`
	Search      string       `json:"search,omitempty"`
	Columns     []columnView `json:"columns"`
	Modes       []modal.Mode `json:"modes"`
	BulkActions []string     `json:"bulkActions,omitempty"`
}

type columnView struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

func (h *Handler) resources(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	out := make([]resourceView, 0, len(ws.order))
	for _, def := range ws.Definitions() {
		view := resourceView{
			Name: def.Name, Title: def.Title, Filters: def.Filters, Search: def.Search,
			Modes: ws.panels[def.Name].Modes(), BulkActions: def.BulkActions,
		}
		for _, c := range def.Columns {
			view.Columns = append(view.Columns, columnView{Header: c.Header, Field: c.Field})
		}
		out = append(out, view)
	}
	h.respond(w, r, http.StatusOK, map[string]any{"resources": out})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	if h.settle(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired, sign in again")
		return
	}
	flashes := shared.SessionFromContext(r.Context()).PopFlashes()
	if flashes == nil {
		flashes = []shared.FlashMessage{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": flashes})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p := panelFrom(r.Context())
	if q := r.URL.Query(); len(q) > 0 {
		partial := make(map[string]string, len(q))
		for key := range q {
			partial[key] = q.Get(key)
		}
		if err := p.SetFilters(partial); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.respondView(w, r, p)
}

func (h *Handler) setFilters(w http.ResponseWriter, r *http.Request) {
	var partial map[string]string
	if err := httpx.DecodeJSON(r, &partial); err != nil {
		h.fail(w, r, err)
		return
	}
	p := panelFrom(r.Context())
	if err := p.SetFilters(partial); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondView(w, r, p)
}

func (h *Handler) setPage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		h.fail(w, r, errors.Join(httpx.ErrBadRequest, errors.New("page must be a number")))
		return
	}
	p := panelFrom(r.Context())
	p.SetPage(n)
	h.respondView(w, r, p)
}

type searchRequest struct {
	Term      string `json:"term"`
	Immediate bool   `json:"immediate"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := panelFrom(r.Context())
	pending := p.Search(req.Term, req.Immediate)
	if req.Immediate {
		h.respondView(w, r, p)
		return
	}
	h.respond(w, r, http.StatusAccepted, map[string]any{"searchPending": pending})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	p := panelFrom(r.Context())
	p.Reset()
	h.respondView(w, r, p)
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	p := panelFrom(r.Context())
	p.Invalidate()
	h.respondView(w, r, p)
}

func (h *Handler) getModal(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, panelFrom(r.Context()).Modal())
}

type openModalRequest struct {
	Mode modal.Mode `json:"mode"`
	ID   string     `json:"id"`
}

func (h *Handler) openModal(w http.ResponseWriter, r *http.Request) {
	var req openModalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := panelFrom(r.Context())
	if err := p.OpenModal(r.Context(), req.Mode, req.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, p.Modal())
}

func (h *Handler) closeModal(w http.ResponseWriter, r *http.Request) {
	p := panelFrom(r.Context())
	p.CloseModal()
	h.respond(w, r, http.StatusOK, p.Modal())
}

type submitResponse struct {
	Entity json.RawMessage        `json:"entity,omitempty"`
	Batch  *apiclient.BatchResult `json:"batch,omitempty"`
	Modal  ModalView              `json:"modal"`
}

func (h *Handler) submitModal(w http.ResponseWriter, r *http.Request) {
	raw, err := httpx.ReadBody(r)
	if err != nil {
		h.fail(w, r, errors.Join(httpx.ErrBadRequest, err))
		return
	}
	p := panelFrom(r.Context())
	result, err := p.SubmitModal(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, submitResponse{Entity: result.Entity, Batch: result.Batch, Modal: p.Modal()})
}
