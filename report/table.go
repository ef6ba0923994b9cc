package report

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deliverly/admin-console/internal/platform/httpx"
)

//go:embed templates/table.html
var templateFS embed.FS

var tableTemplate = template.Must(template.ParseFS(templateFS, "templates/table.html"))

// Table is a titled grid rendered into a PDF export.
type Table struct {
	Title       string
	GeneratedAt time.Time
	GeneratedBy string
	// Filters are human readable "field: value" lines.
	Filters []string
	Columns []string
	Rows    [][]string
}

// HTML renders t into a standalone document.
func (t Table) HTML() (string, error) {
	var buf bytes.Buffer
	if err := tableTemplate.ExecuteTemplate(&buf, "table.html", t); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTable converts t to a PDF.
func (c *Client) RenderTable(ctx context.Context, t Table) ([]byte, error) {
	html, err := t.HTML()
	if err != nil {
		return nil, err
	}
	return c.RenderHTML(ctx, html)
}

// Handler manages report endpoints.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Renderer unavailable", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
