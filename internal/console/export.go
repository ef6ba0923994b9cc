package console

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deliverly/admin-console/internal/platform/httpx"
	"github.com/deliverly/admin-console/report"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	_, err := s.buf.WriteString("# " + strings.TrimRight(line, "\r\n") + "\r\n")
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func writeTableCSV(w io.Writer, table Table, generatedAt time.Time, generatedBy string) error {
	s := newCSVStreamer(w)
	meta := []string{
		table.Title,
		"Generated " + generatedAt.UTC().Format(time.RFC3339) + " by " + generatedBy,
	}
	meta = append(meta, table.Filters...)
	for _, line := range meta {
		if err := s.writeComment(line); err != nil {
			return err
		}
	}
	if err := s.writeRow(table.Columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := s.writeRow(row); err != nil {
			return err
		}
	}
	return s.Flush()
}

func exportFilename(resource, ext string, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", resource, at.UTC().Format("20060102-1504"), ext)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.viewContext(r)
	defer cancel()
	p := panelFrom(r.Context())
	table, err := p.Export(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.settle(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired, sign in again")
		return
	}
	now := time.Now()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(p.Definition().Name, "csv", now)+`"`)
	w.WriteHeader(http.StatusOK)
	admin := workspaceFrom(r.Context()).Admin()
	if err := writeTableCSV(w, table, now, admin.FullName()); err != nil {
		h.logger.Error("write csv export", slog.String("resource", p.Definition().Name), slog.Any("error", err))
	}
}

// renderOnce collapses concurrent renders of the same key, as when an
// admin double-clicks the export button.
func (h *Handler) renderOnce(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	ch := h.pdfGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	if !h.reports.Configured() {
		h.fail(w, r, report.ErrNotConfigured)
		return
	}
	ctx, cancel := h.viewContext(r)
	defer cancel()
	p := panelFrom(r.Context())
	ws := workspaceFrom(r.Context())
	table, err := p.Export(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := time.Now()
	key := fmt.Sprintf("%s:%s:%d", ws.SessionID(), p.Definition().Name, table.Generation)
	pdf, err := h.renderOnce(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		return h.reports.RenderTable(ctx, report.Table{
			Title:       table.Title,
			GeneratedAt: now,
			GeneratedBy: ws.Admin().FullName(),
			Filters:     table.Filters,
			Columns:     table.Columns,
			Rows:        table.Rows,
		})
	})
	if err != nil {
		h.logger.Error("render pdf export", slog.String("resource", p.Definition().Name), slog.Any("error", err))
		if h.settle(r) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired, sign in again")
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "the PDF could not be rendered")
		return
	}
	if h.settle(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired, sign in again")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(p.Definition().Name, "pdf", now)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
