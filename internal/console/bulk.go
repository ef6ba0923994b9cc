package console

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/mutation"
	"github.com/deliverly/admin-console/internal/platform/httpx"
	"github.com/deliverly/admin-console/internal/shared"
	"github.com/deliverly/admin-console/jobs"
)

// maxBulkIDs bounds a single bulk request.
const maxBulkIDs = 500

type bulkRequest struct {
	Action  string         `json:"action"`
	IDs     []string       `json:"ids"`
	Payload map[string]any `json:"payload"`
	// Sync runs the action through the API bulk endpoint instead of the
	// worker queue.
	Sync bool `json:"sync"`
}

func (req *bulkRequest) normalise() error {
	req.Action = strings.TrimSpace(req.Action)
	seen := make(map[string]bool, len(req.IDs))
	ids := req.IDs[:0]
	for _, id := range req.IDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	req.IDs = ids
	fields := map[string]string{}
	if req.Action == "" {
		fields["action"] = "is required"
	}
	switch {
	case len(req.IDs) == 0:
		fields["ids"] = "select at least one row"
	case len(req.IDs) > maxBulkIDs:
		fields["ids"] = fmt.Sprintf("must contain at most %d ids", maxBulkIDs)
	}
	if len(fields) > 0 {
		return apiclient.NewValidationError("invalid bulk request", fields)
	}
	return nil
}

type bulkAccepted struct {
	ID    string         `json:"id"`
	State jobs.BulkState `json:"state"`
	Total int            `json:"total"`
}

func (h *Handler) startBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.normalise(); err != nil {
		h.fail(w, r, err)
		return
	}
	p := panelFrom(r.Context())
	def := p.Definition()
	if !def.AllowsBulk(req.Action) {
		h.fail(w, r, apiclient.NewValidationError(
			fmt.Sprintf("%s cannot be applied to %s in bulk", req.Action, def.Name),
			map[string]string{"action": "is not a bulk action"}))
		return
	}

	ws := workspaceFrom(r.Context())
	queued := h.bulk != nil && !req.Sync
	var admin shared.AdminUser
	if queued {
		// The worker acts with the service key, so the admin's own token
		// is checked before anything is queued.
		var err error
		if admin, err = h.verifyAdmin(r, ws); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.reserveBulk(r.Context(), ws, def.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	if !queued {
		defer ws.releaseBulk(def.Name, "")
		h.runBulk(w, r, ws, p, req)
		return
	}

	body := maps.Clone(req.Payload)
	if body == nil {
		body = make(map[string]any)
	}
	body["adminUserId"] = admin.ID
	body["adminUserName"] = admin.FullName()
	id, err := h.bulk.EnqueueBulkAction(r.Context(), jobs.BulkActionPayload{
		Resource:    def.Name,
		Path:        def.Path,
		Action:      req.Action,
		IDs:         req.IDs,
		Body:        body,
		RequestedBy: admin.ID,
	})
	if err != nil {
		ws.releaseBulk(def.Name, "")
		h.fail(w, r, err)
		return
	}
	ws.bindBulk(def.Name, id)
	h.respond(w, r, http.StatusAccepted, bulkAccepted{ID: id, State: jobs.BulkQueued, Total: len(req.IDs)})
}

func bulkKey(resource string) string {
	return resource + ":bulk"
}

// verifyAdmin confirms the session token is still accepted by the API. A
// rejected token signs the workspace out.
func (h *Handler) verifyAdmin(r *http.Request, ws *Workspace) (shared.AdminUser, error) {
	admin, ok := ws.currentUser()
	if !ok {
		return shared.AdminUser{}, &apiclient.Error{Kind: apiclient.KindUnauthorized, Message: shared.ErrNotSignedIn.Error()}
	}
	sess := shared.SessionFromContext(r.Context())
	if _, err := h.api.WithToken(sess.Token()).CurrentAdmin(r.Context()); err != nil {
		if apiclient.IsUnauthorized(err) {
			ws.unauthorized(err)
		}
		return shared.AdminUser{}, err
	}
	return admin, nil
}

// reserveBulk holds one queued bulk job per resource until the job is
// seen complete. A slot whose job finished or expired unseen is reclaimed.
func (h *Handler) reserveBulk(ctx context.Context, ws *Workspace, resource string) error {
	pending, ok := ws.reserveBulk(resource)
	if ok {
		return nil
	}
	if pending == "" {
		return mutation.ErrInFlight
	}
	status, err := h.bulk.Status(ctx, pending)
	switch {
	case errors.Is(err, jobs.ErrResultNotFound):
	case err != nil:
		return err
	case status.State != jobs.BulkComplete:
		return mutation.ErrInFlight
	}
	ws.releaseBulk(resource, pending)
	if _, ok := ws.reserveBulk(resource); !ok {
		return mutation.ErrInFlight
	}
	return nil
}

// runBulk calls the API bulk endpoint through the dispatcher, so the
// listing refreshes like after any other mutation.
func (h *Handler) runBulk(w http.ResponseWriter, r *http.Request, ws *Workspace, p Panel, req bulkRequest) {
	def := p.Definition()
	payload := maps.Clone(req.Payload)
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["ids"] = req.IDs
	result, err := ws.Dispatcher().Execute(r.Context(), bulkKey(def.Name), mutation.Request{
		Resource: def.Name,
		Method:   mutation.MethodBulk,
		Action:   req.Action,
		Payload:  payload,
		Success:  fmt.Sprintf("Bulk %s applied to %d %s", req.Action, len(req.IDs), def.Name),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	batch := apiclient.BatchResult{Successful: []string{}, Failed: []string{}}
	if result.Batch != nil {
		batch = *result.Batch
	}
	if n := len(batch.Failed); n > 0 {
		ws.Notify(mutation.NotifyError, fmt.Sprintf("Bulk %s failed for %d of %d %s", req.Action, n, len(req.IDs), def.Name))
	}
	h.respond(w, r, http.StatusOK, jobs.BulkStatus{
		Resource: def.Name,
		Action:   req.Action,
		State:    jobs.BulkComplete,
		Total:    len(req.IDs),
		Result:   batch,
	})
}

func (h *Handler) bulkStatus(w http.ResponseWriter, r *http.Request) {
	if h.bulk == nil {
		h.fail(w, r, jobs.ErrResultNotFound)
		return
	}
	p := panelFrom(r.Context())
	status, err := h.bulk.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if status.Resource != p.Definition().Name {
		h.fail(w, r, errors.Join(jobs.ErrResultNotFound, fmt.Errorf("bulk %s belongs to %s", status.ID, status.Resource)))
		return
	}
	ws := workspaceFrom(r.Context())
	if status.State == jobs.BulkComplete {
		ws.releaseBulk(status.Resource, status.ID)
	}
	if status.State == jobs.BulkComplete && ws.markBulkSeen(status.ID) {
		p.Invalidate()
		ok, failed := len(status.Result.Successful), len(status.Result.Failed)
		if failed > 0 {
			ws.Notify(mutation.NotifyError, fmt.Sprintf("Bulk %s: %d succeeded, %d failed", status.Action, ok, failed))
		} else {
			ws.Notify(mutation.NotifySuccess, fmt.Sprintf("Bulk %s: %d succeeded", status.Action, ok))
		}
	}
	h.respond(w, r, http.StatusOK, status)
}
