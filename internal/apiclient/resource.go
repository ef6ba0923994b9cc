package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/deliverly/admin-console/internal/filters"
	"github.com/deliverly/admin-console/internal/shared"
)

// BatchResult summarises a bulk operation.
type BatchResult struct {
	Successful []string `json:"successful"`
	Failed     []string `json:"failed"`
}

// ActionResult is the response of an action endpoint: either the updated
// entity or a batch summary.
type ActionResult struct {
	Entity json.RawMessage `json:"entity,omitempty"`
	Batch  *BatchResult    `json:"batch,omitempty"`
}

// Decode unmarshals the updated entity into dst.
func (r ActionResult) Decode(dst any) error {
	if len(r.Entity) == 0 {
		return fmt.Errorf("apiclient: action returned no entity")
	}
	return json.Unmarshal(r.Entity, dst)
}

// Resource addresses one admin-managed entity collection.
type Resource[T any] struct {
	client  *Client
	name    string
	path    string
	allowed []string
}

// NewResource binds a collection living under path (e.g. "/admin/vendors")
// whose list endpoint accepts the allowed filter keys.
func NewResource[T any](client *Client, name, path string, allowed []string) *Resource[T] {
	return &Resource[T]{client: client, name: name, path: path, allowed: allowed}
}

// Name returns the resource name used in logs and metrics.
func (r *Resource[T]) Name() string {
	return r.name
}

// Allowed returns the filter keys forwarded to the list endpoint.
func (r *Resource[T]) Allowed() []string {
	return r.allowed
}

// WithClient rebinds the resource to another client, e.g. one carrying an admin token.
func (r *Resource[T]) WithClient(c *Client) *Resource[T] {
	cp := *r
	cp.client = c
	return &cp
}

// List fetches one page. The returned page always echoes the requested
// page number and size.
func (r *Resource[T]) List(ctx context.Context, state filters.State) (shared.Page[T], error) {
	var page shared.Page[T]
	err := r.client.do(ctx, request{
		resource: r.name,
		method:   http.MethodGet,
		path:     r.path,
		query:    Project(state, r.allowed),
	}, &page)
	if err != nil {
		return shared.Page[T]{}, err
	}
	if page.PageNumber == 0 {
		page.PageNumber = state.Page
	}
	if page.PageSize == 0 {
		page.PageSize = state.PageSize
	}
	if page.PageNumber != state.Page || page.PageSize != state.PageSize {
		return shared.Page[T]{}, NewServerError(http.StatusOK, fmt.Sprintf(
			"page mismatch: requested %d/%d, got %d/%d", state.Page, state.PageSize, page.PageNumber, page.PageSize))
	}
	if len(page.Items) > page.PageSize {
		return shared.Page[T]{}, NewServerError(http.StatusOK, fmt.Sprintf(
			"page overflow: %d items for page size %d", len(page.Items), page.PageSize))
	}
	if page.TotalCount < 0 {
		return shared.Page[T]{}, NewServerError(http.StatusOK, "negative total count")
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

// Get fetches a single entity.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodGet, path: r.itemPath(id)}, &out)
	return out, err
}

// Create posts a new entity.
func (r *Resource[T]) Create(ctx context.Context, payload any) (T, error) {
	var out T
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodPost, path: r.path, body: payload}, &out)
	return out, err
}

// Update replaces the editable fields of an entity.
func (r *Resource[T]) Update(ctx context.Context, id string, payload any) (T, error) {
	var out T
	err := r.client.do(ctx, request{resource: r.name, method: http.MethodPut, path: r.itemPath(id), body: payload}, &out)
	return out, err
}

// Action invokes a named state transition on an entity.
func (r *Resource[T]) Action(ctx context.Context, id, name string, payload any) (ActionResult, error) {
	var raw json.RawMessage
	err := r.client.do(ctx, request{
		resource: r.name,
		method:   http.MethodPost,
		path:     r.itemPath(id) + "/" + url.PathEscape(name),
		body:     payload,
	}, &raw)
	if err != nil {
		return ActionResult{}, err
	}
	return parseActionResult(raw), nil
}

// Bulk invokes a named action over many entities in one call.
func (r *Resource[T]) Bulk(ctx context.Context, name string, payload any) (BatchResult, error) {
	var out BatchResult
	err := r.client.do(ctx, request{
		resource: r.name,
		method:   http.MethodPost,
		path:     r.path + "/bulk/" + url.PathEscape(name),
		body:     payload,
	}, &out)
	return out, err
}

func (r *Resource[T]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

func parseActionResult(raw json.RawMessage) ActionResult {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ActionResult{}
	}
	var probe struct {
		Successful *[]string `json:"successful"`
		Failed     *[]string `json:"failed"`
	}
	if json.Unmarshal(raw, &probe) == nil && (probe.Successful != nil || probe.Failed != nil) {
		batch := &BatchResult{}
		if probe.Successful != nil {
			batch.Successful = *probe.Successful
		}
		if probe.Failed != nil {
			batch.Failed = *probe.Failed
		}
		return ActionResult{Batch: batch}
	}
	return ActionResult{Entity: raw}
}
