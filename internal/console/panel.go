package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/debounce"
	"github.com/deliverly/admin-console/internal/filters"
	"github.com/deliverly/admin-console/internal/marketplace"
	"github.com/deliverly/admin-console/internal/modal"
	"github.com/deliverly/admin-console/internal/mutation"
	"github.com/deliverly/admin-console/internal/observability"
	"github.com/deliverly/admin-console/internal/query"
	"github.com/deliverly/admin-console/internal/shared"
)

// ErrUnknownFilter is returned for filter keys the resource does not accept.
var ErrUnknownFilter = errors.New("console: unknown filter")

// Banner is the dismissible error shown above a listing or inside a modal.
type Banner struct {
	Kind        apiclient.Kind    `json:"kind,omitempty"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func bannerFor(err error) *Banner {
	if err == nil {
		return nil
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return &Banner{Kind: apiErr.Kind, Message: apiErr.Message, FieldErrors: apiErr.FieldErrors}
	}
	return &Banner{Message: err.Error()}
}

// ListView is the rendered state of a panel listing.
type ListView struct {
	Resource   string             `json:"resource"`
	Title      string             `json:"title"`
	Status     query.Status       `json:"status"`
	Filters    filters.State      `json:"filters"`
	Items      any                `json:"items"`
	Pagination *shared.Pagination `json:"pagination,omitempty"`
	Error      *Banner            `json:"error,omitempty"`
	Generation uint64             `json:"generation"`
	// SearchPending is true while a search term waits for the debounce.
	SearchPending bool `json:"searchPending"`
}

// ModalView is the rendered state of a panel modal.
type ModalView struct {
	Mode    modal.Mode `json:"mode"`
	Title   string     `json:"title,omitempty"`
	Entity  any        `json:"entity,omitempty"`
	Pending bool       `json:"pending"`
	Error   *Banner    `json:"error,omitempty"`
}

// Table is a listing flattened to strings for export.
type Table struct {
	Title      string
	Columns    []string
	Rows       [][]string
	Filters    []string
	Generation uint64
}

// Panel is the type-erased view of one resource panel.
type Panel interface {
	Definition() marketplace.Definition
	Modes() []modal.Mode
	View(ctx context.Context) (ListView, error)
	SetFilters(partial map[string]string) error
	SetPage(n int)
	Search(term string, immediate bool) bool
	Reset()
	Invalidate()
	Modal() ModalView
	OpenModal(ctx context.Context, mode modal.Mode, id string) error
	CloseModal()
	SubmitModal(ctx context.Context, raw []byte) (mutation.Result, error)
	Export(ctx context.Context) (Table, error)

	start(ctx context.Context)
	close()
}

type panelEnv struct {
	client   *apiclient.Client
	dispatch *mutation.Dispatcher
	settings Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
	onError  func(error)
}

type panel[T marketplace.Entity] struct {
	def      marketplace.Definition
	defaults filters.State
	api      *apiclient.Resource[T]
	store    *filters.Store
	ctrl     *query.Controller[T]
	modal    *modal.Orchestrator[T]
	search   *debounce.Debouncer
	unwatch  func()
	once     sync.Once
}

func newPanel[T marketplace.Entity](env panelEnv, res marketplace.Resource[T]) *panel[T] {
	def := res.Definition
	defaults := def.Defaults.Clone()
	if env.settings.DefaultPageSize > 0 {
		defaults.PageSize = env.settings.DefaultPageSize
	}
	api := apiclient.NewResource[T](env.client, def.Name, def.Path, def.Filters)
	store := filters.NewStore(defaults, filters.WithPageSizeBounds(1, env.settings.MaxPageSize))
	ctrl := query.NewController[T](def.Name, store, api.List,
		query.WithLogger(env.logger),
		query.WithObserver(env.metrics),
		query.WithErrorHandler(env.onError))

	env.dispatch.Register(def.Name, mutation.ForResource(api))
	p := &panel[T]{
		def:      def,
		defaults: defaults,
		api:      api,
		store:    store,
		ctrl:     ctrl,
		modal:    modal.NewOrchestrator[T](def.Name, env.dispatch, env.logger, res.Modals...),
		search:   debounce.New(env.settings.SearchDelay),
	}
	p.unwatch = env.dispatch.Watch(def.Name, ctrl.Invalidate)
	return p
}

func (p *panel[T]) Definition() marketplace.Definition {
	return p.def
}

func (p *panel[T]) Modes() []modal.Mode {
	modes := p.modal.Modes()
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

func (p *panel[T]) start(ctx context.Context) {
	p.once.Do(func() { p.ctrl.Start(ctx) })
}

func (p *panel[T]) close() {
	p.search.Stop()
	if p.unwatch != nil {
		p.unwatch()
	}
	p.ctrl.Close()
}

// View waits for the current fetch to settle, or for ctx, and renders it.
func (p *panel[T]) View(ctx context.Context) (ListView, error) {
	snap, err := p.ctrl.Await(ctx)
	if errors.Is(err, query.ErrClosed) {
		return ListView{}, err
	}
	return p.render(snap), nil
}

func (p *panel[T]) render(snap query.Snapshot[T]) ListView {
	view := ListView{
		Resource:      p.def.Name,
		Title:         p.def.Title,
		Status:        snap.Status,
		Filters:       snap.Filters,
		Items:         []T{},
		Error:         bannerFor(snap.Err),
		Generation:    snap.Generation,
		SearchPending: p.search.Pending(),
	}
	if snap.Data != nil {
		if snap.Data.Items != nil {
			view.Items = snap.Data.Items
		}
		pg := snap.Data.Pagination()
		view.Pagination = &pg
	}
	return view
}

// SetFilters applies a partial update. Keys outside the resource allowlist
// and the pagination keys are rejected as a whole.
func (p *panel[T]) SetFilters(partial map[string]string) error {
	fields := map[string]string{}
	for key := range partial {
		if !p.accepts(key) {
			fields[key] = "is not a filter of " + p.def.Name
		}
	}
	if len(fields) > 0 {
		return apiclient.NewValidationError(ErrUnknownFilter.Error(), fields)
	}
	if len(partial) > 0 {
		p.store.SetFilters(partial)
	}
	return nil
}

func (p *panel[T]) accepts(key string) bool {
	switch key {
	case filters.KeyPage, filters.KeyPageSize, filters.KeySortBy, filters.KeySortOrder:
		return true
	}
	return p.def.AllowsFilter(key)
}

func (p *panel[T]) SetPage(n int) {
	p.store.SetPage(n)
}

// Search feeds the debounced search box. immediate flushes it, as on Enter.
// It reports whether a term is still waiting for the quiet interval.
func (p *panel[T]) Search(term string, immediate bool) bool {
	if p.def.Search == "" {
		return false
	}
	term = strings.TrimSpace(term)
	p.search.Trigger(func() { p.store.SetFilter(p.def.Search, term) })
	if immediate {
		p.search.Flush()
	}
	return p.search.Pending()
}

func (p *panel[T]) Reset() {
	p.search.Cancel()
	p.store.Reset(p.defaults)
}

func (p *panel[T]) Invalidate() {
	p.ctrl.Invalidate()
}

func (p *panel[T]) Modal() ModalView {
	target := p.modal.Target()
	view := ModalView{
		Mode:    target.Mode,
		Pending: p.modal.Pending(),
		Error:   bannerFor(p.modal.LastError()),
	}
	if target.Entity != nil {
		view.Entity = target.Entity
	}
	if desc, ok := p.modal.Descriptor(target.Mode); ok && target.Open() {
		view.Title = desc.Title
	}
	return view
}

// OpenModal opens mode for the entity id. The entity is taken from the
// current page when present, otherwise fetched.
func (p *panel[T]) OpenModal(ctx context.Context, mode modal.Mode, id string) error {
	desc, ok := p.modal.Descriptor(mode)
	if mode != modal.ModeNone && !ok {
		return fmt.Errorf("%w: %s", modal.ErrUnknownMode, mode)
	}
	var entity *T
	if id != "" {
		found, err := p.lookup(ctx, id)
		if err != nil {
			return err
		}
		entity = found
	} else if desc.NeedsEntity {
		return apiclient.NewValidationError("an entity is required", map[string]string{"id": "is required"})
	}
	return p.modal.Open(mode, entity)
}

func (p *panel[T]) lookup(ctx context.Context, id string) (*T, error) {
	if data := p.ctrl.Snapshot().Data; data != nil {
		for i := range data.Items {
			if data.Items[i].EntityID() == id {
				item := data.Items[i]
				return &item, nil
			}
		}
	}
	item, err := p.api.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (p *panel[T]) CloseModal() {
	p.modal.Close()
}

func (p *panel[T]) SubmitModal(ctx context.Context, raw []byte) (mutation.Result, error) {
	return p.modal.Submit(ctx, raw)
}

// Export flattens the current page.
func (p *panel[T]) Export(ctx context.Context) (Table, error) {
	view, err := p.View(ctx)
	if err != nil {
		return Table{}, err
	}
	items, _ := view.Items.([]T)
	table := Table{Title: p.def.Title, Filters: describeFilters(view.Filters), Generation: view.Generation}
	for _, c := range p.def.Columns {
		table.Columns = append(table.Columns, c.Header)
	}
	for _, item := range items {
		row, err := flatten(item, p.def.Columns)
		if err != nil {
			return Table{}, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func flatten(item any, columns []marketplace.Column) ([]string, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = cell(fields[c.Field], c.Money())
	}
	return row, nil
}

func cell(v any, money bool) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if money {
			return marketplace.FormatNaira(val)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, _ := json.Marshal(val)
		return string(raw)
	}
}

func describeFilters(st filters.State) []string {
	keys := make([]string, 0, len(st.Values))
	for k := range st.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		out = append(out, k+": "+st.Values[k])
	}
	if st.SortBy != "" {
		out = append(out, "sorted by "+st.SortBy+" "+string(st.SortOrder))
	}
	out = append(out, fmt.Sprintf("page %d, %d per page", st.Page, st.PageSize))
	return out
}
