// Package filters holds the filter, sort and pagination state of a resource listing.
package filters

import (
	"maps"
	"strconv"
	"strings"
	"sync"
)

// Reserved keys address the typed pagination and sort fields of State.
const (
	KeyPage      = "page"
	KeyPageSize  = "pageSize"
	KeySortBy    = "sortBy"
	KeySortOrder = "sortOrder"
)

const (
	// DefaultMinPageSize is the smallest page size a store accepts.
	DefaultMinPageSize = 1
	// DefaultMaxPageSize caps page sizes unless the store is configured otherwise.
	DefaultMaxPageSize = 100
)

// SortOrder is the listing direction.
type SortOrder string

const (
	// SortAsc sorts ascending.
	SortAsc SortOrder = "asc"
	// SortDesc sorts descending.
	SortDesc SortOrder = "desc"
)

// ParseSortOrder normalises free-form input; anything but "asc" is descending.
func ParseSortOrder(v string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(v), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// State is a snapshot of listing parameters. Values holds every
// non-reserved filter key.
type State struct {
	Page      int               `json:"page"`
	PageSize  int               `json:"pageSize"`
	SortBy    string            `json:"sortBy,omitempty"`
	SortOrder SortOrder         `json:"sortOrder,omitempty"`
	Values    map[string]string `json:"filters,omitempty"`
}

// Get returns the filter value for key, including reserved keys.
func (s State) Get(key string) string {
	switch key {
	case KeyPage:
		return strconv.Itoa(s.Page)
	case KeyPageSize:
		return strconv.Itoa(s.PageSize)
	case KeySortBy:
		return s.SortBy
	case KeySortOrder:
		return string(s.SortOrder)
	}
	return s.Values[key]
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Values != nil {
		out.Values = maps.Clone(s.Values)
	}
	return out
}

// Equal reports whether both states describe the same query. A nil and an
// empty Values map are equivalent.
func (s State) Equal(o State) bool {
	if s.Page != o.Page || s.PageSize != o.PageSize || s.SortBy != o.SortBy || s.SortOrder != o.SortOrder {
		return false
	}
	if len(s.Values) != len(o.Values) {
		return false
	}
	for k, v := range s.Values {
		if ov, ok := o.Values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Listener receives every state change together with the store version
// that produced it.
type Listener func(state State, version uint64)

// Option configures a Store.
type Option func(*Store)

// WithPageSizeBounds sets the clamping bounds for page sizes. A max of zero
// disables the upper bound.
func WithPageSizeBounds(minSize, maxSize int) Option {
	return func(s *Store) {
		if minSize < 1 {
			minSize = 1
		}
		s.minPageSize = minSize
		s.maxPageSize = maxSize
	}
}

// Store owns the State of a single listing. It emits no errors; invalid
// pagination input is clamped.
type Store struct {
	mu          sync.Mutex
	state       State
	version     uint64
	minPageSize int
	maxPageSize int
	listeners   map[int]Listener
	nextID      int
}

// NewStore creates a store initialised with defaults.
func NewStore(defaults State, opts ...Option) *Store {
	s := &Store{
		minPageSize: DefaultMinPageSize,
		maxPageSize: DefaultMaxPageSize,
		listeners:   make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.normalise(defaults.Clone())
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Current returns a copy of the state together with its version.
func (s *Store) Current() (State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), s.version
}

// Version returns the number of effective changes applied so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn for state changes and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetFilter updates a single key.
func (s *Store) SetFilter(key, value string) {
	s.SetFilters(map[string]string{key: value})
}

// SetFilters applies a partial update. Page is reset to 1 when a key other
// than page or pageSize actually changes value.
func (s *Store) SetFilters(partial map[string]string) {
	if len(partial) == 0 {
		return
	}
	s.update(func(st *State) {
		filterChanged := false
		for key, value := range partial {
			switch key {
			case KeyPage:
				st.Page = atoi(value)
			case KeyPageSize:
				st.PageSize = atoi(value)
			case KeySortBy:
				value = strings.TrimSpace(value)
				filterChanged = filterChanged || value != st.SortBy
				st.SortBy = value
			case KeySortOrder:
				order := ParseSortOrder(value)
				filterChanged = filterChanged || order != st.SortOrder
				st.SortOrder = order
			default:
				value = strings.TrimSpace(value)
				old, had := st.Values[key]
				if value == "" {
					filterChanged = filterChanged || had
					delete(st.Values, key)
					continue
				}
				filterChanged = filterChanged || old != value
				if st.Values == nil {
					st.Values = make(map[string]string)
				}
				st.Values[key] = value
			}
		}
		if filterChanged {
			st.Page = 1
		}
	})
}

// SetPage moves to page n, clamped to 1.
func (s *Store) SetPage(n int) {
	s.update(func(st *State) { st.Page = n })
}

// SetPageSize changes the page size without resetting the page.
func (s *Store) SetPageSize(n int) {
	s.update(func(st *State) { st.PageSize = n })
}

// Reset replaces the whole state with defaults.
func (s *Store) Reset(defaults State) {
	s.update(func(st *State) { *st = defaults.Clone() })
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	next := s.state.Clone()
	fn(&next)
	next = s.normalise(next)
	if next.Equal(s.state) {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.version++
	version := s.version
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	snapshot := next.Clone()
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot.Clone(), version)
	}
}

func (s *Store) normalise(st State) State {
	if st.Page < 1 {
		st.Page = 1
	}
	if st.PageSize < s.minPageSize {
		st.PageSize = s.minPageSize
	}
	if s.maxPageSize > 0 && st.PageSize > s.maxPageSize {
		st.PageSize = s.maxPageSize
	}
	if st.SortOrder != "" && st.SortOrder != SortAsc {
		st.SortOrder = SortDesc
	}
	return st
}

func atoi(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
