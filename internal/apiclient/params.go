package apiclient

import (
	"net/url"
	"strconv"

	"github.com/deliverly/admin-console/internal/filters"
)

// Wire names of the pagination and sort query parameters.
const (
	ParamPageNumber = "pageNumber"
	ParamPageSize   = "pageSize"
	ParamSortBy     = "sortBy"
	ParamSortOrder  = "sortOrder"
)

// Project serialises state into query parameters. Pagination and sort keys
// are always mapped to their wire names; other keys pass only when listed in
// allowed, and empty values are dropped.
func Project(state filters.State, allowed []string) url.Values {
	q := url.Values{}
	if state.Page > 0 {
		q.Set(ParamPageNumber, strconv.Itoa(state.Page))
	}
	if state.PageSize > 0 {
		q.Set(ParamPageSize, strconv.Itoa(state.PageSize))
	}
	if state.SortBy != "" {
		q.Set(ParamSortBy, state.SortBy)
		if state.SortOrder != "" {
			q.Set(ParamSortOrder, string(state.SortOrder))
		}
	}
	for _, key := range allowed {
		if isReserved(key) {
			continue
		}
		if v := state.Values[key]; v != "" {
			q.Set(key, v)
		}
	}
	return q
}

func isReserved(key string) bool {
	switch key {
	case filters.KeyPage, filters.KeyPageSize, filters.KeySortBy, filters.KeySortOrder,
		ParamPageNumber:
		return true
	}
	return false
}
