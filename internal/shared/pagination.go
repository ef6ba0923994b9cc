package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 10
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Page is one page of a remote listing. It is replaced wholesale on every
// successful fetch and never mutated in place.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}

// Pagination derives listing metadata from the page.
func (p Page[T]) Pagination() Pagination {
	return NewPagination(p.PageNumber, p.PageSize, p.TotalCount)
}

// TotalPages reports how many pages the listing spans.
func (p Page[T]) TotalPages() int {
	return p.Pagination().TotalPages
}
