// Package pagination provides page request and result types for history queries.
package pagination

import (
	"net/url"
	"strconv"
)

// PageRequest asks for one 1-based page of results.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps the request into the bounds allowed by cfg.
func (r *PageRequest) Normalize(cfg Config) {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	if r.PageSize > cfg.MaxPageSize {
		r.PageSize = cfg.MaxPageSize
	}
}

// PageRequestFromQuery reads page and page_size from query values and
// normalizes them against cfg.
func PageRequestFromQuery(values url.Values, cfg Config) PageRequest {
	page, _ := strconv.Atoi(values.Get("page"))
	pageSize, _ := strconv.Atoi(values.Get("page_size"))

	req := PageRequest{Page: page, PageSize: pageSize}
	req.Normalize(cfg)
	return req
}

// Offset is the number of records skipped before this page.
func (r *PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// PageResult holds one page of data and its position in the full set.
type PageResult[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPageResult builds a PageResult, deriving TotalPages (minimum 1).
func NewPageResult[T any](data []T, total, page, pageSize int) PageResult[T] {
	totalPages := 1
	if pageSize > 0 && total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	if data == nil {
		data = []T{}
	}

	return PageResult[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Slice pages an in-memory slice. The request must already be normalized.
func Slice[T any](items []T, req PageRequest) PageResult[T] {
	start := min(req.Offset(), len(items))
	end := min(start+req.PageSize, len(items))

	page := make([]T, end-start)
	copy(page, items[start:end])

	return NewPageResult(page, len(items), req.Page, req.PageSize)
}
