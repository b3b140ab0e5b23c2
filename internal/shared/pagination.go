package shared

import (
	"net/url"
	"strconv"
)

// Pagination carries parsed page parameters for list queries.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta is the pagination block returned in list response envelopes.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ParsePagination reads page/limit query parameters with sane bounds.
func ParsePagination(query url.Values) Pagination {
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return Pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// NewPageMeta computes the meta block for a total row count.
func NewPageMeta(total int, p Pagination) PageMeta {
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	return PageMeta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
