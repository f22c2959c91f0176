package shared

import "math"

const (
	// DefaultPageSize is used when callers omit a page size.
	DefaultPageSize = 20
	// MaxPageSize caps page sizes requested by callers.
	MaxPageSize = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = ClampPage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ClampPage normalises 1-based page numbers and page sizes.
func ClampPage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	if maxPage := MaxPage(perPage); page > maxPage {
		page = maxPage
	}
	return page, perPage
}

// Offset returns the row offset of a clamped page.
func Offset(page, perPage int) int {
	page, perPage = ClampPage(page, perPage)
	return (page - 1) * perPage
}

// MaxPage is the last page whose offset, plus one extra row for look-ahead,
// still fits in an int.
func MaxPage(perPage int) int {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	return math.MaxInt/perPage - 1
}
