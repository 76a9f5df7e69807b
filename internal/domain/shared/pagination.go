package shared

// Page size bounds applied by PageRequest.Normalize
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a 1-based page of a listing
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the page to at least 1 and the size into
// [1, MaxPageSize], using DefaultPageSize when unset.
func (p PageRequest) Normalize() PageRequest {
	p.Page = max(p.Page, 1)
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset is the number of items before the page
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginated is one page of a listing together with its totals
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginated wraps an already cut page
func NewPaginated[T any](items []T, total int64, page, pageSize int) Paginated[T] {
	pageSize = max(pageSize, 1)
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// PageOf cuts the requested page out of all. A page past the end is empty.
func PageOf[T any](all []T, req PageRequest) Paginated[T] {
	req = req.Normalize()
	start := min(req.Offset(), len(all))
	end := min(start+req.PageSize, len(all))
	return NewPaginated(all[start:end], int64(len(all)), req.Page, req.PageSize)
}
