package domain

// PaginationParams selects one page of a place listing. The store is local,
// but a years-old logbook can still hold thousands of places, so list
// responses page instead of handing the UI everything at once.
type PaginationParams struct {
	// Page is 1-indexed; Offset converts it for SQL.
	Page int
	// Limit is the page size.
	Limit int
}

// NewPaginationParams normalizes the optional page/limit query values.
// Absent or non-positive values fall back to page 1 with 20 items, and the
// limit is capped at 100 so a single request can never drag the whole store
// through the HTTP layer.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: 20}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = *limit
		if p.Limit > 100 {
			p.Limit = 100
		}
	}
	return p
}

// Offset returns the zero-based row offset matching Page and Limit.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}
