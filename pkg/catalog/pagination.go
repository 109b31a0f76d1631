package catalog

// DefaultPageLimit is the page size used when none is configured.
const DefaultPageLimit = 20

// ViewMode selects which listing payload shape is requested.
type ViewMode string

const (
	ViewGrid   ViewMode = "grid"
	ViewList   ViewMode = "list"
	ViewDetail ViewMode = "detail"
	ViewFull   ViewMode = "full"
)

// ParseViewMode returns the view mode for s, falling back to grid.
func ParseViewMode(s string) ViewMode {
	switch ViewMode(s) {
	case ViewList, ViewDetail, ViewFull:
		return ViewMode(s)
	default:
		return ViewGrid
	}
}

// Pagination is the page window of a listing search. Total and HasMore are
// derived from the server response.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// NewPagination returns page 1 with the given limit.
func NewPagination(limit int) Pagination {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return Pagination{Page: 1, Limit: limit}
}

// Offset returns the zero-based offset of the first listing on the page.
func (p Pagination) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Recompute updates Total and HasMore after a page of returned listings arrived.
func (p *Pagination) Recompute(total, returned int) {
	p.Total = total
	p.HasMore = p.Offset()+returned < total
}

// Reset moves back to page 1 and zeroes the server-derived fields.
func (p *Pagination) Reset() {
	p.Page = 1
	p.Total = 0
	p.HasMore = false
}

// TotalPages returns the number of pages needed for Total listings.
func (p Pagination) TotalPages() int {
	if p.Limit < 1 || p.Total < 1 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
