// Package paging reads page, size and sort query parameters.
package paging

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 20
	MaxSize     = 100
	// MaxPage keeps Offset well inside int range.
	MaxPage = 1_000_000
)

// Params are zero-based page parameters with an optional sort.
type Params struct {
	Page    int
	Size    int
	SortBy  string
	SortDir string
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	page, size := min(max(p.Page, 0), MaxPage), min(max(p.Size, 0), MaxSize)
	return page * size
}

// TotalPages returns the number of pages needed for total rows.
func (p Params) TotalPages(total int64) int {
	if p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// Parse reads page, size, sort_by and sort_dir. sort_by falls back to
// defaultSort unless it is one of allowedSorts; sort_dir is "asc" or "desc"
// (the default).
func Parse(c echo.Context, defaultSort string, allowedSorts ...string) Params {
	p := Params{Page: 0, Size: DefaultSize, SortBy: defaultSort, SortDir: "desc"}

	if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 0 {
		p.Page = min(page, MaxPage)
	}
	if size, err := strconv.Atoi(c.QueryParam("size")); err == nil && size > 0 {
		p.Size = size
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}

	sortBy := c.QueryParam("sort_by")
	for _, allowed := range allowedSorts {
		if sortBy == allowed {
			p.SortBy = sortBy
			break
		}
	}
	if strings.EqualFold(c.QueryParam("sort_dir"), "asc") {
		p.SortDir = "asc"
	}
	return p
}
