// Package pagination handles limit/offset listing parameters and the page
// envelope returned by list endpoints.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// Parse reads ?limit= and ?offset=. Missing values take the defaults and a
// limit above MaxLimit is clamped; malformed or negative values are errors.
func Parse(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Params{}, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		p.Limit = n
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("offset must be a non-negative integer, got %q", raw)
		}
		p.Offset = n
	}
	return p, nil
}

// Page is one window of a listing. NextOffset is set while more items
// remain.
type Page[T any] struct {
	Items      []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// Paginate cuts the page selected by p out of items. Items is never nil. A
// non-positive limit returns everything from the offset on.
func Paginate[T any](items []T, p Params) Page[T] {
	page := Page[T]{Items: []T{}, Total: len(items), Limit: p.Limit, Offset: p.Offset}
	if p.Offset < len(items) {
		end := len(items)
		if p.Limit > 0 && p.Offset+p.Limit < end {
			end = p.Offset + p.Limit
		}
		page.Items = items[p.Offset:end]
	}
	if next := p.Offset + len(page.Items); len(page.Items) > 0 && next < len(items) {
		page.HasMore = true
		page.NextOffset = &next
	}
	return page
}
