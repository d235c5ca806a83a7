// Package listing turns post-listing request parameters into a
// normalized query descriptor shared by the public and management
// listings.
package listing

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	SortLatest = "latest"
	SortOldest = "oldest"

	DefaultPageSize = 12
	MaxPageSize     = 12
)

// Query describes one page of a post listing. Search matches the title
// as a case-insensitive substring; Tags match with OR semantics (a post
// qualifies when it carries any of them).
type Query struct {
	Search   string
	Tags     []string
	Sort     string
	Page     int
	PageSize int
}

// Parse reads listing parameters from URL query values and normalizes
// them. Unparseable numbers fall back to defaults rather than erroring;
// an out-of-range page is served as an empty page downstream.
func Parse(values url.Values) Query {
	q := Query{
		Search: strings.TrimSpace(values.Get("search")),
		Sort:   values.Get("sort"),
		Page:   atoiDefault(values.Get("page"), 1),
	}
	q.PageSize = atoiDefault(values.Get("pageSize"), DefaultPageSize)

	if raw := strings.TrimSpace(values.Get("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				q.Tags = append(q.Tags, tag)
			}
		}
	}

	return q.Normalize()
}

// Normalize clamps the page size and sort order to valid values. The
// page number is kept as requested: page 0 and negative pages are out
// of range and are served as empty pages, like a page past the end.
func (q Query) Normalize() Query {
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Sort != SortOldest {
		q.Sort = SortLatest
	}
	return q
}

// InRange reports whether the requested page number can hold rows at
// all. Pages past the end are in range; they come back empty from the
// store on their own.
func (q Query) InRange() bool {
	return q.Page >= 1
}

// Limit is the row limit for the requested page, zero when the page is
// out of range.
func (q Query) Limit() int {
	if !q.InRange() {
		return 0
	}
	return q.PageSize
}

// Offset is the row offset of the requested page.
func (q Query) Offset() int {
	if !q.InRange() {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// TotalPages computes ceil(total / pageSize).
func (q Query) TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + q.PageSize - 1) / q.PageSize
}

func atoiDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
