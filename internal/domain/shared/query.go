package shared

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ID is the identifier type used by every API entity
type ID = int64

// SortDirection is the direction of a list sort
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Toggle returns the opposite direction
func (d SortDirection) Toggle() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// IsValid reports whether the direction is asc or desc
func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// Sort is the column/direction pair of a list request
type Sort struct {
	Column    string        `json:"column" yaml:"column"`
	Direction SortDirection `json:"direction" yaml:"direction"`
}

// Filters holds free-form filter values keyed by query parameter name
type Filters map[string]string

// Clone returns an independent copy of the filters
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the filter keys in lexical order
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reserved query parameter names of the list endpoint convention
const (
	ParamPage      = "page"
	ParamPerPage   = "per_page"
	ParamSortBy    = "sort_by"
	ParamSortOrder = "sort_order"
)

// ListQuery describes one page request against a list endpoint
type ListQuery struct {
	Page    int
	PerPage int
	Filters Filters
	Sort    *Sort
}

// Values encodes the query using the list endpoint convention:
// page, per_page, every non-empty filter, sort_by and sort_order.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(q.Page))
	v.Set(ParamPerPage, strconv.Itoa(q.PerPage))
	for _, k := range q.Filters.Keys() {
		val := strings.TrimSpace(q.Filters[k])
		if val == "" || isReserved(k) {
			continue
		}
		v.Set(k, val)
	}
	if q.Sort != nil && q.Sort.Column != "" {
		v.Set(ParamSortBy, q.Sort.Column)
		dir := q.Sort.Direction
		if !dir.IsValid() {
			dir = SortAsc
		}
		v.Set(ParamSortOrder, string(dir))
	}
	return v
}

func isReserved(key string) bool {
	switch key {
	case ParamPage, ParamPerPage, ParamSortBy, ParamSortOrder:
		return true
	}
	return false
}
