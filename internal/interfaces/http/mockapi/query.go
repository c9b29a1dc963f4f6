package mockapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/shared"
)

// Date range filters, applied to the first date column of an entity
const (
	paramDateFrom = "fecha_inicio"
	paramDateTo   = "fecha_fin"
	maxPerPage    = 100
)

// listQuery is a parsed list request
type listQuery struct {
	page    int
	perPage int
	filters map[string]string
	sort    *shared.Sort
}

// parseListQuery reads page, per_page, sort_by, sort_order and the filters of a list request
func parseListQuery(e resource.Entity, values url.Values, defaultPerPage int) (*listQuery, map[string]string) {
	q := &listQuery{page: 1, perPage: defaultPerPage, filters: map[string]string{}}
	fields := map[string]string{}

	if v := values.Get(shared.ParamPage); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields[shared.ParamPage] = "Must be a positive integer"
		}
		q.page = n
	}
	if v := values.Get(shared.ParamPerPage); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPerPage {
			fields[shared.ParamPerPage] = fmt.Sprintf("Must be between 1 and %d", maxPerPage)
		}
		q.perPage = n
	}
	if by := values.Get(shared.ParamSortBy); by != "" {
		if !e.Sortable(by) {
			fields[shared.ParamSortBy] = "Column is not sortable"
		}
		dir := shared.SortDirection(strings.ToLower(values.Get(shared.ParamSortOrder)))
		if dir == "" {
			dir = shared.SortAsc
		}
		if !dir.IsValid() {
			fields[shared.ParamSortOrder] = "Must be one of: asc desc"
		}
		q.sort = &shared.Sort{Column: by, Direction: dir}
	}

	for key, vals := range values {
		switch key {
		case shared.ParamPage, shared.ParamPerPage, shared.ParamSortBy, shared.ParamSortOrder:
			continue
		}
		if v := strings.TrimSpace(vals[0]); v != "" {
			q.filters[key] = v
		}
	}
	if len(fields) > 0 {
		return nil, fields
	}
	return q, nil
}

// apply filters, sorts and slices records, returning the page and the filtered total
func (q *listQuery) apply(e resource.Entity, records []Record) ([]Record, int) {
	dateKey := dateColumn(e)
	matched := records[:0]
	for _, rec := range records {
		if q.matches(e, dateKey, rec) {
			matched = append(matched, rec)
		}
	}

	if q.sort != nil {
		col, desc := q.sort.Column, q.sort.Direction == shared.SortDesc
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][col], matched[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	total := len(matched)
	if q.page-1 >= (total+q.perPage-1)/q.perPage {
		return []Record{}, total
	}
	start := (q.page - 1) * q.perPage
	end := start + q.perPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

func (q *listQuery) matches(e resource.Entity, dateKey string, rec Record) bool {
	for key, want := range q.filters {
		switch {
		case key == paramDateFrom && dateKey != "":
			if scalar(rec[dateKey]) < want {
				return false
			}
		case key == paramDateTo && dateKey != "":
			if d := scalar(rec[dateKey]); d == "" || d[:min(len(d), len(want))] > want {
				return false
			}
		case exactFilter(e, key):
			if fold(scalar(rec[key])) != fold(want) {
				return false
			}
		default:
			if !strings.Contains(fold(scalar(rec[key])), fold(want)) {
				return false
			}
		}
	}
	return true
}

// exactFilter reports whether key is compared by equality: ids, enums and booleans
func exactFilter(e resource.Entity, key string) bool {
	if key == "id" || strings.HasSuffix(key, "_id") {
		return true
	}
	for _, f := range e.Filters {
		if f.Key == key && len(f.Enum) > 0 {
			return true
		}
	}
	if c, ok := e.Column(key); ok && c.Format == resource.FormatBool {
		return true
	}
	return false
}

func dateColumn(e resource.Entity) string {
	for _, c := range e.Columns {
		if c.Format == resource.FormatDate {
			return c.Key
		}
	}
	return ""
}

// scalar renders a stored value as filter/sort text. References show their nombre.
func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		return scalar(val["nombre"])
	default:
		return fmt.Sprint(val)
	}
}

// compareValues orders numbers numerically and everything else by folded text
func compareValues(a, b any) int {
	sa, sb := scalar(a), scalar(b)
	fa, errA := strconv.ParseFloat(sa, 64)
	fb, errB := strconv.ParseFloat(sb, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fold(sa), fold(sb))
}

// fold strips accents and case: "Lima Perú" and "lima peru" fold equal
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}
