package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/erp/appinv/internal/application/entities"
	"github.com/erp/appinv/internal/application/listing"
	"github.com/erp/appinv/internal/application/resource"
)

var upper = cases.Upper(language.Spanish)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

// headerLabel renders a column label as a table header: "Almacén" -> "ALMACÉN"
func headerLabel(label string) string {
	return upper.String(label)
}

// formatValue renders one cell according to the column format
func formatValue(v any, format string) string {
	if v == nil {
		return "-"
	}
	switch format {
	case resource.FormatMoney:
		if d, err := decimal.NewFromString(scalarText(v)); err == nil {
			return d.StringFixed(2)
		}
	case resource.FormatDate:
		if s, ok := v.(string); ok && len(s) >= 10 {
			return s[:10]
		}
	case resource.FormatBool:
		if b, ok := v.(bool); ok {
			if b {
				return "sí"
			}
			return "no"
		}
	case resource.FormatRef:
		if ref, ok := v.(map[string]any); ok {
			if n, ok := ref["nombre"]; ok && n != nil {
				return scalarText(n)
			}
			return formatValue(ref["id"], "")
		}
	}
	return scalarText(v)
}

func scalarText(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func writeRecords(out io.Writer, e resource.Entity, records []entities.Record) error {
	tw := newTable(out)
	headers := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		headers[i] = headerLabel(c.Label)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	cells := make([]string, len(e.Columns))
	for _, rec := range records {
		for i, c := range e.Columns {
			cells[i] = formatValue(rec[c.Key], c.Format)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeList(out io.Writer, e resource.Entity, st listing.State[entities.Record]) error {
	if len(st.Data) == 0 {
		fmt.Fprintf(out, "No %s found\n", strings.ToLower(e.Label))
	} else if err := writeRecords(out, e, st.Data); err != nil {
		return err
	}

	footer := fmt.Sprintf("Page %d of %d, %d items", st.CurrentPage, max(st.TotalPages, 1), st.TotalItems)
	if st.Sort != nil {
		footer += fmt.Sprintf(", sorted by %s %s", st.Sort.Column, st.Sort.Direction)
	}
	if keys := st.Filters.Keys(); len(keys) > 0 {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if st.Filters[k] != "" {
				parts = append(parts, k+"="+st.Filters[k])
			}
		}
		if len(parts) > 0 {
			footer += ", filters " + strings.Join(parts, " ")
		}
	}
	_, err := fmt.Fprintln(out, footer)
	return err
}

// writeRecord prints one record as field/value rows: declared columns first, then the rest by name
func writeRecord(out io.Writer, e resource.Entity, rec entities.Record) error {
	rows := make([][2]string, 0, len(rec))
	seen := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		seen[c.Key] = true
		if v, ok := rec[c.Key]; ok {
			rows = append(rows, [2]string{c.Label, formatValue(v, c.Format)})
		}
	}
	for _, k := range sortedKeys(rec) {
		if !seen[k] {
			rows = append(rows, [2]string{k, formatValue(rec[k], "")})
		}
	}
	return writePairs(out, rows)
}

func writePairs(out io.Writer, rows [][2]string) error {
	tw := newTable(out)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func writeEntities(out io.Writer, reg *resource.Registry) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "NAME\tLABEL\tENDPOINT\tFILTERS\tUPLOAD")
	for _, name := range reg.Names() {
		e := reg.MustLookup(name)
		filters := make([]string, len(e.Filters))
		for i, f := range e.Filters {
			filters[i] = f.Key
		}
		upload := "-"
		if e.Upload != nil {
			upload = e.Upload.Field
		}
		joined := strings.Join(filters, ",")
		if joined == "" {
			joined = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Label, e.Endpoint, joined, upload)
	}
	return tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
