package resource

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erp/appinv/internal/domain/shared"
)

//go:embed entities.yaml
var defaultEntities []byte

// Column formats
const (
	FormatText  = "text"
	FormatMoney = "money"
	FormatDate  = "date"
	FormatBool  = "bool"
	FormatRef   = "ref" // nested {id, nombre}: the nombre is shown
)

// Column is one column of a list table
type Column struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Sortable bool   `yaml:"sortable"`
	Format   string `yaml:"format"`
}

// Filter is one filter input of a list screen
type Filter struct {
	Key   string   `yaml:"key"`
	Label string   `yaml:"label"`
	Enum  []string `yaml:"enum,omitempty"`
}

// Upload marks entities created with an attached receipt
type Upload struct {
	Field    string   `yaml:"field"`
	URLField string   `yaml:"url_field"` // where the API exposes the stored file
	Types    []string `yaml:"types"`
}

// Entity describes one API collection
type Entity struct {
	Name           string         `yaml:"name"`
	Label          string         `yaml:"label"`
	Endpoint       string         `yaml:"endpoint"`
	PerPage        int            `yaml:"per_page"`
	DefaultSort    *shared.Sort   `yaml:"default_sort,omitempty"`
	DefaultFilters shared.Filters `yaml:"default_filters,omitempty"`
	Filters        []Filter       `yaml:"filters"`
	Columns        []Column       `yaml:"columns"`
	Upload         *Upload        `yaml:"upload,omitempty"`
}

// Column returns the column with key
func (e Entity) Column(key string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// Sortable reports whether column key may be used as sort_by
func (e Entity) Sortable(key string) bool {
	c, ok := e.Column(key)
	return ok && c.Sortable
}

// HasFilter reports whether key is a declared filter
func (e Entity) HasFilter(key string) bool {
	for _, f := range e.Filters {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Registry holds the entity definitions
type Registry struct {
	entities map[string]Entity
	names    []string
}

type registryFile struct {
	Entities []Entity `yaml:"entities"`
}

// DefaultRegistry returns the built-in entity definitions
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultEntities)
}

// ParseRegistry decodes and validates a YAML registry document
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse entity registry: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("entity registry is empty")
	}

	r := &Registry{entities: make(map[string]Entity, len(file.Entities))}
	for i, e := range file.Entities {
		if err := normalize(&e); err != nil {
			return nil, fmt.Errorf("entity #%d: %w", i+1, err)
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity %q declared twice", e.Name)
		}
		r.entities[e.Name] = e
		r.names = append(r.names, e.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func normalize(e *Entity) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if e.Endpoint == "" {
		e.Endpoint = "/" + e.Name
	}
	if !strings.HasPrefix(e.Endpoint, "/") {
		return fmt.Errorf("%s: endpoint must start with /", e.Name)
	}
	if e.Label == "" {
		e.Label = e.Name
	}
	if e.PerPage < 0 || e.PerPage > 100 {
		return fmt.Errorf("%s: per_page must be between 0 and 100", e.Name)
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("%s: at least one column is required", e.Name)
	}
	for i := range e.Columns {
		c := &e.Columns[i]
		if c.Key == "" {
			return fmt.Errorf("%s: column #%d has no key", e.Name, i+1)
		}
		if c.Label == "" {
			c.Label = c.Key
		}
		switch c.Format {
		case "":
			c.Format = FormatText
		case FormatText, FormatMoney, FormatDate, FormatBool, FormatRef:
		default:
			return fmt.Errorf("%s.%s: unknown format %q", e.Name, c.Key, c.Format)
		}
	}
	if e.DefaultSort != nil {
		if e.DefaultSort.Direction == "" {
			e.DefaultSort.Direction = shared.SortAsc
		}
		if !e.DefaultSort.Direction.IsValid() {
			return fmt.Errorf("%s: invalid default sort direction %q", e.Name, e.DefaultSort.Direction)
		}
		if !e.Sortable(e.DefaultSort.Column) {
			return fmt.Errorf("%s: default sort column %q is not sortable", e.Name, e.DefaultSort.Column)
		}
	}
	if e.Upload != nil && e.Upload.Field == "" {
		return fmt.Errorf("%s: upload field is required", e.Name)
	}
	if e.Upload != nil && e.Upload.URLField == "" {
		e.Upload.URLField = "url_" + e.Upload.Field
	}
	return nil
}

// Lookup returns the entity called name
func (r *Registry) Lookup(name string) (Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// MustLookup is Lookup for names known at compile time
func (r *Registry) MustLookup(name string) Entity {
	e, ok := r.entities[name]
	if !ok {
		panic(fmt.Sprintf("resource: unknown entity %q", name))
	}
	return e
}

// Names returns the entity names in lexical order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
