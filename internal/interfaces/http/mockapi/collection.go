package mockapi

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/erp/appinv/internal/application/resource"
)

// Record is one stored entity, kept as decoded JSON
type Record = map[string]any

// refTargets maps foreign keys to the collection they point at. A record with
// cliente_id also gets a nested cliente {id, nombre}.
var refTargets = map[string]string{
	"cliente_id":      "clientes",
	"proveedor_id":    "proveedores",
	"producto_id":     "productos",
	"presentacion_id": "presentaciones",
	"almacen_id":      "almacenes",
	"venta_id":        "ventas",
}

// collection is the in-memory table of one entity
type collection struct {
	entity resource.Entity

	mu     sync.RWMutex
	nextID int64
	items  map[int64]Record
}

func newCollection(e resource.Entity) *collection {
	return &collection{entity: e, items: make(map[int64]Record)}
}

func (c *collection) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// get returns a copy of the record id
func (c *collection) get(id int64) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return cloneRecord(rec), true
}

// all returns copies of every record ordered by id
func (c *collection) all() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, 0, len(c.items))
	for _, rec := range c.items {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := toID(out[i]["id"])
		b, _ := toID(out[j]["id"])
		return a < b
	})
	return out
}

// insert assigns an id and a creation timestamp and stores rec
func (c *collection) insert(rec Record) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	rec = cloneRecord(rec)
	rec["id"] = c.nextID
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	c.items[c.nextID] = rec
	return cloneRecord(rec)
}

// update merges patch into the record id. The id never changes.
func (c *collection) update(id int64, patch Record) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.items[id]
	if !ok {
		return nil, false
	}
	for k, v := range patch {
		if k == "id" || k == "created_at" {
			continue
		}
		rec[k] = v
	}
	return cloneRecord(rec), true
}

func (c *collection) remove(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

// store holds every collection of the sandbox
type store struct {
	collections map[string]*collection
}

func newStore(reg *resource.Registry) *store {
	s := &store{collections: make(map[string]*collection)}
	for _, name := range reg.Names() {
		s.collections[name] = newCollection(reg.MustLookup(name))
	}
	return s
}

func (s *store) collection(name string) (*collection, bool) {
	c, ok := s.collections[name]
	return c, ok
}

// resolveRefs adds the nested {id, nombre} reference for every known foreign key of rec
func (s *store) resolveRefs(rec Record) {
	for key, target := range refTargets {
		id, ok := toID(rec[key])
		if !ok {
			continue
		}
		coll, ok := s.collections[target]
		if !ok {
			continue
		}
		ref, ok := coll.get(id)
		if !ok {
			continue
		}
		rec[key[:len(key)-len("_id")]] = map[string]any{"id": id, "nombre": displayName(ref)}
	}
}

// displayName is the text a reference shows for rec
func displayName(rec Record) string {
	for _, key := range []string{"nombre", "username", "descripcion"} {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	id, _ := toID(rec["id"])
	return "#" + strconv.FormatInt(id, 10)
}

// toID reads an integer id from any JSON-ish value
func toID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// cloneRecord copies rec through JSON so nested values are not shared
func cloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
