package mockapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/shared"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Perú":        "peru",
		"ÁÉÍÓÚ ñ":     "aeiou n",
		"Almacén Sur": "almacen sur",
		"plain":       "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, fold(in), in)
	}
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, compareValues("9", "10"), "numbers compare numerically")
	assert.Equal(t, 1, compareValues(int64(12), "3.5"))
	assert.Equal(t, 0, compareValues("Ávila", "avila"))
	assert.Equal(t, -1, compareValues(map[string]any{"nombre": "Ana"}, map[string]any{"nombre": "Beto"}), "references compare by nombre")
	assert.Equal(t, -1, compareValues(nil, "a"))
}

func TestParseListQuery(t *testing.T) {
	reg, err := resource.DefaultRegistry()
	require.NoError(t, err)
	pedidos := reg.MustLookup("pedidos")

	q, fields := parseListQuery(pedidos, url.Values{
		"estado":     {"programado"},
		"sort_by":    {"fecha_entrega"},
		"sort_order": {"DESC"},
		"notas":      {"  "},
	}, 10)
	require.Nil(t, fields)
	assert.Equal(t, 1, q.page)
	assert.Equal(t, 10, q.perPage)
	assert.Equal(t, &shared.Sort{Column: "fecha_entrega", Direction: shared.SortDesc}, q.sort)
	assert.Equal(t, map[string]string{"estado": "programado"}, q.filters, "blank filters are dropped")

	_, fields = parseListQuery(pedidos, url.Values{"sort_by": {"fecha_entrega"}, "sort_order": {"up"}}, 10)
	assert.Contains(t, fields, "sort_order")
}

func TestExactFilter(t *testing.T) {
	reg, err := resource.DefaultRegistry()
	require.NoError(t, err)
	productos := reg.MustLookup("productos")
	pagos := reg.MustLookup("pagos")

	assert.True(t, exactFilter(productos, "activo"))
	assert.True(t, exactFilter(pagos, "venta_id"))
	assert.True(t, exactFilter(pagos, "metodo_pago"))
	assert.False(t, exactFilter(productos, "nombre"))

	q := &listQuery{page: 1, perPage: 10, filters: map[string]string{"activo": "true"}}
	items, total := q.apply(productos, []Record{
		{"id": int64(1), "nombre": "A", "activo": true},
		{"id": int64(2), "nombre": "B", "activo": false},
	})
	assert.Equal(t, 1, total)
	assert.Equal(t, "A", items[0]["nombre"])
}
