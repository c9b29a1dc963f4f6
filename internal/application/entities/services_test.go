package entities

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/appinv/internal/application/listing"
	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/partner"
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/erp/appinv/internal/domain/trade"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/config"
	"github.com/erp/appinv/internal/infrastructure/validation"
)

func newServices(t *testing.T, h http.HandlerFunc) *Services {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	client, err := apiclient.New(apiclient.Options{BaseURL: server.URL})
	require.NoError(t, err)
	reg, err := resource.DefaultRegistry()
	require.NoError(t, err)
	return NewServices(client, reg, Options{PerPage: 15, Logger: zaptest.NewLogger(t)})
}

func TestServices_TypedAccessors(t *testing.T) {
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Equal(t, "/clientes", s.Clientes().Endpoint())
	assert.Equal(t, "/proveedores", s.Proveedores().Endpoint())
	assert.Equal(t, "/productos", s.Productos().Endpoint())
	assert.Equal(t, "/presentaciones", s.Presentaciones().Endpoint())
	assert.Equal(t, "/almacenes", s.Almacenes().Endpoint())
	assert.Equal(t, "/lotes", s.Lotes().Endpoint())
	assert.Equal(t, "/ventas", s.Ventas().Endpoint())
	assert.Equal(t, "/pedidos", s.Pedidos().Endpoint())
	assert.Equal(t, "/pagos", s.Pagos().Endpoint())
	assert.Equal(t, "/gastos", s.Gastos().Endpoint())
	assert.Equal(t, "/depositos", s.Depositos().Endpoint())
	assert.Equal(t, "/usuarios", s.Usuarios().Endpoint())
}

func TestNewList_UsesRegistryDefaults(t *testing.T) {
	var got []string
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.RawQuery)
		w.Write([]byte(`{"data":[{"id":1,"cliente_id":2,"almacen_id":1,"tipo_pago":"contado","total":"10"}],"pagina":1,"total_paginas":1,"total_items":1}`))
	})

	ventas, err := NewList[trade.Venta](s, "ventas")
	require.NoError(t, err)
	ventas.Load(context.Background())

	st := ventas.State()
	assert.Empty(t, st.Error)
	assert.Equal(t, 20, st.ItemsPerPage, "per_page from the registry")
	require.Len(t, st.Data, 1)
	assert.Equal(t, shared.ID(2), st.Data[0].ClienteID)
	assert.Equal(t, []string{"page=1&per_page=20&sort_by=fecha&sort_order=desc"}, got)
}

func TestNewList_FallsBackToConfiguredPerPage(t *testing.T) {
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15", r.URL.Query().Get("per_page"))
		assert.Equal(t, "programado", r.URL.Query().Get("estado"))
		w.Write([]byte(`{"data":[],"pagina":1,"total_paginas":0}`))
	})

	pedidos, err := s.NewRecordList("pedidos")
	require.NoError(t, err)
	pedidos.Load(context.Background())
	assert.Equal(t, 15, pedidos.State().ItemsPerPage)
	assert.Empty(t, pedidos.State().Error)
}

func TestNewListWith_OverridesDefaults(t *testing.T) {
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("per_page"))
		assert.Equal(t, "total", q.Get("sort_by"))
		assert.Equal(t, "credito", q.Get("tipo_pago"))
		w.Write([]byte(`{"data":[],"pagina":1,"total_paginas":0}`))
	})

	ventas, err := NewListWith[Record](s, "ventas", func(o *listing.Options) {
		o.PerPage = 5
		o.DefaultSort = &shared.Sort{Column: "total", Direction: shared.SortAsc}
		o.DefaultFilters = shared.Filters{"tipo_pago": "credito"}
	})
	require.NoError(t, err)
	ventas.Load(context.Background())
	assert.Empty(t, ventas.State().Error)
	assert.Equal(t, shared.Filters{"tipo_pago": "credito"}, ventas.State().Filters)
}

func TestNewItem_ValidatesBeforeSending(t *testing.T) {
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("invalid form must not be sent")
	})

	item, err := NewItem[partner.Cliente](s, "clientes")
	require.NoError(t, err)

	assert.Nil(t, item.CreateItem(context.Background(), &partner.Cliente{}))
	assert.ErrorIs(t, item.Err(), validation.ErrInvalid)
	assert.Contains(t, item.State().FieldErrors, "nombre")
}

func TestNewRecordItem(t *testing.T) {
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gastos/3", r.URL.Path)
		w.Write([]byte(`{"id":3,"descripcion":"Flete"}`))
	})

	item, err := s.NewRecordItem("gastos")
	require.NoError(t, err)
	require.True(t, item.LoadItem(context.Background(), 3))
	assert.Equal(t, "Flete", (*item.State().Item)["descripcion"])
}

func TestUnknownEntity(t *testing.T) {
	s := newServices(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := NewList[Record](s, "facturas")
	assert.Error(t, err)
	_, err = NewItem[Record](s, "facturas")
	assert.Error(t, err)
	_, err = ResourceFor[Record](s, "facturas")
	assert.Error(t, err)
	_, err = s.NewRecordItem("facturas")
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.List.StalePolicy = config.StaleLastResponse

	opts := OptionsFromConfig(cfg.List, nil, nil)
	assert.Equal(t, listing.StaleLastResponse, opts.StalePolicy)
	assert.Equal(t, 10, opts.PerPage)
}
