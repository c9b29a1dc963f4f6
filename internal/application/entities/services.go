// Package entities wires every API entity to its resource and builds list and
// item controllers configured from the entity registry.
package entities

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/application/crud"
	"github.com/erp/appinv/internal/application/listing"
	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/catalog"
	"github.com/erp/appinv/internal/domain/finance"
	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/domain/inventory"
	"github.com/erp/appinv/internal/domain/partner"
	"github.com/erp/appinv/internal/domain/trade"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/config"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
	"github.com/erp/appinv/internal/infrastructure/validation"
)

// Record is an entity decoded without a static type, used by generic views
type Record = map[string]any

// Options configures Services
type Options struct {
	PerPage     int // used when an entity declares no per_page
	StalePolicy listing.StalePolicy
	Logger      *zap.Logger
	Metrics     *telemetry.ClientMetrics
}

// OptionsFromConfig maps the list section of the configuration
func OptionsFromConfig(cfg config.ListConfig, log *zap.Logger, metrics *telemetry.ClientMetrics) Options {
	return Options{
		PerPage:     cfg.DefaultPerPage,
		StalePolicy: listing.StalePolicy(cfg.StalePolicy),
		Logger:      log,
		Metrics:     metrics,
	}
}

// Services gives typed access to every entity of the API
type Services struct {
	client    *apiclient.Client
	registry  *resource.Registry
	validator *validation.Validator
	opts      Options
}

// NewServices creates the entity services
func NewServices(client *apiclient.Client, registry *resource.Registry, opts Options) *Services {
	opts.Logger = logger.OrNop(opts.Logger)
	return &Services{
		client:    client,
		registry:  registry,
		validator: validation.New(),
		opts:      opts,
	}
}

// Registry returns the entity definitions
func (s *Services) Registry() *resource.Registry {
	return s.registry
}

// Entity returns the definition of name
func (s *Services) Entity(name string) (resource.Entity, error) {
	e, ok := s.registry.Lookup(name)
	if !ok {
		return resource.Entity{}, fmt.Errorf("unknown entity %q", name)
	}
	return e, nil
}

func (s *Services) Clientes() *resource.Resource[partner.Cliente] {
	return mustResource[partner.Cliente](s, "clientes")
}

func (s *Services) Proveedores() *resource.Resource[partner.Proveedor] {
	return mustResource[partner.Proveedor](s, "proveedores")
}

func (s *Services) Productos() *resource.Resource[catalog.Producto] {
	return mustResource[catalog.Producto](s, "productos")
}

func (s *Services) Presentaciones() *resource.Resource[catalog.Presentacion] {
	return mustResource[catalog.Presentacion](s, "presentaciones")
}

func (s *Services) Almacenes() *resource.Resource[inventory.Almacen] {
	return mustResource[inventory.Almacen](s, "almacenes")
}

func (s *Services) Lotes() *resource.Resource[inventory.Lote] {
	return mustResource[inventory.Lote](s, "lotes")
}

func (s *Services) Ventas() *resource.Resource[trade.Venta] {
	return mustResource[trade.Venta](s, "ventas")
}

func (s *Services) Pedidos() *resource.Resource[trade.Pedido] {
	return mustResource[trade.Pedido](s, "pedidos")
}

func (s *Services) Pagos() *resource.Resource[finance.Pago] {
	return mustResource[finance.Pago](s, "pagos")
}

func (s *Services) Gastos() *resource.Resource[finance.Gasto] {
	return mustResource[finance.Gasto](s, "gastos")
}

func (s *Services) Depositos() *resource.Resource[finance.DepositoBancario] {
	return mustResource[finance.DepositoBancario](s, "depositos")
}

func (s *Services) Usuarios() *resource.Resource[identity.Usuario] {
	return mustResource[identity.Usuario](s, "usuarios")
}

// ResourceFor binds T to the endpoint of entity name
func ResourceFor[T any](s *Services, name string) (*resource.Resource[T], error) {
	e, err := s.Entity(name)
	if err != nil {
		return nil, err
	}
	return resource.ForEntity[T](s.client, e), nil
}

func mustResource[T any](s *Services, name string) *resource.Resource[T] {
	return resource.ForEntity[T](s.client, s.registry.MustLookup(name))
}

// NewList builds a list controller for entity name with its registry defaults
func NewList[T any](s *Services, name string) (*listing.Controller[T], error) {
	return NewListWith[T](s, name, nil)
}

// NewListWith is NewList with a hook to override the registry defaults
func NewListWith[T any](s *Services, name string, adjust func(*listing.Options)) (*listing.Controller[T], error) {
	e, err := s.Entity(name)
	if err != nil {
		return nil, err
	}
	opts := ListOptions(e, s.opts)
	if adjust != nil {
		adjust(&opts)
	}
	res := resource.ForEntity[T](s.client, e)
	return listing.New(res.List, opts), nil
}

// NewItem builds an item controller for entity name, validating forms of T
func NewItem[T any](s *Services, name string) (*crud.Controller[T], error) {
	e, err := s.Entity(name)
	if err != nil {
		return nil, err
	}
	res := resource.ForEntity[T](s.client, e)
	return crud.New[T](res, crud.Options{
		Name:      e.Name,
		Validator: s.validator,
		Logger:    s.opts.Logger,
		Metrics:   s.opts.Metrics,
	}), nil
}

// NewRecordList builds an untyped list controller, for views driven only by the registry
func (s *Services) NewRecordList(name string) (*listing.Controller[Record], error) {
	return NewList[Record](s, name)
}

// NewRecordItem builds an untyped item controller without form validation
func (s *Services) NewRecordItem(name string) (*crud.Controller[Record], error) {
	e, err := s.Entity(name)
	if err != nil {
		return nil, err
	}
	return crud.New[Record](resource.ForEntity[Record](s.client, e), crud.Options{
		Name:    e.Name,
		Logger:  s.opts.Logger,
		Metrics: s.opts.Metrics,
	}), nil
}

// ListOptions derives list controller options from an entity definition
func ListOptions(e resource.Entity, opts Options) listing.Options {
	perPage := e.PerPage
	if perPage == 0 {
		perPage = opts.PerPage
	}
	return listing.Options{
		Name:           e.Name,
		PerPage:        perPage,
		DefaultFilters: e.DefaultFilters,
		DefaultSort:    e.DefaultSort,
		StalePolicy:    opts.StalePolicy,
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
	}
}
