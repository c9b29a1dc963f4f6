// Package inventory holds warehouses and incoming lots of raw material.
package inventory

import (
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Almacen is a warehouse / point of sale
type Almacen struct {
	ID        shared.ID `json:"id,omitempty"`
	Nombre    string    `json:"nombre" validate:"required,max=100"`
	Direccion string    `json:"direccion,omitempty"`
	Ciudad    string    `json:"ciudad,omitempty" validate:"omitempty,max=100"`
	CreatedAt string    `json:"created_at,omitempty"`
}

// Lote is a batch of raw material received from a supplier
type Lote struct {
	ID                   shared.ID       `json:"id,omitempty"`
	ProductoID           shared.ID       `json:"producto_id" validate:"required,gt=0"`
	Producto             *shared.Ref     `json:"producto,omitempty"`
	ProveedorID          shared.ID       `json:"proveedor_id" validate:"required,gt=0"`
	Proveedor            *shared.Ref     `json:"proveedor,omitempty"`
	Descripcion          string          `json:"descripcion,omitempty"`
	PesoHumedoKg         decimal.Decimal `json:"peso_humedo_kg" validate:"gte=0"`
	PesoSecoKg           decimal.Decimal `json:"peso_seco_kg" validate:"gte=0"`
	CantidadDisponibleKg decimal.Decimal `json:"cantidad_disponible_kg"`
	FechaIngreso         string          `json:"fecha_ingreso" validate:"required,datetime=2006-01-02"`
	CreatedAt            string          `json:"created_at,omitempty"`
}
