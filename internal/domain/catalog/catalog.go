// Package catalog holds what the business sells: products and their presentations.
package catalog

import (
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Producto is a base product (e.g. a grade of charcoal)
type Producto struct {
	ID           shared.ID       `json:"id,omitempty"`
	Nombre       string          `json:"nombre" validate:"required,max=255"`
	Descripcion  string          `json:"descripcion,omitempty"`
	PrecioCompra decimal.Decimal `json:"precio_compra" validate:"gte=0"`
	Activo       bool            `json:"activo"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

// Presentation types accepted by the API
const (
	TipoBruto     = "bruto"
	TipoProcesado = "procesado"
	TipoMerma     = "merma"
	TipoBriqueta  = "briqueta"
	TipoDetalle   = "detalle"
)

// Presentacion is a sellable packaging of a product (e.g. 10kg bag)
type Presentacion struct {
	ID          shared.ID       `json:"id,omitempty"`
	ProductoID  shared.ID       `json:"producto_id" validate:"required,gt=0"`
	Producto    *shared.Ref     `json:"producto,omitempty"`
	Nombre      string          `json:"nombre" validate:"required,max=100"`
	CapacidadKg decimal.Decimal `json:"capacidad_kg" validate:"gt=0"`
	Tipo        string          `json:"tipo" validate:"required,oneof=bruto procesado merma briqueta detalle"`
	PrecioVenta decimal.Decimal `json:"precio_venta" validate:"gte=0"`
	Activo      bool            `json:"activo"`
	URLFoto     string          `json:"url_foto,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}
