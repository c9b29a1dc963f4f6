// Package trade holds sales and customer orders.
package trade

import (
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Payment terms and states of a sale
const (
	TipoPagoContado = "contado"
	TipoPagoCredito = "credito"

	EstadoPagoPendiente = "pendiente"
	EstadoPagoParcial   = "parcial"
	EstadoPagoPagado    = "pagado"
)

// VentaDetalle is one line of a sale
type VentaDetalle struct {
	ID             shared.ID       `json:"id,omitempty"`
	PresentacionID shared.ID       `json:"presentacion_id" validate:"required,gt=0"`
	Presentacion   *shared.Ref     `json:"presentacion,omitempty"`
	Cantidad       int             `json:"cantidad" validate:"required,gt=0"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario" validate:"gte=0"`
}

// Venta is a sale to a client from a warehouse
type Venta struct {
	ID                shared.ID        `json:"id,omitempty"`
	ClienteID         shared.ID        `json:"cliente_id" validate:"required,gt=0"`
	Cliente           *shared.Ref      `json:"cliente,omitempty"`
	AlmacenID         shared.ID        `json:"almacen_id" validate:"required,gt=0"`
	Almacen           *shared.Ref      `json:"almacen,omitempty"`
	VendedorID        shared.ID        `json:"vendedor_id,omitempty"`
	Fecha             string           `json:"fecha,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Total             decimal.Decimal  `json:"total"`
	TipoPago          string           `json:"tipo_pago" validate:"required,oneof=contado credito"`
	EstadoPago        string           `json:"estado_pago,omitempty" validate:"omitempty,oneof=pendiente parcial pagado"`
	FechaPagoEsperada string           `json:"fecha_pago_esperada,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Consumo           *ConsumoEstimado `json:"consumo,omitempty"`
	Detalles          []VentaDetalle   `json:"detalles" validate:"required,min=1,dive"`
}

// ConsumoEstimado is the client's estimated consumption used to project the next purchase
type ConsumoEstimado struct {
	ConsumoDiarioKg decimal.Decimal `json:"consumo_diario_kg"`
}

// ComputeTotal sums cantidad * precio_unitario across the lines
func (v *Venta) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range v.Detalles {
		total = total.Add(d.PrecioUnitario.Mul(decimal.NewFromInt(int64(d.Cantidad))))
	}
	return total
}

// Order states
const (
	EstadoPedidoProgramado = "programado"
	EstadoPedidoConfirmado = "confirmado"
	EstadoPedidoEntregado  = "entregado"
	EstadoPedidoCancelado  = "cancelado"
)

// PedidoDetalle is one line of an order
type PedidoDetalle struct {
	ID             shared.ID       `json:"id,omitempty"`
	PresentacionID shared.ID       `json:"presentacion_id" validate:"required,gt=0"`
	Presentacion   *shared.Ref     `json:"presentacion,omitempty"`
	Cantidad       int             `json:"cantidad" validate:"required,gt=0"`
	PrecioEstimado decimal.Decimal `json:"precio_estimado" validate:"gte=0"`
}

// Pedido is a scheduled order that becomes a Venta once delivered
type Pedido struct {
	ID           shared.ID       `json:"id,omitempty"`
	ClienteID    shared.ID       `json:"cliente_id" validate:"required,gt=0"`
	Cliente      *shared.Ref     `json:"cliente,omitempty"`
	AlmacenID    shared.ID       `json:"almacen_id" validate:"required,gt=0"`
	Almacen      *shared.Ref     `json:"almacen,omitempty"`
	VendedorID   shared.ID       `json:"vendedor_id,omitempty"`
	FechaPedido  string          `json:"fecha_pedido,omitempty" validate:"omitempty,datetime=2006-01-02"`
	FechaEntrega string          `json:"fecha_entrega" validate:"required,datetime=2006-01-02"`
	Estado       string          `json:"estado,omitempty" validate:"omitempty,oneof=programado confirmado entregado cancelado"`
	Notas        string          `json:"notas,omitempty"`
	Detalles     []PedidoDetalle `json:"detalles" validate:"required,min=1,dive"`
}
