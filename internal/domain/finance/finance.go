// Package finance holds money movements: payments, expenses and bank deposits.
package finance

import (
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Payment methods accepted by the API
const (
	MetodoEfectivo      = "efectivo"
	MetodoDeposito      = "deposito"
	MetodoTransferencia = "transferencia"
	MetodoTarjeta       = "tarjeta"
	MetodoYapePlin      = "yape_plin"
	MetodoOtro          = "otro"
)

// Pago is a payment registered against a sale, optionally with a receipt image
type Pago struct {
	ID             shared.ID       `json:"id,omitempty"`
	VentaID        shared.ID       `json:"venta_id" validate:"required,gt=0"`
	Venta          *shared.Ref     `json:"venta,omitempty"`
	UsuarioID      shared.ID       `json:"usuario_id,omitempty"`
	Monto          decimal.Decimal `json:"monto" validate:"gt=0"`
	FechaPago      string          `json:"fecha" validate:"required,datetime=2006-01-02"`
	MetodoPago     string          `json:"metodo_pago" validate:"required,oneof=efectivo deposito transferencia tarjeta yape_plin otro"`
	Referencia     string          `json:"referencia,omitempty" validate:"omitempty,max=100"`
	ComprobanteURL string          `json:"url_comprobante,omitempty"`
	DepositoID     *shared.ID      `json:"deposito_id,omitempty"`
}

// Expense categories
const (
	CategoriaLogistica    = "logistica"
	CategoriaPersonal     = "personal"
	CategoriaServicios    = "servicios"
	CategoriaAlimentacion = "alimentacion"
	CategoriaOtros        = "otros"
)

// Gasto is an operating expense of a warehouse
type Gasto struct {
	ID          shared.ID       `json:"id,omitempty"`
	Descripcion string          `json:"descripcion" validate:"required,max=255"`
	Monto       decimal.Decimal `json:"monto" validate:"gt=0"`
	Fecha       string          `json:"fecha" validate:"required,datetime=2006-01-02"`
	Categoria   string          `json:"categoria" validate:"required,oneof=logistica personal servicios alimentacion otros"`
	AlmacenID   *shared.ID      `json:"almacen_id,omitempty"`
	Almacen     *shared.Ref     `json:"almacen,omitempty"`
	UsuarioID   shared.ID       `json:"usuario_id,omitempty"`
}

// DepositoBancario is a bank deposit that groups cash payments
type DepositoBancario struct {
	ID              shared.ID       `json:"id,omitempty"`
	FechaDeposito   string          `json:"fecha_deposito" validate:"required,datetime=2006-01-02"`
	MontoDepositado decimal.Decimal `json:"monto_depositado" validate:"gt=0"`
	AlmacenID       *shared.ID      `json:"almacen_id,omitempty"`
	UsuarioID       shared.ID       `json:"usuario_id,omitempty"`
	Referencia      string          `json:"referencia_bancaria,omitempty" validate:"omitempty,max=100"`
	ComprobanteURL  string          `json:"url_comprobante_deposito,omitempty"`
	Notas           string          `json:"notas,omitempty"`
}
