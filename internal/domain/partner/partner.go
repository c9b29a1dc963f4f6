// Package partner holds the business partners of the company: clients and suppliers.
package partner

import (
	"github.com/erp/appinv/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Cliente is a customer of the business
type Cliente struct {
	ID               shared.ID       `json:"id,omitempty"`
	Nombre           string          `json:"nombre" validate:"required,max=255"`
	Telefono         string          `json:"telefono,omitempty" validate:"omitempty,max=20"`
	Direccion        string          `json:"direccion,omitempty" validate:"omitempty,max=255"`
	Ciudad           string          `json:"ciudad,omitempty" validate:"omitempty,max=100"`
	Email            string          `json:"email,omitempty" validate:"omitempty,email"`
	Saldo            decimal.Decimal `json:"saldo_pendiente"`
	UltimoPedido     string          `json:"ultimo_pedido,omitempty"`
	FrecuenciaCompra int             `json:"frecuencia_compra_dias,omitempty" validate:"gte=0"`
	CreatedAt        string          `json:"created_at,omitempty"`
}

// Proveedor is a supplier of raw material or products
type Proveedor struct {
	ID        shared.ID `json:"id,omitempty"`
	Nombre    string    `json:"nombre" validate:"required,max=255"`
	RUC       string    `json:"ruc,omitempty" validate:"omitempty,numeric,len=11"`
	Telefono  string    `json:"telefono,omitempty" validate:"omitempty,max=20"`
	Direccion string    `json:"direccion,omitempty" validate:"omitempty,max=255"`
	Email     string    `json:"email,omitempty" validate:"omitempty,email"`
	CreatedAt string    `json:"created_at,omitempty"`
}
