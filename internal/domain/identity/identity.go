// Package identity holds application users and login payloads.
package identity

import "github.com/erp/appinv/internal/domain/shared"

// Roles known to the API
const (
	RolAdmin   = "admin"
	RolGerente = "gerente"
	RolUsuario = "usuario"
)

// Usuario is an application user. Password is only sent on create/update.
type Usuario struct {
	ID        shared.ID   `json:"id,omitempty"`
	Username  string      `json:"username" validate:"required,min=3,max=50"`
	Password  string      `json:"password,omitempty" validate:"omitempty,min=6"`
	Rol       string      `json:"rol" validate:"required,oneof=admin gerente usuario"`
	AlmacenID *shared.ID  `json:"almacen_id,omitempty"`
	Almacen   *shared.Ref `json:"almacen,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
}

// Credentials is the login request body
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is the login response body
type LoginResult struct {
	Token string  `json:"access_token"`
	User  Usuario `json:"user"`
}
