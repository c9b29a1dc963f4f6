// Package auth persists the bearer token and the signed-in user, and exposes
// the session as a single-writer service to the API client and controllers.
package auth

import (
	"context"
	"errors"

	"github.com/erp/appinv/internal/domain/identity"
)

// ErrStoreUnavailable is returned when the configured backend cannot be reached
var ErrStoreUnavailable = errors.New("token store unavailable")

// ErrSealedStore is returned when a sealed session file cannot be opened with the passphrase
var ErrSealedStore = errors.New("session file cannot be opened")

// Store persists the bearer token and the current user.
// Absent values are reported as "" and nil, never as errors.
type Store interface {
	GetToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error

	GetUser(ctx context.Context) (*identity.Usuario, error)
	SaveUser(ctx context.Context, user *identity.Usuario) error
	ClearUser(ctx context.Context) error

	// ClearAll removes token and user together (logout)
	ClearAll(ctx context.Context) error
	Close() error
}

func cloneUser(u *identity.Usuario) *identity.Usuario {
	if u == nil {
		return nil
	}
	c := *u
	if u.AlmacenID != nil {
		id := *u.AlmacenID
		c.AlmacenID = &id
	}
	if u.Almacen != nil {
		ref := *u.Almacen
		c.Almacen = &ref
	}
	// the password never leaves the login form
	c.Password = ""
	return &c
}
