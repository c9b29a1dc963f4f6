// Package identity signs users in and out of the API and keeps the session current.
package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/auth"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/validation"
)

// API paths of the auth endpoints
const (
	LoginPath = "/auth/login"
	MePath    = "/auth/me"
)

// ErrNoSession is returned by Me when nobody is signed in
var ErrNoSession = errors.New("not signed in")

// AuthService is the only writer of the session: Login stores the token and
// user returned by the API, Logout forgets them.
type AuthService struct {
	client    *apiclient.Client
	session   *auth.Session
	validator *validation.Validator
	logger    *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(client *apiclient.Client, session *auth.Session, log *zap.Logger) *AuthService {
	return &AuthService{
		client:    client,
		session:   session,
		validator: validation.New(),
		logger:    logger.OrNop(log),
	}
}

// Login exchanges credentials for a bearer token and makes it the current session
func (s *AuthService) Login(ctx context.Context, creds identity.Credentials) (*identity.Usuario, error) {
	if err := s.validator.Struct(creds); err != nil {
		return nil, err
	}
	s.logger.Info("Login attempt", zap.String("username", creds.Username))

	var result identity.LoginResult
	if err := s.client.Post(ctx, LoginPath, creds, &result); err != nil {
		s.logger.Warn("Login failed", zap.String("username", creds.Username), zap.Error(err))
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("login response carried no token: %w", auth.ErrEmptyToken)
	}
	if result.User.Username == "" {
		result.User.Username = creds.Username
	}

	if err := s.session.Login(ctx, result.Token, &result.User); err != nil {
		return nil, err
	}
	return s.session.User(), nil
}

// Logout forgets the session. It never fails because of the network.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.session.Logout(ctx)
}

// Me fetches the signed-in user and refreshes the cached copy
func (s *AuthService) Me(ctx context.Context) (*identity.Usuario, error) {
	if !s.session.IsAuthenticated() {
		return nil, ErrNoSession
	}
	var user identity.Usuario
	if err := s.client.Get(ctx, MePath, nil, &user); err != nil {
		return nil, err
	}
	if err := s.session.UpdateUser(ctx, &user); err != nil {
		return nil, err
	}
	return s.session.User(), nil
}

// Session returns the session the service writes to
func (s *AuthService) Session() *auth.Session {
	return s.session
}
