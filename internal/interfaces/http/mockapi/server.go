// Package mockapi is an in-memory rendition of the business REST API, for local
// development and end-to-end tests of the client.
package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/domain/identity"
	"github.com/erp/appinv/internal/infrastructure/config"
	"github.com/erp/appinv/internal/infrastructure/logger"
)

// DefaultBasePath is where the API routes are mounted
const DefaultBasePath = "/api"

// Options configures the sandbox server
type Options struct {
	Registry    *resource.Registry // nil loads the built-in entities
	BasePath    string
	JWTSecret   string
	TokenTTL    time.Duration
	Issuer      string
	ServiceName string
	BcryptCost  int
	PerPage     int // page size when neither the request nor the entity sets one
	FakerSeed   uint64
	Logger      *zap.Logger
}

// OptionsFromConfig maps the mock section of the configuration
func OptionsFromConfig(cfg *config.Config, log *zap.Logger) Options {
	return Options{
		JWTSecret:   cfg.Mock.JWTSecret,
		TokenTTL:    cfg.Mock.TokenTTL,
		ServiceName: "appinv-mockapi",
		PerPage:     cfg.List.DefaultPerPage,
		Logger:      log,
	}
}

// Server is the sandbox API
type Server struct {
	engine   *gin.Engine
	registry *resource.Registry
	store    *store
	accounts *accounts
	tokens   *tokenIssuer
	metrics  *serverMetrics
	logger   *zap.Logger
	opts     Options
}

// New builds the router with every registry entity mounted under BasePath
func New(opts Options) (*Server, error) {
	if opts.JWTSecret == "" {
		return nil, errors.New("mockapi: JWT secret is required")
	}
	if opts.Registry == nil {
		reg, err := resource.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		opts.Registry = reg
	}
	if opts.BasePath == "" {
		opts.BasePath = DefaultBasePath
	}
	opts.BasePath = "/" + strings.Trim(opts.BasePath, "/")
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.Issuer == "" {
		opts.Issuer = "appinv-mockapi"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "appinv-mockapi"
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.PerPage < 1 {
		opts.PerPage = 10
	}
	opts.Logger = logger.OrNop(opts.Logger)

	s := &Server{
		registry: opts.Registry,
		store:    newStore(opts.Registry),
		accounts: newAccounts(opts.BcryptCost),
		tokens:   newTokenIssuer(opts.JWTSecret, opts.TokenTTL, opts.Issuer),
		metrics:  newServerMetrics(),
		logger:   opts.Logger,
		opts:     opts,
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(
		logger.RequestID(),
		logger.Recovery(s.logger),
		otelgin.Middleware(s.opts.ServiceName),
		logger.GinMiddleware(s.logger),
		s.metrics.middleware(),
	)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := engine.Group(s.opts.BasePath)
	api.POST("/auth/login", s.login)

	secured := api.Group("", authenticate(s.tokens, s.logger))
	secured.GET("/auth/me", s.me)
	for _, name := range s.registry.Names() {
		coll, _ := s.store.collection(name)
		(&entityHandler{server: s, coll: coll}).register(secured)
	}

	engine.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, ErrCodeNotFound, "Route not found")
	})
	return engine
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

// BasePath returns the prefix of the API routes
func (s *Server) BasePath() string {
	return s.opts.BasePath
}

// AddUser creates a user that can log in with password
func (s *Server) AddUser(username, password, rol string) (*identity.Usuario, error) {
	if username == "" || password == "" {
		return nil, errors.New("mockapi: username and password are required")
	}
	coll, ok := s.store.collection(usuariosEntity)
	if !ok {
		return nil, fmt.Errorf("mockapi: registry has no %s entity", usuariosEntity)
	}
	if s.accounts.taken(username, 0) {
		return nil, ErrUsernameTaken
	}

	rec := coll.insert(Record{"username": username, "rol": rol})
	id, _ := toID(rec["id"])
	if err := s.accounts.set(id, username, rol, password); err != nil {
		coll.remove(id)
		return nil, err
	}
	u, _ := s.usuario(id)
	return u, nil
}

// Insert stores a record in the collection of entity and returns it with its id
func (s *Server) Insert(entity string, rec Record) (Record, error) {
	coll, ok := s.store.collection(entity)
	if !ok {
		return nil, fmt.Errorf("mockapi: unknown entity %q", entity)
	}
	rec = cloneRecord(rec)
	s.store.resolveRefs(rec)
	return coll.insert(rec), nil
}

// Count returns the number of records of entity
func (s *Server) Count(entity string) int {
	coll, ok := s.store.collection(entity)
	if !ok {
		return 0
	}
	return coll.len()
}
