// Package main is the terminal client of the business API: login, browse and
// edit entities as aligned tables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/application/entities"
	appidentity "github.com/erp/appinv/internal/application/identity"
	"github.com/erp/appinv/internal/application/resource"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
	"github.com/erp/appinv/internal/infrastructure/auth"
	"github.com/erp/appinv/internal/infrastructure/config"
	"github.com/erp/appinv/internal/infrastructure/logger"
	"github.com/erp/appinv/internal/infrastructure/telemetry"
)

var (
	configPath string
	verbose    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to a TOML configuration file (default: config.toml lookup)")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Usage = printUsage
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `appinv - terminal client of the inventory and sales API

USAGE:
    appinv [-config path] [-v] <command> [options]

COMMANDS:
    login     -u <user> [-p <password>]   Log in and keep the session
    logout                                Forget the session
    whoami    [-remote]                   Show the logged in user
    entities                              List the known entities
    list      <entity> [options]          Show one page of an entity
              -page n -per-page n -sort column -desc -filter key=value
    get       <entity> <id>               Show one record
    create    <entity> -set key=value ... [-file path]
    delete    <entity> <id>               Delete one record
    watch     <entity> [-every 30s] [-metrics-addr :9090] [list options]

The API address comes from api.base_url (APPINV_API_BASE_URL or API_URL).
`)
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, os.Stdout, os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	err = a.run(ctx, flag.Args())
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// app holds the client stack shared by every command
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	out      io.Writer
	in       io.Reader
	store    auth.Store
	session  *auth.Session
	registry *resource.Registry
	services *entities.Services
	auth     *appidentity.AuthService
	metrics  *telemetry.ClientMetrics
	tracer   *telemetry.Tracing
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer, in io.Reader) (*app, error) {
	tracer, err := telemetry.SetupTracing(ctx, cfg.Telemetry, "", log)
	if err != nil {
		return nil, err
	}

	store, err := auth.NewStore(ctx, cfg, log)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}
	session := auth.NewSession(store, log)
	if err := session.Restore(ctx); err != nil {
		log.Warn("Stored session could not be read, starting logged out", zap.Error(err))
	}

	metrics := telemetry.NewClientMetrics(cfg.App.Name)
	client, err := apiclient.NewFromConfig(cfg.API, session, log, metrics)
	if err != nil {
		_ = store.Close()
		_ = tracer.Shutdown(ctx)
		return nil, err
	}
	registry, err := resource.DefaultRegistry()
	if err != nil {
		_ = store.Close()
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		out:      out,
		in:       in,
		store:    store,
		session:  session,
		registry: registry,
		services: entities.NewServices(client, registry, entities.OptionsFromConfig(cfg.List, log, metrics)),
		auth:     appidentity.NewAuthService(client, session, log),
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close session store", zap.Error(err))
	}
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		a.log.Warn("Failed to flush traces", zap.Error(err))
	}
}
