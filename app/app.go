// Package app wires configuration, modules, databases and the server into a
// runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DimaCrafter/photonyx/config"
	"github.com/DimaCrafter/photonyx/core"
	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/db/mongodb"
	"github.com/DimaCrafter/photonyx/core/db/pebbledb"
	"github.com/DimaCrafter/photonyx/core/logging"
	"github.com/DimaCrafter/photonyx/core/metrics"
	"github.com/DimaCrafter/photonyx/core/modules"
	"github.com/DimaCrafter/photonyx/core/router"
	"github.com/DimaCrafter/photonyx/core/websocket"
)

// App is the application instance. Routes and WebSocket events registered
// before Start take precedence over module routes.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	router    *router.Router
	databases *db.Registry
	endpoints *websocket.Endpoints
	loader    *modules.Loader

	loaderOpts []modules.LoaderOption
	server     *core.Server
}

// Option customizes an App.
type Option func(*App)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithLoaderOptions passes options to the module loader.
func WithLoaderOptions(opts ...modules.LoaderOption) Option {
	return func(a *App) {
		a.loaderOpts = append(a.loaderOpts, opts...)
	}
}

// New creates an application instance
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		logger, err := logging.NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		a.logger = logger
	}

	a.metrics = metrics.New()
	a.router = router.New(a.logger)
	a.databases = db.NewRegistry(a.logger)
	a.endpoints = websocket.NewEndpoints()
	a.loader = modules.NewLoader(a.logger, a.loaderOpts...)
	return a, nil
}

func (a *App) Logger() *zap.Logger { return a.logger }

func (a *App) Router() *router.Router { return a.router }

func (a *App) Endpoints() *websocket.Endpoints { return a.endpoints }

func (a *App) Databases() *db.Registry { return a.databases }

func (a *App) Modules() *modules.Loader { return a.loader }

// Server is nil before Start.
func (a *App) Server() *core.Server { return a.server }

// Start runs the module lifecycle and builds the server. Phases run in
// order: load, databases, models, routes. The database registry is frozen
// before routes are attached.
func (a *App) Start(ctx context.Context) error {
	if a.server != nil {
		return errors.New("app already started")
	}

	if provider := builtinProvider(a.cfg.Database.Provider); provider != nil {
		err := a.loader.Add(a.cfg.Database.Provider, modules.Hooks{
			ProvideDatabase: func() db.Provider { return provider },
		})
		if err != nil {
			return fmt.Errorf("builtin database provider: %w", err)
		}
	}

	a.loader.LoadStatic()
	if err := a.loader.LoadDir(a.cfg.Modules.Directory); err != nil {
		return fmt.Errorf("failed to load modules: %w", err)
	}
	a.logger.Info("modules loaded", zap.Int("count", a.loader.Len()))

	options, err := a.cfg.DatabaseOptions()
	if err != nil {
		return err
	}
	a.loader.ProvideDatabases(ctx, a.databases, a.cfg.Database.Key, options)
	a.loader.ProvideModels(a.databases)
	a.databases.Freeze()
	a.loader.ProvideRoutes(a.router)

	a.server = core.NewServer(core.Config{
		Workers:        a.cfg.Server.Workers,
		MaxBodySize:    a.cfg.Server.MaxBodySize,
		MaxConnections: a.cfg.Server.MaxConnections,
		RateLimit:      a.cfg.RateLimit.RPS,
		RateBurst:      a.cfg.RateLimit.Burst,
		CORS:           a.cfg.Policy(),
	}, core.Deps{
		Router:    a.router,
		Databases: a.databases,
		Endpoints: a.endpoints,
		Metrics:   a.metrics,
		Logger:    a.logger,
	})
	return nil
}

// Run listens on the configured address and serves until ctx is done or
// the process receives SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx, ln)
}

// Serve starts the app if needed and serves ln until ctx is done, then
// shuts down gracefully and closes the databases.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if a.server == nil {
		if err := a.Start(ctx); err != nil {
			ln.Close()
			return err
		}
	}
	defer a.logger.Sync()

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.server.Serve(ln)
	}()

	var metricsServer *http.Server
	if addr := a.cfg.Server.MetricsAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("metrics listening", zap.String("addr", addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case serveErr = <-errCh:
		a.logger.Error("server stopped", zap.Error(serveErr))
	}

	shutdownCtx := context.Background()
	if timeout := a.cfg.Server.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	err := a.server.Shutdown(shutdownCtx)
	if metricsServer != nil {
		err = errors.Join(err, metricsServer.Shutdown(shutdownCtx))
	}
	err = errors.Join(err, a.databases.Close(shutdownCtx))

	if serveErr != nil && !errors.Is(serveErr, core.ErrServerClosed) {
		return errors.Join(serveErr, err)
	}
	return err
}

func builtinProvider(name string) db.Provider {
	switch name {
	case config.ProviderPebble:
		return pebbledb.Provider{}
	case config.ProviderMongoDB:
		return mongodb.Provider{}
	default:
		return nil
	}
}
