package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/backend/elastic"
	"github.com/stroymart/catalog-search/internal/backend/memory"
	"github.com/stroymart/catalog-search/internal/config"
	"github.com/stroymart/catalog-search/internal/dynamic"
	gate "github.com/stroymart/catalog-search/internal/health"
	handler "github.com/stroymart/catalog-search/internal/handler/http"
	"github.com/stroymart/catalog-search/internal/query"
	"github.com/stroymart/catalog-search/internal/service"
	pgstore "github.com/stroymart/catalog-search/internal/store/postgres"
	"github.com/stroymart/catalog-search/pkg/database"
	"github.com/stroymart/catalog-search/pkg/health"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Search backend selection.
	var sb backend.SearchBackend
	switch cfg.SearchBackend {
	case "memory":
		sb = memory.New()
		logger.Info("in-memory search backend initialized")
	default:
		esb, err := elastic.New(cfg.SearchURL, logger)
		if err != nil {
			return nil, fmt.Errorf("init search backend: %w", err)
		}
		sb = esb
		logger.Info("search backend initialized",
			slog.String("url", cfg.SearchURL),
			slog.String("alias", cfg.SearchAlias),
		)
	}

	// Relational store: the source of truth and the degraded query path.
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres pool: %w", err)
	}
	st := pgstore.New(pool, logger)

	// Dynamic per-product data enrichment.
	var provider dynamic.Provider = dynamic.Noop{}
	if cfg.DynamicDataURL != "" {
		provider = dynamic.NewHTTPProvider(cfg.DynamicDataURL, logger)
		logger.Info("dynamic data provider initialized", slog.String("url", cfg.DynamicDataURL))
	}

	// Query path.
	healthGate := gate.NewGate(sb, logger)
	queryService := service.New(
		sb, st, healthGate,
		query.NewBuilder(cfg.RescoreWindow),
		provider, cfg.SearchAlias, logger,
	)

	// Readiness tracks the relational store only: while the search engine is
	// down the fallback path keeps the service serving.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", st.Ping)

	router := handler.NewRouter(queryService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  config.HTTPReadTimeout,
		WriteTimeout: config.HTTPWriteTimeout,
		IdleTimeout:  config.HTTPIdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
