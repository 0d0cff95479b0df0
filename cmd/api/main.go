package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/identity"
	"storefront/internal/session"
	"storefront/internal/store"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var pinger httpserver.Pinger
	source, err := buildCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("init catalog: %v", err)
	}
	if pg, ok := source.(*catalog.Postgres); ok {
		pinger = pg
	}
	if c, ok := source.(interface{ Close() }); ok {
		defer c.Close()
	}

	provider, stopIdentity, err := buildIdentity(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("init identity: %v", err)
	}
	defer stopIdentity()

	storeLogger := log.New(os.Stdout, "[store] ", log.LstdFlags|log.LUTC|log.Lshortfile)
	sessions := session.NewRegistry(func() *store.Store {
		return store.New(source, provider, store.Options{
			Currency:   cfg.Currency,
			SellerRole: cfg.SellerRole,
			Logger:     storeLogger,
		})
	}, cfg.SessionTTL, logger)
	sessions.SetLimit(cfg.SessionLimit)
	go sessions.Run(ctx, time.Minute)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, pinger, httpserver.Deps{
		Sessions:         sessions,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s (catalog=%s identity=%s)", cfg.HTTPAddr, cfg.CatalogSource, cfg.IdentityProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}

func buildCatalog(ctx context.Context, cfg config.Config, logger *log.Logger) (catalog.Source, error) {
	switch cfg.CatalogSource {
	case config.CatalogFixture:
		return catalog.NewFixture()
	case config.CatalogPostgres:
		pool, err := db.Connect(ctx, cfg.DBConnString)
		if err != nil {
			return nil, fmt.Errorf("connect to db: %w", err)
		}
		return catalog.NewPostgres(pool, logger), nil
	default:
		return nil, fmt.Errorf("unknown CATALOG_SOURCE %q", cfg.CatalogSource)
	}
}

func buildIdentity(ctx context.Context, cfg config.Config, logger *log.Logger) (identity.Provider, func(), error) {
	switch cfg.IdentityProvider {
	case config.IdentityFixture:
		return identity.NewStatic(identity.DemoUser()), func() {}, nil
	case config.IdentityJWT:
		if cfg.IdentityJWKSURL == "" {
			return nil, nil, errors.New("IDENTITY_JWKS_URL required for jwt identity provider")
		}
		return identity.NewJWKS(ctx, cfg.IdentityJWKSURL, identity.JWTOptions{
			Issuer: cfg.IdentityIssuer,
			Logger: logger,
		})
	default:
		return nil, nil, fmt.Errorf("unknown IDENTITY_PROVIDER %q", cfg.IdentityProvider)
	}
}
