// Command vaultgated serves the VaultGate admin API: the authorization
// entry point for guarded targets plus the administrative mutators of the
// control plane.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/vaultgate/pkg/audit"
	"github.com/custodia-labs/vaultgate/pkg/auth"
	"github.com/custodia-labs/vaultgate/pkg/authority"
	"github.com/custodia-labs/vaultgate/pkg/config"
	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/gate"
	"github.com/custodia-labs/vaultgate/pkg/observability"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("vaultgated failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "listen address")
	driver := flag.String("driver", cfg.Driver, "database driver (sqlite or postgres)")
	dsn := flag.String("dsn", cfg.DatabaseURL, "database DSN")
	bootstrapPath := flag.String("bootstrap", cfg.BootstrapPath, "bootstrap YAML file (applied once)")
	redemptionDelay := flag.Int64("redemption-delay", cfg.RedemptionDelaySeconds, "redemption delay in seconds")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open(*driver, *dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	store := statestore.NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	var bootstrap *config.BootstrapDoc
	if *bootstrapPath != "" {
		bootstrap, err = config.LoadBootstrap(*bootstrapPath)
		if err != nil {
			return err
		}
	}

	initialAdmin := contracts.Address("admin")
	if bootstrap != nil {
		initialAdmin = contracts.Address(bootstrap.Admin)
	}

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return err
	}

	core, err := gate.New(ctx, gate.Config{
		Store:           store,
		Registry:        authority.NewRegistry(initialAdmin),
		RedemptionDelay: time.Duration(*redemptionDelay) * time.Second,
		Trail:           audit.NewTrail(),
		Metrics:         metrics,
	})
	if err != nil {
		return err
	}

	if bootstrap != nil {
		err := core.Initialize(ctx, initialAdmin, bootstrap.Bootstrap())
		switch {
		case err == nil:
			logger.Info("bootstrap applied",
				"permissions", len(bootstrap.Permissions),
				"grants", len(bootstrap.Grants))
		case errors.Is(err, gate.ErrAlreadyInitialized):
			logger.Info("bootstrap skipped, control plane already initialized")
		default:
			return err
		}
	}

	validator := auth.NewValidator([]byte(cfg.TokenSecret))
	limiter := auth.NewLimiter(20, 40)

	handler := auth.Middleware(validator)(
		auth.RateLimitMiddleware(limiter)(
			newServer(core).routes()))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vaultgated listening", "addr", *addr, "driver", *driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
