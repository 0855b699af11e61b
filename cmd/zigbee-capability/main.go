package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zigbee-capability/internal/coordinator"
	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/ncp"
	"zigbee-capability/internal/script"
	"zigbee-capability/internal/store"
	"zigbee-capability/internal/web"
	"zigbee-capability/internal/zcl"
	"zigbee-capability/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := loadConfig(cfgPath)
	if err == nil {
		err = cfg.validate()
	}
	if err != nil {
		bootLogger.Error("config", "path", cfgPath, "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-capability starting", "version", version, "ncp", cfg.NCP.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// run wires the components together and blocks until ctx is done.
// Components are stopped in reverse start order.
func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	defs, snap, err := loadDefinitions(cfg, logger)
	if err != nil {
		return err
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	backend, err := ncp.Open(cfg.NCP, logger)
	if err != nil {
		return fmt.Errorf("open NCP: %w", err)
	}
	defer backend.Close()

	coord, err := startCoordinator(cfg, backend, db, snap, defs, logger)
	if err != nil {
		return err
	}
	defer coord.Stop()

	webServer, err := web.NewServer(coord, logger, webOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("create web server: %w", err)
	}
	defer webServer.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// No-op when built with the no_mqtt tag.
	bridge := initMQTT(coord, cfg, logger)
	defer bridge.Stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	return nil
}

// loadDefinitions registers the standard clusters, loads the definition
// files and freezes the registry. Broken files are logged and skipped.
func loadDefinitions(cfg *Config, logger *slog.Logger) (*definition.DB, *zcl.Snapshot, error) {
	registry := zcl.NewRegistry()
	if err := clusters.RegisterAll(registry); err != nil {
		return nil, nil, fmt.Errorf("register clusters: %w", err)
	}

	engine := script.NewEngine(logger, cfg.Scripts.Timeout)
	defs, snap, err := definition.LoadDir(cfg.DevicesDir, registry, engine, logger)
	if defs == nil {
		return nil, nil, fmt.Errorf("load definitions: %w", err)
	}
	if err != nil {
		logger.Warn("some definitions failed to load", "dir", cfg.DevicesDir, "err", err)
	}
	logger.Info("ZCL registry frozen", "clusters", len(snap.Names()), "definitions", defs.Len())
	return defs, snap, nil
}

func startCoordinator(cfg *Config, backend ncp.NCP, db store.Store, snap *zcl.Snapshot, defs *definition.DB, logger *slog.Logger) (*coordinator.Coordinator, error) {
	coord := coordinator.New(backend, db, snap, defs, coordinator.NewEventBus(logger), coordinator.Config{
		CommissionTimeout:     cfg.Commission.Timeout,
		ReconfigureOnAnnounce: cfg.Commission.ReconfigureOnAnnounce,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := coord.Start(ctx); err != nil {
		return nil, fmt.Errorf("start coordinator: %w", err)
	}

	if cfg.Network.PermitJoin > 0 {
		pctx, pcancel := context.WithTimeout(coord.Context(), 10*time.Second)
		if err := coord.PermitJoin(pctx, cfg.Network.PermitJoin); err != nil {
			logger.Warn("permit join at startup", "err", err)
		}
		pcancel()
	}
	return coord, nil
}

func webOptions(cfg *Config) []web.ServerOption {
	opts := []web.ServerOption{web.WithVersion(version)}
	if cfg.DevicesDir != "" {
		opts = append(opts, web.WithDevicesDir(cfg.DevicesDir))
	}
	if cfg.Web.APIKey != "" {
		opts = append(opts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		opts = append(opts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	return opts
}
