// cmd/lattice-server is the entry point for the lattice MCP dispatch server.
//
// Startup sequence:
//  1. Load configuration from LATTICE_* environment variables (plus an
//     optional YAML overlay).
//  2. Open the backing store (SQLite by default, Postgres when configured).
//  3. Build the tool registry: memory tools, filesystem tools, platform tools.
//  4. Start the session registry's idle reaper and, when enabled, the backup
//     service.
//  5. Serve HTTP until SIGINT / SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gridloom/lattice/internal/api/mcp"
	"github.com/gridloom/lattice/internal/backup"
	"github.com/gridloom/lattice/internal/config"
	"github.com/gridloom/lattice/internal/events"
	"github.com/gridloom/lattice/internal/graph"
	"github.com/gridloom/lattice/internal/graph/postgres"
	"github.com/gridloom/lattice/internal/graph/sqlite"
	"github.com/gridloom/lattice/internal/platform"
	"github.com/gridloom/lattice/internal/server"
	"github.com/gridloom/lattice/internal/tools"
)

const version = "1.0.0"

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("lattice: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	store, sqliteStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	hub := events.NewHub()
	go hub.Run()

	registry := mcp.NewRegistry()
	tools.NewGraphTools(store, hub).Register(registry)
	tools.NewFSTools(cfg.Tools.FSRoot).Register(registry)
	tools.NewPlatformTools(
		platform.NewDeployClient(cfg.Platform.DeployURL, 0),
		platform.NewDatabaseClient(cfg.Platform.DatabaseURL, 0),
		platform.NewSourceClient(cfg.Platform.SourceURL, 0),
	).Register(registry)
	log.Printf("registered %d tools", registry.Len())

	sessions := mcp.NewSessionRegistry(registry, mcp.ServerInfo{
		Name:    "lattice",
		Version: version,
	}, cfg.Session.TTL)
	sessions.StartReaper(ctx, cfg.Session.ReapInterval)
	hub.SetForward(sessions.Broadcast)

	if cfg.Backup.Enabled && sqliteStore != nil {
		svc := backup.NewService(sqliteStore.DB(), cfg.Backup.Path, cfg.Backup.Interval, cfg.Backup.Retention)
		go svc.Run(ctx)
		log.Printf("backups enabled: %s every %s", cfg.Backup.Path, cfg.Backup.Interval)
	}

	addr, err := server.Start(ctx, cfg, sessions, hub)
	if err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
	log.Printf("lattice %s serving on %s (engine: %s)", version, addr, cfg.Storage.StorageEngine)

	<-ctx.Done()
	log.Println("shutdown complete")
}

// openStore opens the configured backing store. The second return is non-nil
// only for the SQLite engine, where the backup service needs the raw handle.
func openStore(cfg *config.Config) (graph.Store, *sqlite.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "sqlite", "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "lattice.db")
		s, err := sqlite.NewStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		if cfg.Storage.PostgresURL == "" {
			return nil, nil, fmt.Errorf("LATTICE_POSTGRES_URL is required for the postgres engine")
		}
		s, err := postgres.NewStore(cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}
