// Package main is the entry point for the datadesk server.
//
// datadesk is a local-first record store with user-defined schemas: a
// dataset catalog, JSONL record tables with uniqueness and referential
// integrity enforcement, relation resolution, duplicate detection for
// imports, and chunked file uploads. Configuration is read from CLI
// flags and an optional YAML config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/datadesk/datadesk/internal/config"
	"github.com/datadesk/datadesk/internal/server"
	"github.com/datadesk/datadesk/internal/server/handlers"
	"github.com/datadesk/datadesk/internal/storage"
	"github.com/datadesk/datadesk/internal/storage/files"
	"github.com/datadesk/datadesk/internal/storage/history"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "datadesk: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "", "Address to listen on (e.g., localhost:8080, :8080)")
	dataDir := flag.String("data-dir", "", "Data directory")
	configPath := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	ll := &slog.LevelVar{}
	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *httpAddr != "" {
		cfg.Addr = *httpAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	fl, err := storage.AcquireProcessLock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	var hist *history.Service
	if cfg.History.Enabled {
		hist, err = history.New(cfg.DataDir, cfg.History.Name, cfg.History.Email)
		if err != nil {
			return fmt.Errorf("failed to initialize change history: %w", err)
		}
	}

	fs, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	datasets, records := storage.NewServices(fs, hist)
	records.DuplicateThreshold = cfg.DuplicateThreshold

	assets, err := files.NewService(cfg.DataDir)
	if err != nil {
		return err
	}
	uploads := files.NewIngestor(assets, time.Duration(cfg.UploadSessionTTL))
	defer uploads.Close()

	// Pick up out-of-band catalog edits (hand edits, synced data dirs).
	go func() {
		if err := fs.WatchCatalog(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.WarnContext(ctx, "Catalog watcher stopped", "err", err)
		}
	}()

	buildVersion, _, _, _ := getBuildInfo()
	handlers.Version = buildVersion

	svc := &handlers.Services{
		Datasets: datasets,
		Records:  records,
		Assets:   assets,
		Uploads:  uploads,
		History:  hist,
	}
	httpServer := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(svc, server.Options{
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", cfg.Addr, "dataDir", cfg.DataDir, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("datadesk %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "dev"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		version = v
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
