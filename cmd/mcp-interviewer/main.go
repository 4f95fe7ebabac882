// Package main provides the entry point for the mcp-interviewer server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-interviewer/internal/server"
	"github.com/txn2/mcp-interviewer/pkg/config"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	transport   string
	address     string
	seed        bool
	showVersion bool
}

func parseFlags(args []string) (serverOptions, error) {
	opts := serverOptions{}
	fs := flag.NewFlagSet("mcp-interviewer", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.transport, "transport", "", "Transport type: http, stdio (overrides config)")
	fs.StringVar(&opts.address, "address", "", "Listen address for the http transport (overrides config)")
	fs.BoolVar(&opts.seed, "seed", false, "Seed the PostgreSQL question bank from the YAML bank and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadConfig reads the config file (or defaults), then applies flag and
// environment overrides.
func loadConfig(opts serverOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr so the
// stdio transport keeps stdout for protocol messages.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Printf("mcp-interviewer version %s\n", server.Version)
		return nil
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stderr))

	ctx, stop := setupSignalHandler()
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	if opts.seed {
		if _, err := srv.Seed(ctx); err != nil {
			return fmt.Errorf("seeding questions: %w", err)
		}
		return nil
	}

	return startServer(ctx, srv)
}

func startServer(ctx context.Context, srv *server.Server) error {
	cfg := srv.Config()
	switch cfg.Server.Transport {
	case config.TransportStdio:
		slog.Info("serving MCP over stdio")
		if err := srv.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serving stdio: %w", err)
		}
		return nil
	case config.TransportHTTP:
		return serveHTTP(ctx, srv, cfg.Server)
	default:
		return fmt.Errorf("unknown transport: %s", cfg.Server.Transport)
	}
}

// serveHTTP serves until ctx is cancelled, then drains: readiness fails
// first, in-flight requests get ShutdownTimeout to finish.
func serveHTTP(ctx context.Context, srv *server.Server, cfg config.ServerConfig) error {
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "address", cfg.Address, "version", cfg.Version)
		errCh <- httpServer.ListenAndServe()
	}()
	srv.Health().SetReady()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	srv.Health().SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
