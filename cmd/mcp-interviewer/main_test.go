package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/txn2/mcp-interviewer/internal/server"
	"github.com/txn2/mcp-interviewer/pkg/config"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-config", "c.yaml", "-transport", "stdio", "-address", ":9090", "-seed"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != "c.yaml" || opts.transport != "stdio" || opts.address != ":9090" || !opts.seed {
		t.Errorf("parseFlags() = %+v", opts)
	}

	if _, err := parseFlags([]string{"-unknown"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  transport: http\n  address: \":7000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(serverOptions{configPath: path, transport: "stdio"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Transport != config.TransportStdio {
		t.Errorf("transport = %q, want stdio", cfg.Server.Transport)
	}
	if cfg.Server.Address != ":7000" {
		t.Errorf("address = %q, want :7000", cfg.Server.Address)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(serverOptions{configPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected text handler output, got %q", out)
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "bogus", Format: "json"}, &buf).Info("json")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestServeHTTP_DrainsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second

	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	defer func() { _ = srv.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveHTTP(ctx, srv, cfg.Server) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveHTTP() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveHTTP did not return after cancel")
	}

	if srv.Health().State() != "draining" {
		t.Errorf("health state = %q, want draining", srv.Health().State())
	}
}

func TestStartServer_UnknownTransport(t *testing.T) {
	srv, err := server.New(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	defer func() { _ = srv.Close() }()

	srv.Config().Server.Transport = "sse"
	if err := startServer(context.Background(), srv); err == nil {
		t.Error("expected error for unknown transport")
	}
}
