package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Server Lifecycle Tests
// =============================================================================

func testServerConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Database.DSN = filepath.Join(dir, "fabricd.db")
	cfg.Archive.Dir = filepath.Join(dir, "archives")
	cfg.Server.ShutdownTimeout = 5 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServer_StartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testServerConfig(t)
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	server, err := NewServer(cfg, logger)
	require.NoError(t, err)

	err = server.Start(context.Background())
	require.Error(t, err)

	var sErr *ServerError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, ExitHTTPServerError, sErr.ExitCode)
	assert.Equal(t, "Start", sErr.Op)

	// The store was closed on the way out, and cleanly.
	_, err = server.store.ListInputs(context.Background())
	assert.Error(t, err)
	assert.NotContains(t, logs.String(), "store close error")
	assert.NotContains(t, logs.String(), "tracer shutdown error")
}

func TestServer_ShutdownOnContextCancel(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Server.Port = freePort(t)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	server, err := NewServer(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, server.Start(ctx))
	assert.Contains(t, logs.String(), "server stopped")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
