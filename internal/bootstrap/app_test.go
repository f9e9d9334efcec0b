package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"market_client/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewAppFromConfig(config.DefaultConfig())
	require.NoError(t, err)
	return app
}

func TestApp_RunReturnsFirstFailure(t *testing.T) {
	app := newTestApp(t)
	boom := errors.New("boom")

	blocking := RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	failing := RunnerFunc(func(ctx context.Context) error { return boom })

	err := app.RunContext(context.Background(), blocking, failing)
	assert.ErrorIs(t, err, boom)
}

func TestApp_RunCancelledIsGraceful(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := app.RunContext(ctx, RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.NoError(t, err)
}

func TestCheckPreFlight(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Marketplace.Transport = config.TransportGRPC
	cfg.Marketplace.Address = "127.0.0.1:1"
	cfg.Marketplace.TLSCertFile = filepath.Join(t.TempDir(), "missing.pem")
	assert.ErrorContains(t, CheckPreFlight(cfg), "tls_cert_file not found")

	cfg = config.DefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(t.TempDir(), "nope", "journal.db")
	assert.ErrorContains(t, CheckPreFlight(cfg), "journal directory")

	dir := t.TempDir()
	cert := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(cert, []byte("pem"), 0o600))
	cfg = config.DefaultConfig()
	cfg.Marketplace.TLSCertFile = cert
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	assert.NoError(t, CheckPreFlight(cfg))
}
