// ABOUTME: Tests for gateway construction and lifecycle
// ABOUTME: Covers component wiring, responder loading, and graceful shutdown

package gateway

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filazero/chat-relay/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_SeedsDefaultAgent(t *testing.T) {
	cfg := config.Default()
	g, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer g.store.Close()

	count, err := g.store.CountOnlineAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_LoadsCustomResponderRules(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.toml")
	content := "[[rule]]\nname = \"hi\"\nkeywords = [\"oi\"]\nreply = \"custom\"\n"
	require.NoError(t, os.WriteFile(rulesPath, []byte(content), 0644))

	cfg := config.Default()
	cfg.Responder.RulesPath = rulesPath

	g, err := New(cfg, testLogger())
	require.NoError(t, err)
	g.store.Close()
}

func TestNew_BadResponderRulesFails(t *testing.T) {
	cfg := config.Default()
	cfg.Responder.RulesPath = filepath.Join(t.TempDir(), "missing.toml")

	_, err := New(cfg, testLogger())
	require.Error(t, err)
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"

	g, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// Give the server a moment to start, then cancel
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNew_PersistentDatabasePath(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "relay.db")

	g, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer g.store.Close()

	_, err = os.Stat(cfg.Database.Path)
	assert.NoError(t, err)
}
