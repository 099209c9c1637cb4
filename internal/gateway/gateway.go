// ABOUTME: Gateway orchestrator wiring the store, relay, and reply pipeline
// ABOUTME: Manages the HTTP server and component lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/filazero/chat-relay/internal/agent"
	"github.com/filazero/chat-relay/internal/config"
	"github.com/filazero/chat-relay/internal/conversation"
	"github.com/filazero/chat-relay/internal/relay"
	"github.com/filazero/chat-relay/internal/responder"
	"github.com/filazero/chat-relay/internal/store"
)

// defaultAgentName seeds the presence table on first start
const defaultAgentName = "Agente MCP - Filazero"

// Gateway orchestrates the chat-relay server components.
// It owns the store, the reply pipeline, the WebSocket relay, and the HTTP
// server that fronts all of them.
type Gateway struct {
	config       *config.Config
	store        store.Store
	agentClient  *agent.Client
	conversation *conversation.Service
	relay        *relay.Relay
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHAT_RELAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// seedDefaultAgent ensures the presence table shows at least one online
// responder. Existing agents are left alone.
func seedDefaultAgent(ctx context.Context, s store.Store, logger *slog.Logger) error {
	count, err := s.CountOnlineAgents(ctx)
	if err != nil {
		return fmt.Errorf("counting agents: %w", err)
	}
	if count > 0 {
		return nil
	}

	a, err := s.CreateAgent(ctx, store.NewAgent{Name: defaultAgentName, IsOnline: true})
	if err != nil {
		return fmt.Errorf("seeding default agent: %w", err)
	}
	logger.Info("seeded default agent", "agent_id", a.ID, "name", a.Name)
	return nil
}

// initResponder builds the fallback responder from config.
func initResponder(cfg *config.Config, logger *slog.Logger) (*responder.Responder, error) {
	if cfg.Responder.RulesPath == "" {
		return responder.New(), nil
	}
	r, err := responder.Load(cfg.Responder.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading responder rules: %w", err)
	}
	logger.Info("loaded responder rules", "path", cfg.Responder.RulesPath)
	return r, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := seedDefaultAgent(context.Background(), s, logger); err != nil {
		_ = s.Close()
		return nil, err
	}

	fallback, err := initResponder(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	agentClient := agent.NewClient(agent.Config{
		BackendURL:     cfg.Backend.URL,
		TerminalAPIURL: cfg.Terminal.APIURL,
		ChatTimeout:    cfg.Backend.ChatTimeout,
		CacheTTL:       cfg.Terminal.CacheTTL,
		Fallback:       fallback,
		Logger:         logger,
	})

	convService := conversation.NewService(s, agentClient, logger)

	wsRelay := relay.New(s, convService, relay.Config{
		TypingDelay:  cfg.Relay.TypingDelay,
		RespondDelay: cfg.Relay.RespondDelay,
		Logger:       logger,
	})

	gw := &Gateway{
		config:       cfg,
		store:        s,
		agentClient:  agentClient,
		conversation: convService,
		relay:        wsRelay,
		logger:       logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// REST API
	mux.HandleFunc("/api/conversations", gw.handleConversations)
	mux.HandleFunc("/api/conversations/", gw.handleConversationRoutes)
	mux.HandleFunc("/api/messages", gw.handleCreateMessage)
	mux.HandleFunc("/api/agents", gw.handleListAgents)
	mux.HandleFunc("/api/status", gw.handleStatus)
	mux.HandleFunc("/api/terminal/validate", gw.handleValidateTerminal)
	mux.HandleFunc("/api/terminal/cache", gw.handleTerminalCache)

	// WebSocket endpoint
	mux.HandleFunc("/ws", wsRelay.HandleWS)

	// Debug transcript view
	mux.HandleFunc("/debug/conversations/", gw.handleTranscript)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries and an online
// agent is registered.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	count, err := g.store.CountOnlineAgents(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	if count == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents online"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", count)
}
