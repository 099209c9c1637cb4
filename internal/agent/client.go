// ABOUTME: HTTP client for the external response-generation service
// ABOUTME: Builds chat requests, parses replies, and degrades to the local responder

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/filazero/chat-relay/internal/responder"
)

// emptyReplyApology is returned when the service answers successfully but
// with an empty reply body.
const emptyReplyApology = "Desculpe, não consegui processar sua mensagem. Tente novamente."

// contextMessageLimit bounds how much history travels with each request
const contextMessageLimit = 3

// Config holds the client configuration
type Config struct {
	// BackendURL is the base URL of the response-generation service
	BackendURL string
	// TerminalAPIURL is the base URL for terminal metadata lookups
	TerminalAPIURL string
	// ChatTimeout bounds a single outbound reply request
	ChatTimeout time.Duration
	// CacheTTL is how long terminal metadata stays fresh
	CacheTTL time.Duration
	// Fallback produces replies when the service is unreachable.
	// Defaults to the built-in responder table.
	Fallback *responder.Responder
	// Logger defaults to slog.Default
	Logger *slog.Logger
}

// Client talks to the response-generation service. It insulates callers
// from the service's availability: GenerateReply never fails, it degrades
// to the deterministic local responder instead.
type Client struct {
	backendURL  string
	terminalURL string
	chatTimeout time.Duration
	httpClient  *http.Client
	fallback    *responder.Responder
	logger      *slog.Logger

	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]cacheEntry

	// now is swapped in tests to control cache expiry
	now func() time.Time
}

// NewClient creates a response-generation client
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = responder.New()
	}
	chatTimeout := cfg.ChatTimeout
	if chatTimeout <= 0 {
		chatTimeout = 10 * time.Second
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Client{
		backendURL:  cfg.BackendURL,
		terminalURL: cfg.TerminalAPIURL,
		chatTimeout: chatTimeout,
		httpClient:  &http.Client{},
		fallback:    fallback,
		logger:      logger.With("component", "agent-client"),
		cacheTTL:    cacheTTL,
		cache:       make(map[string]cacheEntry),
		now:         time.Now,
	}
}

// Context carries the conversation state that accompanies a reply request
type Context struct {
	ConversationID   string
	UserID           string
	QueuePosition    int
	PreviousMessages []ContextMessage
	AccessKey        string
	IsFirstMessage   bool
}

// ContextMessage is one prior message sent along for context
type ContextMessage struct {
	SenderType string `json:"senderType"`
	Content    string `json:"content"`
}

// chatRequest is the outbound envelope for the /api/chat call
type chatRequest struct {
	Message   string      `json:"message"`
	SessionID string      `json:"sessionId"`
	Context   chatContext `json:"context"`
}

type chatContext struct {
	UserID           string           `json:"userId,omitempty"`
	QueuePosition    int              `json:"queuePosition"`
	PreviousMessages []ContextMessage `json:"previousMessages"`
	Metadata         *TerminalInfo    `json:"metadata,omitempty"`
	IsFirstMessage   bool             `json:"isFirstMessage"`
	Credential       string           `json:"credential,omitempty"`
}

// chatResponse is the expected reply envelope. Anything that doesn't decode
// into this shape counts as an unavailable upstream.
type chatResponse struct {
	Response  string   `json:"response"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
}

// GenerateReply produces a reply for a user message. The outbound call is
// attempted exactly once with a bounded timeout; any failure degrades to the
// local responder. Callers always receive text, never an error.
func (c *Client) GenerateReply(ctx context.Context, message string, convCtx Context) string {
	metadata := c.metadataFor(ctx, convCtx)

	reply, err := c.callBackend(ctx, message, convCtx, metadata)
	if err != nil {
		c.logger.Warn("response service unavailable, using local responder",
			"conversation_id", convCtx.ConversationID,
			"error", err)
		return c.fallback.Reply(message)
	}
	return reply
}

// callBackend performs the single outbound reply request
func (c *Client) callBackend(ctx context.Context, message string, convCtx Context, metadata *TerminalInfo) (string, error) {
	previous := convCtx.PreviousMessages
	if len(previous) > contextMessageLimit {
		previous = previous[len(previous)-contextMessageLimit:]
	}

	reqBody := chatRequest{
		Message:   message,
		SessionID: convCtx.ConversationID,
		Context: chatContext{
			UserID:           convCtx.UserID,
			QueuePosition:    convCtx.QueuePosition,
			PreviousMessages: previous,
			Metadata:         metadata,
			IsFirstMessage:   convCtx.IsFirstMessage,
			Credential:       convCtx.AccessKey,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.backendURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling response service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("response service returned %d: %s", resp.StatusCode, resp.Status)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding reply envelope: %w", err)
	}

	if parsed.Response == "" {
		return emptyReplyApology, nil
	}
	if len(parsed.ToolsUsed) > 0 {
		c.logger.Debug("reply used tools", "tools", parsed.ToolsUsed)
	}
	return parsed.Response, nil
}

// metadataFor resolves terminal metadata for the request, honoring the
// refresh-on-first-contact policy.
func (c *Client) metadataFor(ctx context.Context, convCtx Context) *TerminalInfo {
	if convCtx.AccessKey == "" {
		return nil
	}
	if convCtx.IsFirstMessage {
		return c.RefreshTerminal(ctx, convCtx.AccessKey)
	}
	return c.ResolveTerminal(ctx, convCtx.AccessKey)
}

// Status reports reachability of the response service
type Status struct {
	Connected bool
	Latency   time.Duration
}

// CheckStatus probes the response service health endpoint
func (c *Client) CheckStatus(ctx context.Context) Status {
	callCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.backendURL+"/api/health", nil)
	if err != nil {
		return Status{Connected: false}
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("health probe failed", "error", err)
		return Status{Connected: false}
	}
	defer resp.Body.Close()

	return Status{
		Connected: resp.StatusCode >= 200 && resp.StatusCode <= 299,
		Latency:   c.now().Sub(start),
	}
}
