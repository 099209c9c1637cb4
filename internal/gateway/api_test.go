// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Covers conversation CRUD, messages, status, terminal endpoints, and errors

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filazero/chat-relay/internal/config"
	"github.com/filazero/chat-relay/internal/store"
)

// newTestGateway builds a gateway on an in-memory store with fake upstream
// services and returns a test server for its mux.
func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			_ = json.NewEncoder(w).Encode(map[string]string{"response": "resposta gerada"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	terminalAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/terminals/key-ok" {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "Terminal Teste"})
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(terminalAPI.Close)

	cfg := config.Default()
	cfg.Backend.URL = backend.URL
	cfg.Terminal.APIURL = terminalAPI.URL
	// Long delays keep the reply flow out of handler tests
	cfg.Relay.TypingDelay = time.Hour
	cfg.Relay.RespondDelay = time.Hour

	g, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.store.Close() })

	srv := httptest.NewServer(g.httpServer.Handler)
	t.Cleanup(srv.Close)
	return g, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateConversation(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/conversations", map[string]string{"userId": "user-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv store.Conversation
	decodeBody(t, resp, &conv)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "user-1", conv.UserID)
	// The seeded default agent is online, so the conversation binds to it
	assert.Equal(t, store.StatusActive, conv.Status)
	assert.NotEmpty(t, conv.AgentID)
}

func TestCreateConversation_RequiresUserID(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/conversations", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "userId")
}

func TestGetConversation_NotFound(t *testing.T) {
	_, srv := newTestGateway(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/api/conversations/missing", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Conversation not found", body["error"])
}

func TestMessageLifecycle(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/conversations", map[string]string{"userId": "user-1"})
	var conv store.Conversation
	decodeBody(t, resp, &conv)

	// Post a few messages and read them back in order
	for _, content := range []string{"primeira", "segunda", "terceira"} {
		resp := postJSON(t, srv.URL+"/api/messages", map[string]string{
			"conversationId": conv.ID,
			"senderId":       "user-1",
			"senderType":     "user",
			"content":        content,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var listed MessagesResponse
	getJSON(t, srv.URL+"/api/conversations/"+conv.ID+"/messages", &listed)
	require.Len(t, listed.Messages, 3)
	assert.Equal(t, "primeira", listed.Messages[0].Content)
	assert.Equal(t, "terceira", listed.Messages[2].Content)
}

func TestCreateMessage_Validation(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/conversations", map[string]string{"userId": "user-1"})
	var conv store.Conversation
	decodeBody(t, resp, &conv)

	t.Run("empty content", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/messages", map[string]string{
			"conversationId": conv.ID,
			"content":        "   ",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing conversation", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/messages", map[string]string{
			"conversationId": "missing",
			"content":        "oi",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing conversation id", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/messages", map[string]string{"content": "oi"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStatus(t *testing.T) {
	_, srv := newTestGateway(t)

	var status StatusResponse
	resp := getJSON(t, srv.URL+"/api/status", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, status.Connected)
	assert.Equal(t, "MCP Filazero", status.Service)
	assert.Equal(t, "mcp-agent-001", status.AgentID)
	assert.Equal(t, 1, status.OnlineAgents)
	assert.GreaterOrEqual(t, status.QueuePosition, 1)
	assert.LessOrEqual(t, status.QueuePosition, 5)
	assert.GreaterOrEqual(t, status.EstimatedWaitMin, 1)
	assert.LessOrEqual(t, status.EstimatedWaitMin, 10)
}

func TestValidateTerminal(t *testing.T) {
	_, srv := newTestGateway(t)

	t.Run("valid key", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/terminal/validate", map[string]string{"accessKey": "key-ok"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var info map[string]any
		decodeBody(t, resp, &info)
		assert.Equal(t, "Terminal Teste", info["name"])
	})

	t.Run("unknown key", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/terminal/validate", map[string]string{"accessKey": "key-bad"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing key", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/terminal/validate", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTerminalCache(t *testing.T) {
	_, srv := newTestGateway(t)

	// Warm the cache through validation
	postJSON(t, srv.URL+"/api/terminal/validate", map[string]string{"accessKey": "key-ok"})

	var cache TerminalCacheResponse
	getJSON(t, srv.URL+"/api/terminal/cache", &cache)
	require.Equal(t, 1, cache.Count)
	assert.Equal(t, "key-ok", cache.Entries[0].AccessKey)

	// Drop it
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/terminal/cache", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getJSON(t, srv.URL+"/api/terminal/cache", &cache)
	assert.Equal(t, 0, cache.Count)
}

func TestListAgents(t *testing.T) {
	_, srv := newTestGateway(t)

	var agents []store.Agent
	resp := getJSON(t, srv.URL+"/api/agents", &agents)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, agents, 1)
	assert.Equal(t, "Agente MCP - Filazero", agents[0].Name)
	assert.True(t, agents[0].IsOnline)
}

func TestHealthEndpoints(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := getJSON(t, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTranscriptPage(t *testing.T) {
	_, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/conversations", map[string]string{"userId": "user-1"})
	var conv store.Conversation
	decodeBody(t, resp, &conv)

	postJSON(t, srv.URL+"/api/messages", map[string]string{
		"conversationId": conv.ID,
		"senderType":     "user",
		"content":        "texto <b>não</b> renderizado",
	})
	postJSON(t, srv.URL+"/api/messages", map[string]string{
		"conversationId": conv.ID,
		"senderId":       "filazero-chatbot-proxy",
		"senderType":     "agent",
		"content":        "resposta **importante**",
	})

	resp, err := http.Get(srv.URL + "/debug/conversations/" + conv.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)

	// Agent markdown is rendered, user markup is escaped
	assert.Contains(t, page, "<strong>importante</strong>")
	assert.False(t, strings.Contains(page, "<b>não</b>"))
	assert.Contains(t, page, conv.ID)
}

func TestTranscriptPage_NotFound(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/debug/conversations/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
