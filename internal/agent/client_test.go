// ABOUTME: Tests for the response-generation client
// ABOUTME: Covers request shape, fallback degradation, and health probing

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReply_Success(t *testing.T) {
	var captured chatRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(chatResponse{Response: "Aqui está sua resposta.", ToolsUsed: []string{"search"}})
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})

	reply := c.GenerateReply(context.Background(), "qual o horário?", Context{
		ConversationID: "conv-1",
		UserID:         "user-1",
		QueuePosition:  2,
		PreviousMessages: []ContextMessage{
			{SenderType: "user", Content: "m1"},
			{SenderType: "agent", Content: "m2"},
			{SenderType: "user", Content: "m3"},
			{SenderType: "agent", Content: "m4"},
			{SenderType: "user", Content: "m5"},
		},
	})

	assert.Equal(t, "Aqui está sua resposta.", reply)
	assert.Equal(t, "qual o horário?", captured.Message)
	assert.Equal(t, "conv-1", captured.SessionID)
	assert.Equal(t, "user-1", captured.Context.UserID)
	assert.Equal(t, 2, captured.Context.QueuePosition)

	// Only the most recent messages travel with the request
	require.Len(t, captured.Context.PreviousMessages, 3)
	assert.Equal(t, "m3", captured.Context.PreviousMessages[0].Content)
	assert.Equal(t, "m5", captured.Context.PreviousMessages[2].Content)
}

func TestGenerateReply_FallsBackWhenUnreachable(t *testing.T) {
	c := NewClient(Config{BackendURL: "http://127.0.0.1:1", ChatTimeout: time.Second})

	reply := c.GenerateReply(context.Background(), "olá!", Context{ConversationID: "conv-1"})

	// The local responder answers the greeting deterministically
	assert.Contains(t, reply, "Bem-vindo")
}

func TestGenerateReply_FallsBackOnServerError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})

	reply := c.GenerateReply(context.Background(), "muito obrigado", Context{ConversationID: "conv-1"})
	assert.Contains(t, reply, "De nada")
}

func TestGenerateReply_FallsBackOnMalformedBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})

	reply := c.GenerateReply(context.Background(), "mensagem qualquer", Context{ConversationID: "conv-1"})
	assert.NotEmpty(t, reply)
	assert.NotContains(t, reply, "not json")
}

func TestGenerateReply_EmptyResponseBecomesApology(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Response: ""})
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})

	reply := c.GenerateReply(context.Background(), "olá", Context{ConversationID: "conv-1"})
	assert.Equal(t, emptyReplyApology, reply)
}

func TestGenerateReply_NoMetadataWithoutAccessKey(t *testing.T) {
	var captured chatRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(chatResponse{Response: "ok"})
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})

	c.GenerateReply(context.Background(), "oi", Context{ConversationID: "conv-1"})
	assert.Nil(t, captured.Context.Metadata)
	assert.Empty(t, captured.Context.Credential)
}

func TestGenerateReply_IncludesTerminalMetadata(t *testing.T) {
	terminalAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/terminals/key-123", r.URL.Path)
		json.NewEncoder(w).Encode(TerminalInfo{ID: 7, Name: "Terminal Centro"})
	}))
	defer terminalAPI.Close()

	var captured chatRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(chatResponse{Response: "ok"})
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL, TerminalAPIURL: terminalAPI.URL})

	c.GenerateReply(context.Background(), "oi", Context{
		ConversationID: "conv-1",
		AccessKey:      "key-123",
		IsFirstMessage: true,
	})

	require.NotNil(t, captured.Context.Metadata)
	assert.Equal(t, "Terminal Centro", captured.Context.Metadata.Name)
	assert.Equal(t, "key-123", captured.Context.Credential)
	assert.True(t, captured.Context.IsFirstMessage)
}

func TestCheckStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})
	status := c.CheckStatus(context.Background())
	assert.True(t, status.Connected)

	c = NewClient(Config{BackendURL: "http://127.0.0.1:1", ChatTimeout: time.Second})
	status = c.CheckStatus(context.Background())
	assert.False(t, status.Connected)
}

func TestCheckStatus_Unhealthy(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	c := NewClient(Config{BackendURL: backend.URL})
	status := c.CheckStatus(context.Background())
	assert.False(t, status.Connected)
}
