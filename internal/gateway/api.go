// ABOUTME: HTTP API handlers for conversations, messages, status, and terminal cache
// ABOUTME: JSON request/response shapes mirror the WebSocket message payloads

package gateway

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/filazero/chat-relay/internal/agent"
	"github.com/filazero/chat-relay/internal/store"
)

// statusService names the upstream reported by GET /api/status
const (
	statusService = "MCP Filazero"
	statusAgentID = "mcp-agent-001"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	UserID    string `json:"userId"`
	AccessKey string `json:"accessKey,omitempty"`
}

// MessagesResponse is the JSON response for GET /api/conversations/{id}/messages.
type MessagesResponse struct {
	ConversationID string           `json:"conversationId"`
	Messages       []*store.Message `json:"messages"`
}

// CreateMessageRequest is the JSON request body for POST /api/messages.
type CreateMessageRequest struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderType     string `json:"senderType"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType,omitempty"`
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Connected        bool   `json:"connected"`
	LatencyMS        int64  `json:"latencyMs"`
	Service          string `json:"service"`
	AgentID          string `json:"agentId"`
	OnlineAgents     int    `json:"onlineAgents"`
	QueuePosition    int    `json:"queuePosition"`
	EstimatedWaitMin int    `json:"estimatedWaitMinutes"`
}

// ValidateTerminalRequest is the JSON request body for POST /api/terminal/validate.
type ValidateTerminalRequest struct {
	AccessKey string `json:"accessKey"`
}

// TerminalCacheResponse is the JSON response for GET /api/terminal/cache.
type TerminalCacheResponse struct {
	Count   int                `json:"count"`
	Entries []agent.CacheEntry `json:"entries"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body of the shape {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleConversations handles POST /api/conversations requests.
// A new conversation is bound to an available agent when one is online;
// otherwise it starts in the waiting state with a queue position.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversation data")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	nc := store.NewConversation{
		UserID:    req.UserID,
		AccessKey: req.AccessKey,
	}
	if a, err := g.store.GetAvailableAgent(r.Context()); err == nil {
		nc.AgentID = a.ID
		nc.Status = store.StatusActive
	} else {
		nc.Status = store.StatusWaiting
		nc.QueuePosition = rand.Intn(5) + 1
	}

	conv, err := g.store.CreateConversation(r.Context(), nc)
	if err != nil {
		g.logger.Error("creating conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// handleConversationRoutes dispatches /api/conversations/{id} and
// /api/conversations/{id}/messages.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		g.handleGetConversation(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "messages":
		g.handleListMessages(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := g.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("loading conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := g.store.GetConversation(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	msgs, err := g.store.ListMessages(r.Context(), id)
	if err != nil {
		g.logger.Error("listing messages", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{ConversationID: id, Messages: msgs})
}

// handleCreateMessage handles POST /api/messages requests. Persisted
// messages are announced to WebSocket subscribers, and user messages
// trigger the same agent reply flow as socket sends.
func (g *Gateway) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message data")
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}
	if req.SenderID == "" {
		req.SenderID = "user"
	}
	if req.SenderType == "" {
		req.SenderType = store.SenderUser
	}

	msg, err := g.store.CreateMessage(r.Context(), store.NewMessage{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		SenderType:     req.SenderType,
		Content:        req.Content,
		MessageType:    req.MessageType,
	})
	switch {
	case errors.Is(err, store.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "Message content is required")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	case err != nil:
		g.logger.Error("creating message", "conversation_id", req.ConversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create message")
		return
	}

	g.relay.Announce(msg)
	writeJSON(w, http.StatusCreated, msg)
}

// handleListAgents handles GET /api/agents requests.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := g.store.ListAgents(r.Context())
	if err != nil {
		g.logger.Error("listing agents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// handleStatus handles GET /api/status requests. Queue position and wait
// time are simulated; connectivity and latency come from a live probe of
// the response service.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := g.agentClient.CheckStatus(r.Context())
	online, err := g.store.CountOnlineAgents(r.Context())
	if err != nil {
		g.logger.Warn("counting online agents", "error", err)
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Connected:        status.Connected,
		LatencyMS:        status.Latency.Milliseconds(),
		Service:          statusService,
		AgentID:          statusAgentID,
		OnlineAgents:     online,
		QueuePosition:    rand.Intn(5) + 1,
		EstimatedWaitMin: rand.Intn(10) + 1,
	})
}

// handleValidateTerminal handles POST /api/terminal/validate requests.
func (g *Gateway) handleValidateTerminal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ValidateTerminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid validation data")
		return
	}

	info, err := g.agentClient.ValidateTerminal(r.Context(), req.AccessKey)
	if err != nil {
		var verr *agent.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		writeError(w, http.StatusInternalServerError, "Validation failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleTerminalCache handles GET and DELETE /api/terminal/cache requests.
// DELETE accepts an optional accessKey query parameter; without it the
// whole cache is dropped.
func (g *Gateway) handleTerminalCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := g.agentClient.CacheEntries()
		writeJSON(w, http.StatusOK, TerminalCacheResponse{Count: len(entries), Entries: entries})
	case http.MethodDelete:
		if key := r.URL.Query().Get("accessKey"); key != "" {
			g.agentClient.InvalidateTerminal(key)
		} else {
			g.agentClient.InvalidateAllTerminals()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
