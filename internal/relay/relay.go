// ABOUTME: WebSocket relay fanning conversation events out to connected clients
// ABOUTME: Handles joins, message sends, typing passthrough, and the agent reply flow

package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filazero/chat-relay/internal/store"
)

// Inbound and outbound frame types
const (
	TypeJoin       = "join_conversation"
	TypeSend       = "send_message"
	TypeTyping     = "typing"
	TypeNewMessage = "new_message"
	TypeUserTyping = "user_typing"
)

// Envelope is the frame shape on the wire in both directions
type Envelope struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
}

// joinPayload is the body of a join_conversation frame
type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

// sendPayload is the body of a send_message frame
type sendPayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderType     string `json:"senderType"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

// MessageStore is the slice of the store the relay needs
type MessageStore interface {
	CreateMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error)
}

// Processor runs the agent reply pipeline for a persisted user message
type Processor interface {
	ProcessMessage(ctx context.Context, conversationID, userMessageID, content string) (*store.Message, error)
}

// Config holds the relay tuning knobs
type Config struct {
	// TypingDelay is how long after a user message the agent typing
	// indicator appears
	TypingDelay time.Duration
	// RespondDelay is how long after a user message the agent reply is
	// generated and broadcast
	RespondDelay time.Duration
	// Logger defaults to slog.Default
	Logger *slog.Logger
}

// Relay owns the live WebSocket connections. All socket writes happen under
// one mutex, which both serializes frames per connection and makes broadcast
// order deterministic across recipients.
type Relay struct {
	store     MessageStore
	processor Processor
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	typingDelay  time.Duration
	respondDelay time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

// New creates a relay backed by the given store and reply processor
func New(messageStore MessageStore, processor Processor, cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	typingDelay := cfg.TypingDelay
	if typingDelay <= 0 {
		typingDelay = 500 * time.Millisecond
	}
	respondDelay := cfg.RespondDelay
	if respondDelay <= 0 {
		respondDelay = 2500 * time.Millisecond
	}

	return &Relay{
		store:     messageStore,
		processor: processor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       logger.With("component", "relay"),
		typingDelay:  typingDelay,
		respondDelay: respondDelay,
		clients:      make(map[*websocket.Conn]string),
	}
}

// HandleWS upgrades the request and serves the connection until it closes
func (r *Relay) HandleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	r.mu.Lock()
	r.clients[conn] = ""
	count := len(r.clients)
	r.mu.Unlock()
	r.logger.Info("client connected", "clients", count)

	defer func() {
		r.mu.Lock()
		delete(r.clients, conn)
		count := len(r.clients)
		r.mu.Unlock()
		conn.Close()
		r.logger.Info("client disconnected", "clients", count)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Warn("read failed", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			r.logger.Warn("malformed frame skipped", "error", err)
			continue
		}

		switch env.Type {
		case TypeJoin:
			r.handleJoin(conn, env)
		case TypeSend:
			r.handleSend(env)
		case TypeTyping:
			r.handleTyping(conn, env)
		default:
			r.logger.Warn("unknown frame type skipped", "type", env.Type)
		}
	}
}

// handleJoin subscribes the connection to a conversation. Joining again
// simply switches the subscription.
func (r *Relay) handleJoin(conn *websocket.Conn, env Envelope) {
	var payload joinPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			r.logger.Warn("malformed join payload skipped", "error", err)
			return
		}
	}
	conversationID := payload.ConversationID
	if conversationID == "" {
		conversationID = env.ConversationID
	}
	if conversationID == "" {
		r.logger.Warn("join without conversation id skipped")
		return
	}

	r.mu.Lock()
	r.clients[conn] = conversationID
	r.mu.Unlock()
	r.logger.Info("client joined conversation", "conversation_id", conversationID)
}

// handleSend persists an inbound message, fans it out, and for user messages
// schedules the typing indicator and the agent reply.
func (r *Relay) handleSend(env Envelope) {
	var payload sendPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		r.logger.Warn("malformed send payload skipped", "error", err)
		return
	}
	if payload.ConversationID == "" {
		payload.ConversationID = env.ConversationID
	}
	if payload.SenderID == "" {
		payload.SenderID = "user"
	}
	if payload.SenderType == "" {
		payload.SenderType = store.SenderUser
	}

	msg, err := r.store.CreateMessage(context.Background(), store.NewMessage{
		ConversationID: payload.ConversationID,
		SenderID:       payload.SenderID,
		SenderType:     payload.SenderType,
		Content:        payload.Content,
		MessageType:    payload.MessageType,
	})
	if err != nil {
		r.logger.Warn("dropping unsendable message",
			"conversation_id", payload.ConversationID,
			"error", err)
		return
	}

	r.broadcastMessage(msg)

	if msg.SenderType == store.SenderUser {
		r.scheduleAgentReply(msg)
	}
}

// handleTyping relays a typing frame to everyone else in the conversation
// as a user_typing frame. The payload passes through untouched and nothing
// is persisted.
func (r *Relay) handleTyping(conn *websocket.Conn, env Envelope) {
	conversationID := env.ConversationID
	if conversationID == "" {
		var payload joinPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err == nil {
				conversationID = payload.ConversationID
			}
		}
	}
	if conversationID == "" {
		return
	}
	r.broadcastExcept(conn, conversationID, Envelope{
		Type:           TypeUserTyping,
		Data:           env.Data,
		ConversationID: conversationID,
	})
}

// scheduleAgentReply arms the typing indicator and the reply generation
// timers for a user message. Both fire on background contexts; the
// originating connection may be long gone by then.
func (r *Relay) scheduleAgentReply(userMsg *store.Message) {
	conversationID := userMsg.ConversationID

	time.AfterFunc(r.typingDelay, func() {
		r.broadcastTyping(conversationID, true)
	})

	time.AfterFunc(r.respondDelay, func() {
		reply, err := r.processor.ProcessMessage(context.Background(), conversationID, userMsg.ID, userMsg.Content)
		r.broadcastTyping(conversationID, false)
		if err != nil {
			r.logger.Error("agent reply failed",
				"conversation_id", conversationID,
				"error", err)
			return
		}
		r.broadcastMessage(reply)
	})
}

// Announce fans out a message that was persisted outside the socket, such
// as through the REST API. User messages get the same typing indicator and
// agent reply flow as messages sent over the socket.
func (r *Relay) Announce(msg *store.Message) {
	r.broadcastMessage(msg)
	if msg.SenderType == store.SenderUser {
		r.scheduleAgentReply(msg)
	}
}

// broadcastMessage fans a persisted message out as a new_message frame
func (r *Relay) broadcastMessage(msg *store.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encoding message for broadcast", "error", err)
		return
	}
	r.broadcast(msg.ConversationID, Envelope{
		Type:           TypeNewMessage,
		Data:           data,
		ConversationID: msg.ConversationID,
	})
}

// typingPayload is the body of an agent user_typing frame
type typingPayload struct {
	IsTyping   bool   `json:"isTyping"`
	SenderType string `json:"senderType"`
}

func (r *Relay) broadcastTyping(conversationID string, isTyping bool) {
	data, _ := json.Marshal(typingPayload{IsTyping: isTyping, SenderType: store.SenderAgent})
	r.broadcast(conversationID, Envelope{
		Type:           TypeUserTyping,
		Data:           data,
		ConversationID: conversationID,
	})
}

// broadcast writes a frame to every connection subscribed to the
// conversation. Writes happen under the registry mutex so every recipient
// observes frames in the same order. A conversation with no subscribers is
// a no-op. Connections that fail to write are dropped.
func (r *Relay) broadcast(conversationID string, env Envelope) {
	r.broadcastExcept(nil, conversationID, env)
}

func (r *Relay) broadcastExcept(skip *websocket.Conn, conversationID string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("encoding broadcast frame", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for conn, joined := range r.clients {
		if conn == skip || joined != conversationID {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			r.logger.Warn("dropping unwritable connection", "error", err)
			conn.Close()
			delete(r.clients, conn)
		}
	}
}

// ClientCount reports how many connections are currently registered
func (r *Relay) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
