// ABOUTME: Store interface and data types for chat-relay persistence
// ABOUTME: Defines Conversation, Message, Agent structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmptyContent is returned when a message is created with blank content
var ErrEmptyContent = errors.New("message content is empty")

// Conversation status constants
const (
	StatusActive  = "active"
	StatusWaiting = "waiting"
	StatusClosed  = "closed"
)

// Sender type constants for messages
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// MessageTypeText is the only message kind currently produced.
// The column is free-form so richer kinds can be added without a migration.
const MessageTypeText = "text"

// Conversation represents a chat session between one user and the responder
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	AgentID       string    `json:"agentId,omitempty"`
	AccessKey     string    `json:"accessKey,omitempty"`
	Status        string    `json:"status"`
	QueuePosition int       `json:"queuePosition"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Message represents a single message within a conversation.
// Messages are immutable once created except for the read flag.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderType     string    `json:"senderType"`
	Content        string    `json:"content"`
	MessageType    string    `json:"messageType"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Agent is a responder registration used for presence display
type Agent struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	IsOnline             bool   `json:"isOnline"`
	CurrentConversations int    `json:"currentConversations"`
}

// NewConversation holds the caller-supplied fields for CreateConversation.
// The store assigns the id and timestamps.
type NewConversation struct {
	UserID        string
	AgentID       string
	AccessKey     string
	Status        string
	QueuePosition int
}

// NewMessage holds the caller-supplied fields for CreateMessage
type NewMessage struct {
	ConversationID string
	SenderID       string
	SenderType     string
	Content        string
	MessageType    string
	IsRead         bool
}

// NewAgent holds the caller-supplied fields for CreateAgent
type NewAgent struct {
	Name                 string
	IsOnline             bool
	CurrentConversations int
}

// ConversationUpdate describes a partial update. Nil fields are left
// untouched. The id and creation timestamp can never change.
type ConversationUpdate struct {
	AgentID       *string
	AccessKey     *string
	Status        *string
	QueuePosition *int
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, nc NewConversation) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*Conversation, error)

	// Messages
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	CreateMessage(ctx context.Context, nm NewMessage) (*Message, error)
	MarkMessageRead(ctx context.Context, id string) error

	// Agents (presence display only)
	CreateAgent(ctx context.Context, na NewAgent) (*Agent, error)
	GetAvailableAgent(ctx context.Context) (*Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, online bool) error
	ListAgents(ctx context.Context) ([]*Agent, error)
	CountOnlineAgents(ctx context.Context) (int, error)

	// Close releases any resources held by the store
	Close() error
}
