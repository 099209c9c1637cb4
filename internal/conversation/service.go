// ABOUTME: Message pipeline turning a persisted user message into an agent reply
// ABOUTME: Gathers context, invokes the reply generator, and persists the result

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/filazero/chat-relay/internal/agent"
	"github.com/filazero/chat-relay/internal/store"
)

// AgentSenderID identifies automated replies in persisted messages
const AgentSenderID = "filazero-chatbot-proxy"

// failureReply is persisted when the pipeline itself breaks. It always
// reaches the user even when nothing else works.
const failureReply = "Desculpe, estou enfrentando uma dificuldade técnica. Um atendente humano entrará em contato em breve."

// historyLimit is how many recent messages form the reply context
const historyLimit = 5

// MessageStore is the slice of the store the pipeline needs
type MessageStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
	CreateMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error)
}

// Generator produces reply text for a user message
type Generator interface {
	GenerateReply(ctx context.Context, message string, convCtx agent.Context) string
}

// Service runs the reply pipeline for incoming user messages
type Service struct {
	store     MessageStore
	generator Generator
	logger    *slog.Logger
}

// NewService creates a reply pipeline
func NewService(messageStore MessageStore, generator Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     messageStore,
		generator: generator,
		logger:    logger.With("component", "conversation"),
	}
}

// ProcessMessage generates and persists the agent reply to a user message.
// The conversation and its history are loaded, the most recent messages
// become the generation context, and the reply is stored as an agent
// message. Pipeline failures degrade to a fixed apology so the user is
// never left without an answer; only persisting that apology can fail.
func (s *Service) ProcessMessage(ctx context.Context, conversationID, userMessageID, content string) (*store.Message, error) {
	reply, err := s.generateReply(ctx, conversationID, userMessageID, content)
	if err != nil {
		s.logger.Error("reply pipeline failed, sending fixed fallback",
			"conversation_id", conversationID,
			"error", err)
		reply = failureReply
	}

	msg, err := s.store.CreateMessage(ctx, store.NewMessage{
		ConversationID: conversationID,
		SenderID:       AgentSenderID,
		SenderType:     store.SenderAgent,
		Content:        reply,
		MessageType:    store.MessageTypeText,
	})
	if err != nil {
		return nil, fmt.Errorf("persisting agent reply: %w", err)
	}
	return msg, nil
}

// generateReply assembles the conversation context and calls the generator
func (s *Service) generateReply(ctx context.Context, conversationID, userMessageID, content string) (string, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("loading conversation: %w", err)
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	convCtx := agent.Context{
		ConversationID:   conversationID,
		UserID:           conv.UserID,
		QueuePosition:    conv.QueuePosition,
		PreviousMessages: recentMessages(history, historyLimit),
		AccessKey:        conv.AccessKey,
		IsFirstMessage:   isFirstUserMessage(history, userMessageID),
	}

	return s.generator.GenerateReply(ctx, content, convCtx), nil
}

// recentMessages converts the tail of the history into generation context
func recentMessages(history []*store.Message, limit int) []agent.ContextMessage {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]agent.ContextMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, agent.ContextMessage{
			SenderType: msg.SenderType,
			Content:    msg.Content,
		})
	}
	return out
}

// isFirstUserMessage reports whether the message being processed is the
// first user message of the conversation. The message itself is already
// persisted, so it is excluded from the scan.
func isFirstUserMessage(history []*store.Message, userMessageID string) bool {
	for _, msg := range history {
		if msg.ID == userMessageID {
			continue
		}
		if msg.SenderType == store.SenderUser {
			return false
		}
	}
	return true
}
