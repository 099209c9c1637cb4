// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// Pass ":memory:" for a non-durable store; the default deployment uses it.
// The schema is automatically created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if memory {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			access_key TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			queue_position INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			content TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'text',
			is_read INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at, seq);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_online INTEGER NOT NULL DEFAULT 0,
			current_conversations INTEGER NOT NULL DEFAULT 0
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation with a fresh id and timestamps
func (s *SQLiteStore) CreateConversation(ctx context.Context, nc NewConversation) (*Conversation, error) {
	status := nc.Status
	if status == "" {
		status = StatusActive
	}
	if nc.QueuePosition < 0 {
		return nil, fmt.Errorf("queue position must be non-negative, got %d", nc.QueuePosition)
	}

	now := time.Now()
	conv := &Conversation{
		ID:            uuid.New().String(),
		UserID:        nc.UserID,
		AgentID:       nc.AgentID,
		AccessKey:     nc.AccessKey,
		Status:        status,
		QueuePosition: nc.QueuePosition,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `
		INSERT INTO conversations (id, user_id, agent_id, access_key, status, queue_position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		nullString(conv.AgentID),
		nullString(conv.AccessKey),
		conv.Status,
		conv.QueuePosition,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created", "id", conv.ID, "user_id", conv.UserID)
	return conv, nil
}

// GetConversation returns the conversation with the given id, or ErrNotFound
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, user_id, agent_id, access_key, status, queue_position, created_at, updated_at
		FROM conversations WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// UpdateConversation merges the non-nil fields of upd into the conversation
// and refreshes the update timestamp. The id and creation timestamp never change.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.AgentID != nil {
		conv.AgentID = *upd.AgentID
	}
	if upd.AccessKey != nil {
		conv.AccessKey = *upd.AccessKey
	}
	if upd.Status != nil {
		conv.Status = *upd.Status
	}
	if upd.QueuePosition != nil {
		if *upd.QueuePosition < 0 {
			return nil, fmt.Errorf("queue position must be non-negative, got %d", *upd.QueuePosition)
		}
		conv.QueuePosition = *upd.QueuePosition
	}
	conv.UpdatedAt = time.Now()

	query := `
		UPDATE conversations
		SET agent_id = ?, access_key = ?, status = ?, queue_position = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(conv.AgentID),
		nullString(conv.AccessKey),
		conv.Status,
		conv.QueuePosition,
		formatTime(conv.UpdatedAt),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	s.logger.Debug("conversation updated", "id", id, "status", conv.Status)
	return conv, nil
}

// ListMessages returns all messages of a conversation in ascending creation
// order, ties broken by insertion order. A conversation without messages
// yields an empty slice, not an error.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_type, content, message_type, is_read, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// CreateMessage inserts a new message with a fresh id and timestamp.
// Returns ErrEmptyContent for blank content and ErrNotFound when the
// referenced conversation does not exist.
func (s *SQLiteStore) CreateMessage(ctx context.Context, nm NewMessage) (*Message, error) {
	if strings.TrimSpace(nm.Content) == "" {
		return nil, ErrEmptyContent
	}
	if _, err := s.GetConversation(ctx, nm.ConversationID); err != nil {
		return nil, err
	}

	msgType := nm.MessageType
	if msgType == "" {
		msgType = MessageTypeText
	}

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: nm.ConversationID,
		SenderID:       nm.SenderID,
		SenderType:     nm.SenderType,
		Content:        nm.Content,
		MessageType:    msgType,
		IsRead:         nm.IsRead,
		CreatedAt:      time.Now(),
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_type, content, message_type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.SenderType,
		msg.Content,
		msg.MessageType,
		boolToInt(msg.IsRead),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message created", "id", msg.ID, "conversation_id", msg.ConversationID, "sender_type", msg.SenderType)
	return msg, nil
}

// MarkMessageRead sets the read flag on a message.
// A missing message id is a no-op.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking message read: %w", err)
	}
	return nil
}

// CreateAgent inserts a new agent record with a fresh id
func (s *SQLiteStore) CreateAgent(ctx context.Context, na NewAgent) (*Agent, error) {
	agent := &Agent{
		ID:                   uuid.New().String(),
		Name:                 na.Name,
		IsOnline:             na.IsOnline,
		CurrentConversations: na.CurrentConversations,
	}

	query := `
		INSERT INTO agents (id, name, is_online, current_conversations)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.Name,
		boolToInt(agent.IsOnline),
		agent.CurrentConversations,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	return agent, nil
}

// GetAvailableAgent returns some online agent, or ErrNotFound when none is online
func (s *SQLiteStore) GetAvailableAgent(ctx context.Context) (*Agent, error) {
	query := `
		SELECT id, name, is_online, current_conversations
		FROM agents WHERE is_online = 1
		ORDER BY current_conversations ASC
		LIMIT 1
	`
	agent := &Agent{}
	var online int
	err := s.db.QueryRowContext(ctx, query).Scan(&agent.ID, &agent.Name, &online, &agent.CurrentConversations)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying available agent: %w", err)
	}
	agent.IsOnline = online != 0
	return agent, nil
}

// UpdateAgentStatus sets the online flag of an agent, or ErrNotFound
func (s *SQLiteStore) UpdateAgentStatus(ctx context.Context, id string, online bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET is_online = ? WHERE id = ?`, boolToInt(online), id)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAgents returns all agent records ordered by name
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	query := `
		SELECT id, name, is_online, current_conversations
		FROM agents ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	agents := []*Agent{}
	for rows.Next() {
		agent := &Agent{}
		var online int
		if err := rows.Scan(&agent.ID, &agent.Name, &online, &agent.CurrentConversations); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agent.IsOnline = online != 0
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// CountOnlineAgents returns the number of agents currently marked online
func (s *SQLiteStore) CountOnlineAgents(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE is_online = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting online agents: %w", err)
	}
	return count, nil
}

// scanConversation scans a single conversation row
func (s *SQLiteStore) scanConversation(row *sql.Row) (*Conversation, error) {
	conv := &Conversation{}
	var agentID, accessKey sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&agentID,
		&accessKey,
		&conv.Status,
		&conv.QueuePosition,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.AgentID = agentID.String
	conv.AccessKey = accessKey.String
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return conv, nil
}

// scanMessage scans a message from a rows cursor
func scanMessage(rows *sql.Rows) (*Message, error) {
	msg := &Message{}
	var isRead int
	var createdAt string

	err := rows.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.SenderType,
		&msg.Content,
		&msg.MessageType,
		&isRead,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	msg.IsRead = isRead != 0
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return msg, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
