package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketdash/internal/config"
	apperrors "marketdash/internal/errors"
	"marketdash/internal/logging"
	"marketdash/internal/models"
	"marketdash/internal/security"
	"marketdash/internal/store"
)

// Backend is the chat completion endpoint.
type Backend interface {
	SendChat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// Manager owns one conversation thread and mediates requests to the
// chat backend. It is safe for concurrent use.
type Manager struct {
	backend Backend
	store   store.LocalStore
	cfg     config.ChatConfig
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	sessionID string
	messages  []models.Message
	nextSeq   uint64
	ackedSeq  uint64
	inFlight  int
}

// NewManager creates a new chat Manager.
func NewManager(backend Backend, s store.LocalStore, cfg config.ChatConfig, logger zerolog.Logger) *Manager {
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = config.DefaultFallbackReply
	}
	return &Manager{
		backend: backend,
		store:   s,
		cfg:     cfg,
		logger:  logger.With().Str("component", "chat").Logger(),
		now:     time.Now,
	}
}

// GetOrCreateSessionID returns the session id, generating and persisting
// one on first use. Repeated calls return the same value.
func (m *Manager) GetOrCreateSessionID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionLocked(ctx)
}

func (m *Manager) sessionLocked(ctx context.Context) (string, error) {
	if m.sessionID != "" {
		return m.sessionID, nil
	}

	id, created, err := loadOrCreateSession(ctx, m.store, m.now())
	if err != nil {
		return "", apperrors.Wrap(err, "loading chat session")
	}
	if created {
		m.logger.Info().Str("session_id", id).Msg("Created chat session")
	}
	m.sessionID = id
	return id, nil
}

// Load restores the persisted thread of the current session.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.sessionLocked(ctx)
	if err != nil {
		return err
	}

	msgs, err := m.store.GetMessages(ctx, id, 0)
	if err != nil {
		return apperrors.Wrap(err, "loading chat thread")
	}
	m.messages = msgs
	for _, msg := range msgs {
		if msg.Seq > m.nextSeq {
			m.nextSeq = msg.Seq
		}
	}
	m.ackedSeq = m.nextSeq
	return nil
}

// Send appends text as a user message, asks the backend for a reply and
// appends the assistant message. On failure the user message stays in the
// thread without a reply; nothing is retried or rolled back.
//
// A reply whose sequence is at or below the last acknowledged one is
// discarded with ErrStaleResponse. That covers replies overtaken by a later
// send and replies to sends made before a Reset.
func (m *Manager) Send(ctx context.Context, text string) (*models.Message, error) {
	text, err := security.ValidateMessage(text)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	sessionID, err := m.sessionLocked(ctx)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	history := m.historyLocked()
	m.nextSeq++
	seq := m.nextSeq
	userMsg := models.Message{
		ID:        uuid.NewString(),
		Seq:       seq,
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: m.now().UTC(),
	}
	m.messages = append(m.messages, userMsg)
	m.inFlight++
	m.mu.Unlock()

	logger := logging.WithSession(m.logger, sessionID)
	m.persist(ctx, sessionID, userMsg, logger)

	start := time.Now()
	resp, err := m.backend.SendChat(ctx, models.ChatRequest{
		Message:   text,
		History:   history,
		SessionID: sessionID,
	})

	m.mu.Lock()
	m.inFlight--
	if err != nil {
		m.mu.Unlock()
		logger.Warn().Err(err).Uint64("seq", seq).Msg("Chat request failed")
		return nil, err
	}

	if seq <= m.ackedSeq {
		acked := m.ackedSeq
		m.mu.Unlock()
		logger.Warn().Uint64("seq", seq).Uint64("acked", acked).Msg("Discarding stale chat reply")
		return nil, apperrors.ErrStaleResponse
	}
	m.ackedSeq = seq

	if resp.SessionID != "" && resp.SessionID != m.sessionID {
		m.adoptSessionLocked(ctx, resp.SessionID, logger)
		sessionID = resp.SessionID
	}

	reply := models.Message{
		ID:        uuid.NewString(),
		Seq:       seq,
		Role:      models.RoleAssistant,
		Content:   resp.ReplyText(m.cfg.FallbackReply),
		Response:  resp,
		CreatedAt: m.now().UTC(),
	}
	m.messages = append(m.messages, reply)
	m.mu.Unlock()

	m.persist(ctx, sessionID, reply, logger)
	logging.LogChatTurn(logger, sessionID, seq, len(resp.Cards), time.Since(start))
	return &reply, nil
}

// adoptSessionLocked switches to a server-issued session id. The thread
// so far moves with it.
func (m *Manager) adoptSessionLocked(ctx context.Context, id string, logger zerolog.Logger) {
	old := m.sessionID
	m.sessionID = id
	if err := m.store.SetValue(ctx, store.KeyChatSessionID, id); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist server session id")
		return
	}
	if err := m.store.ClearMessages(ctx, old); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear previous chat thread")
		return
	}
	for _, msg := range m.messages {
		if err := m.store.AppendMessage(ctx, id, msg); err != nil {
			logger.Warn().Err(err).Msg("Failed to move chat thread")
			return
		}
	}
	logger.Info().Str("previous", old).Str("session_id", id).Msg("Adopted server session id")
}

// historyLocked returns the prior thread as history entries, bounded by
// the configured history limit.
func (m *Manager) historyLocked() []models.HistoryEntry {
	msgs := m.messages
	if limit := m.cfg.HistoryLimit; limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	history := make([]models.HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		history = append(history, models.HistoryEntry{Role: msg.Role, Content: msg.Content})
	}
	return history
}

func (m *Manager) persist(ctx context.Context, sessionID string, msg models.Message, logger zerolog.Logger) {
	if err := m.store.AppendMessage(ctx, sessionID, msg); err != nil {
		logger.Warn().Err(err).Str("role", string(msg.Role)).Msg("Failed to persist chat message")
	}
}

// Reset starts a new session and clears the thread. Replies to sends
// still in flight are discarded when they arrive.
func (m *Manager) Reset(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID != "" {
		if err := m.store.ClearMessages(ctx, m.sessionID); err != nil {
			return "", apperrors.Wrap(err, "clearing chat thread")
		}
	}

	id := NewSessionID(m.now())
	if err := m.store.SetValue(ctx, store.KeyChatSessionID, id); err != nil {
		return "", apperrors.Wrap(err, "saving chat session")
	}
	m.sessionID = id
	m.messages = nil
	m.ackedSeq = m.nextSeq
	m.logger.Info().Str("session_id", id).Msg("Reset chat session")
	return id, nil
}

// Loading reports whether a send is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

// Messages returns a copy of the thread.
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.messages...)
}

// Session returns the current session with a copy of its thread.
func (m *Manager) Session() models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.ChatSession{
		SessionID: m.sessionID,
		Messages:  append([]models.Message{}, m.messages...),
	}
}
