// Package session tracks per-session conversation state: the message
// history the Context Injector needs for history injection, and the
// conscious-mode "have we already injected once" flag. It is the Go
// rewrite of the teacher's pkg/docstore in-memory map store, widened
// from flat documents to bounded, expiring conversation sessions the way
// the original Python ConversationManager (memori/core/conversation.py)
// does.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history kept on a Session.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Session is per-conversation state: its trimmed message history, plus
// bookkeeping the Context Injector needs (has conscious context already
// been injected once for this session?) and free-form metadata.
type Session struct {
	ID              string
	Messages        []Message
	ContextInjected bool
	CreatedAt       time.Time
	LastAccessed    time.Time
	Metadata        map[string]any
}

// Config bounds the tracker the way conversation.py's ConversationManager
// constructor does: a cap on concurrently tracked sessions, an inactivity
// timeout, and a cap on history length retained per session.
type Config struct {
	MaxSessions          int
	SessionTimeout       time.Duration
	MaxHistoryPerSession int
}

// DefaultConfig mirrors ConversationManager's defaults
// (max_sessions=100, session_timeout_minutes=60, max_history_per_session=20).
func DefaultConfig() Config {
	return Config{
		MaxSessions:          100,
		SessionTimeout:       60 * time.Minute,
		MaxHistoryPerSession: 20,
	}
}

// Stats is the snapshot Orchestrator.Stats() folds into its per-namespace
// report, grounded on get_session_stats (conversation.py:347).
type Stats struct {
	ActiveSessions       int
	MaxSessions          int
	SessionTimeoutMinutes float64
	MaxHistoryPerSession int
}

// Tracker is a bounded, mutex-guarded map of Sessions with LRU eviction
// and inactivity expiry. All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	logger   *zap.Logger
}

// New creates a Tracker. A nil logger falls back to a no-op logger.
func New(cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.MaxHistoryPerSession <= 0 {
		cfg.MaxHistoryPerSession = DefaultConfig().MaxHistoryPerSession
	}
	return &Tracker{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// GetOrCreate returns the session for id, creating it if absent. Creation
// first sweeps expired sessions, then evicts the least-recently-accessed
// session if still at capacity — matching get_or_create_session's "remove
// oldest last_accessed when len(sessions) >= max_sessions" rule.
func (t *Tracker) GetOrCreate(id string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepExpiredLocked()

	if s, ok := t.sessions[id]; ok {
		s.LastAccessed = time.Now()
		return s
	}

	if len(t.sessions) >= t.cfg.MaxSessions {
		t.evictOldestLocked()
	}

	now := time.Now()
	s := &Session{ID: id, CreatedAt: now, LastAccessed: now, Metadata: map[string]any{}}
	t.sessions[id] = s
	t.logger.Debug("session created", zap.String("session_id", id))
	return s
}

func (t *Tracker) sweepExpiredLocked() {
	if t.cfg.SessionTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-t.cfg.SessionTimeout)
	for id, s := range t.sessions {
		if s.LastAccessed.Before(cutoff) {
			delete(t.sessions, id)
			t.logger.Debug("session expired", zap.String("session_id", id))
		}
	}
}

func (t *Tracker) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	first := true
	for id, s := range t.sessions {
		if first || s.LastAccessed.Before(oldestAt) {
			oldestID, oldestAt = id, s.LastAccessed
			first = false
		}
	}
	if oldestID != "" {
		delete(t.sessions, oldestID)
		t.logger.Debug("session evicted at capacity", zap.String("session_id", oldestID))
	}
}

// AddUserMessage appends a user message, then trims history to
// MaxHistoryPerSession, preserving any system messages.
func (t *Tracker) AddUserMessage(id, content string) {
	t.addMessage(id, RoleUser, content)
}

// AddAssistantMessage appends an assistant message and trims as above.
func (t *Tracker) AddAssistantMessage(id, content string) {
	t.addMessage(id, RoleAssistant, content)
}

// AddSystemMessage appends a system message; system messages are exempt
// from the history trim.
func (t *Tracker) AddSystemMessage(id, content string) {
	t.addMessage(id, RoleSystem, content)
}

func (t *Tracker) addMessage(id string, role Role, content string) {
	s := t.GetOrCreate(id)

	t.mu.Lock()
	defer t.mu.Unlock()
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: time.Now()})
	s.Messages = trimHistory(s.Messages, t.cfg.MaxHistoryPerSession)
}

// trimHistory keeps every system message plus the most recent
// non-system messages, capped at max total entries — the same rule
// add_user_message applies when len(history) exceeds max_history_per_session.
func trimHistory(msgs []Message, max int) []Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	var system, rest []Message
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	keep := max - len(system)
	if keep < 0 {
		keep = 0
	}
	if keep < len(rest) {
		rest = rest[len(rest)-keep:]
	}
	return append(system, rest...)
}

// History returns up to limit of the most recent user/assistant messages
// (system messages excluded), per get_history_messages(limit=10).
func (t *Tracker) History(id string, limit int) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil
	}
	var filtered []Message
	for _, m := range s.Messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			filtered = append(filtered, m)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// MarkContextInjected flips the session's one-shot conscious-injection flag.
func (t *Tracker) MarkContextInjected(id string) {
	s := t.GetOrCreate(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	s.ContextInjected = true
}

// IsContextInjected reports whether conscious context was already
// injected for this session.
func (t *Tracker) IsContextInjected(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		return s.ContextInjected
	}
	return false
}

// ClearSession removes a single session's tracked state
// (clear_session, conversation.py:370).
func (t *Tracker) ClearSession(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// ClearAll removes every tracked session (clear_all_sessions, conversation.py:379).
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*Session)
}

// Stats reports the tracker's current occupancy and configuration.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		ActiveSessions:        len(t.sessions),
		MaxSessions:           t.cfg.MaxSessions,
		SessionTimeoutMinutes: t.cfg.SessionTimeout.Minutes(),
		MaxHistoryPerSession:  t.cfg.MaxHistoryPerSession,
	}
}
