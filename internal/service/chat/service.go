package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// DefaultSessionID is used when a request carries no session id.
const DefaultSessionID = "default"

var ErrSessionNotFound = errors.New("session not found")

// Service keeps per-session turn history in memory.
type Service struct {
	mu           sync.RWMutex
	sessions     map[string]chat.Session
	turns        map[string][]chat.Turn
	systemPrompt string
	limit        int
}

// NewService bootstraps the in-memory history. limit bounds the number of
// turns kept and sent to the model, on top of the system prompt.
func NewService(systemPrompt string, limit int) *Service {
	if limit < 1 {
		limit = 1
	}
	return &Service{
		sessions:     make(map[string]chat.Session),
		turns:        make(map[string][]chat.Turn),
		systemPrompt: systemPrompt,
		limit:        limit,
	}
}

// Prompt returns the turns to send for a new user message: the system prompt,
// the most recent history and the message itself. The session is created on
// first use; the message is not recorded until Commit.
func (s *Service) Prompt(_ context.Context, sessionID, userText string) []chat.Turn {
	sessionID = normalize(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensure(sessionID)
	history := s.turns[sessionID]

	prompt := make([]chat.Turn, 0, len(history)+2)
	prompt = append(prompt, chat.Turn{Role: chat.RoleSystem, Content: s.systemPrompt})
	prompt = append(prompt, history...)
	prompt = append(prompt, chat.Turn{Role: chat.RoleUser, Content: userText})
	return prompt
}

// Commit records a finished exchange. An empty reply records only the user
// turn.
func (s *Service) Commit(_ context.Context, sessionID, userText, reply string) error {
	sessionID = normalize(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	history := append(s.turns[sessionID], chat.Turn{Role: chat.RoleUser, Content: userText})
	if reply != "" {
		history = append(history, chat.Turn{Role: chat.RoleAssistant, Content: reply})
	}
	s.turns[sessionID] = trimExchanges(history, s.limit)

	session.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = session
	return nil
}

// Clear drops the history of a session but keeps the session itself.
func (s *Service) Clear(_ context.Context, sessionID string) error {
	sessionID = normalize(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.turns[sessionID] = make([]chat.Turn, 0, 16)
	session.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = session
	return nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[normalize(sessionID)]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns the stored turns, without the system prompt.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[normalize(sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// trimExchanges drops the oldest exchanges until at most limit turns remain.
// The window always starts on a user turn.
func trimExchanges(history []chat.Turn, limit int) []chat.Turn {
	start := 0
	for len(history)-start > limit {
		start++
		for start < len(history) && history[start].Role != chat.RoleUser {
			start++
		}
	}
	if start == 0 {
		return history
	}
	return append([]chat.Turn(nil), history[start:]...)
}

func (s *Service) ensure(sessionID string) {
	if _, ok := s.sessions[sessionID]; ok {
		return
	}
	now := time.Now().UTC()
	s.sessions[sessionID] = chat.Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}
	s.turns[sessionID] = make([]chat.Turn, 0, 16)
}

func normalize(sessionID string) string {
	if id := strings.TrimSpace(sessionID); id != "" {
		return id
	}
	return DefaultSessionID
}
