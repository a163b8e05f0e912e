// Package session resolves the stable conversation identifier sent with
// every request.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Slot is where the id is persisted.
type Slot interface {
	LoadSessionID() (string, bool)
	SaveSessionID(id string) error
}

// Manager memoizes the session id for its lifetime. A new id is only minted
// on first use or on Reset.
type Manager struct {
	mu     sync.Mutex
	slot   Slot
	logger zerolog.Logger
	id     string
	newID  func() string
}

// NewManager returns a manager backed by slot.
func NewManager(slot Slot, logger zerolog.Logger) *Manager {
	return &Manager{
		slot:   slot,
		logger: logger.With().Str("component", "session").Logger(),
		newID:  NewID,
	}
}

// GetOrCreate returns the current id, loading or minting it on first call.
func (m *Manager) GetOrCreate() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id != "" {
		return m.id
	}
	if id, ok := m.slot.LoadSessionID(); ok {
		m.id = id
		return m.id
	}
	m.id = m.newID()
	m.persist()
	return m.id
}

// Reset replaces the id. The transcript is left alone.
func (m *Manager) Reset() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.id = m.newID()
	m.persist()
	return m.id
}

func (m *Manager) persist() {
	if err := m.slot.SaveSessionID(m.id); err != nil {
		m.logger.Warn().Err(err).Str("session_id", m.id).Msg("failed to persist session id")
	}
}

// NewID returns a time-ordered UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
