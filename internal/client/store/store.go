// Package store holds the ordered client-side transcript.
package store

import (
	"fmt"
	"sync"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// DuplicateIDError is returned when a message id is already present.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("message %q already exists", e.ID)
}

// NotFoundError is returned when no message matches a replacement predicate.
type NotFoundError struct{}

func (e *NotFoundError) Error() string {
	return "no matching message"
}

// Store is the ordered, append-mostly message log. Insertion order is display order.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	ids      map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Append adds msg to the end of the log.
func (s *Store) Append(msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[msg.ID]; ok {
		return &DuplicateIDError{ID: msg.ID}
	}
	s.messages = append(s.messages, msg)
	s.ids[msg.ID] = struct{}{}
	return nil
}

// ReplaceLast swaps the last message matching pred for msg in a single step.
func (s *Store) ReplaceLast(pred func(chat.Message) bool, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		old := s.messages[i]
		if !pred(old) {
			continue
		}
		if msg.ID != old.ID {
			if _, ok := s.ids[msg.ID]; ok {
				return &DuplicateIDError{ID: msg.ID}
			}
			delete(s.ids, old.ID)
			s.ids[msg.ID] = struct{}{}
		}
		s.messages[i] = msg
		return nil
	}
	return &NotFoundError{}
}

// UpdateLastText overwrites the text of the last message if, and only if, that
// message is id. It reports whether the update was applied.
func (s *Store) UpdateLastText(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages)
	if n == 0 || s.messages[n-1].ID != id {
		return false
	}
	s.messages[n-1].Text = text
	return true
}

// Reset replaces the whole log.
func (s *Store) Reset(msgs []chat.Message) error {
	ids := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if _, ok := ids[msg.ID]; ok {
			return &DuplicateIDError{ID: msg.ID}
		}
		ids[msg.ID] = struct{}{}
	}

	s.mu.Lock()
	s.messages = append([]chat.Message(nil), msgs...)
	s.ids = ids
	s.mu.Unlock()
	return nil
}

// Snapshot returns an ordered copy of the log.
func (s *Store) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Last returns the most recent message.
func (s *Store) Last() (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return chat.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// ThinkingCount returns how many placeholders are present.
func (s *Store) ThinkingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, msg := range s.messages {
		if msg.IsThinking {
			count++
		}
	}
	return count
}
