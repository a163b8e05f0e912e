package persist

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

const (
	MessagesKey  = "chat_messages"
	SessionIDKey = "chat_session_id"
)

// Adapter maps a Snapshot onto the two keys of a KV slot. Read failures fail
// closed and write failures are logged, never returned to the caller of Save.
type Adapter struct {
	kv     KV
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	stored string // session id known to be in kv
}

// NewAdapter wraps kv.
func NewAdapter(kv KV, logger zerolog.Logger) *Adapter {
	return &Adapter{
		kv:     kv,
		logger: logger.With().Str("component", "persist").Logger(),
		now:    time.Now,
	}
}

// Load returns the stored conversation. It reports false when nothing usable
// is stored; a corrupted message entry is deleted so the next start is clean.
func (a *Adapter) Load() (chat.Snapshot, bool) {
	raw, err := a.kv.Get(MessagesKey)
	if errors.Is(err, ErrNotFound) {
		return chat.Snapshot{}, false
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("read stored conversation failed")
		return chat.Snapshot{}, false
	}

	msgs, err := decodeMessages(raw, a.now().UTC())
	if err != nil {
		a.logger.Warn().Err(err).Msg("stored conversation is corrupted, discarding")
		if delErr := a.kv.Delete(MessagesKey); delErr != nil {
			a.logger.Warn().Err(delErr).Msg("failed to delete corrupted conversation")
		}
		return chat.Snapshot{}, false
	}
	if len(msgs) == 0 {
		return chat.Snapshot{}, false
	}

	sessionID, _ := a.LoadSessionID()
	return chat.Snapshot{SessionID: sessionID, Messages: msgs}, true
}

// Save writes both keys. An empty session id leaves the stored one untouched,
// and an id already in the slot is not rewritten.
func (a *Adapter) Save(snap chat.Snapshot) {
	raw, err := encodeMessages(snap.Messages)
	if err != nil {
		a.logger.Warn().Err(err).Msg("encode conversation failed")
	} else if err := a.kv.Set(MessagesKey, raw); err != nil {
		a.logger.Warn().Err(err).Msg("save conversation failed")
	}

	if snap.SessionID == "" || a.isStored(snap.SessionID) {
		return
	}
	if err := a.SaveSessionID(snap.SessionID); err != nil {
		a.logger.Warn().Err(err).Msg("save session id failed")
	}
}

// LoadSessionID returns the stored session id, if any.
func (a *Adapter) LoadSessionID() (string, bool) {
	id, err := a.kv.Get(SessionIDKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Warn().Err(err).Msg("read session id failed")
		}
		return "", false
	}
	if id == "" {
		return "", false
	}
	a.remember(id)
	return id, true
}

// SaveSessionID stores id.
func (a *Adapter) SaveSessionID(id string) error {
	if err := a.kv.Set(SessionIDKey, id); err != nil {
		return errors.Wrap(err, "save session id")
	}
	a.remember(id)
	return nil
}

func (a *Adapter) isStored(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stored == id
}

func (a *Adapter) remember(id string) {
	a.mu.Lock()
	a.stored = id
	a.mu.Unlock()
}
