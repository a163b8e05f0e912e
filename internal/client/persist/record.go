package persist

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// recordVersion is written with every stored message. Records without a
// version predate message ids.
const recordVersion = 1

// errShape marks a payload that parsed as JSON but is not a message list.
var errShape = errors.New("unexpected stored shape")

type storedMessage struct {
	V          int    `json:"v,omitempty"`
	ID         string `json:"id,omitempty"`
	Sender     string `json:"sender"`
	Text       string `json:"text"`
	IsThinking bool   `json:"isThinking,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

func encodeMessages(msgs []chat.Message) (string, error) {
	records := make([]storedMessage, 0, len(msgs))
	for _, msg := range msgs {
		records = append(records, storedMessage{
			V:          recordVersion,
			ID:         msg.ID,
			Sender:     string(msg.Sender),
			Text:       msg.Text,
			IsThinking: msg.IsThinking,
			Timestamp:  msg.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", errors.Wrap(err, "encode messages")
	}
	return string(data), nil
}

// decodeMessages parses and migrates a stored message list. Thinking
// placeholders left behind by an interrupted cycle are dropped.
func decodeMessages(raw string, now time.Time) ([]chat.Message, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, errors.Wrap(errShape, "messages are not an array")
	}

	var records []storedMessage
	if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}

	msgs := make([]chat.Message, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		msg, err := migrate(rec, now)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		if msg.IsThinking {
			continue
		}
		if _, dup := seen[msg.ID]; dup {
			return nil, errors.Wrapf(errShape, "record %d: duplicate id %q", i, msg.ID)
		}
		seen[msg.ID] = struct{}{}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func migrate(rec storedMessage, now time.Time) (chat.Message, error) {
	if rec.V > recordVersion {
		return chat.Message{}, errors.Wrapf(errShape, "unsupported version %d", rec.V)
	}

	sender := chat.Sender(rec.Sender)
	if !sender.Valid() {
		return chat.Message{}, errors.Wrapf(errShape, "unknown sender %q", rec.Sender)
	}

	msg := chat.Message{
		ID:         rec.ID,
		Sender:     sender,
		Text:       rec.Text,
		IsThinking: rec.IsThinking,
		Timestamp:  now,
	}
	if msg.ID == "" {
		msg.ID = chat.NewID()
	}
	if rec.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil && !ts.IsZero() {
			msg.Timestamp = ts
		}
	}
	return msg, nil
}
