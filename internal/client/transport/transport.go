// Package transport opens a streamed reply for one submission.
package transport

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoBody is returned when the backend answers with a bodiless success
// status (204, 205). A zero-length 200 is an empty reply, not this error.
var ErrNoBody = errors.New("response has no body")

// Request is the outbound payload for one submission.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Stream yields raw reply bytes. Chunk boundaries carry no meaning and may
// split multi-byte characters.
type Stream interface {
	// Recv returns the next chunk, or io.EOF once the reply ended cleanly.
	Recv() ([]byte, error)
	Close() error
}

// Transport opens a reply stream for a request.
type Transport interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// HistoryClearer is implemented by transports whose backend keeps history
// per session.
type HistoryClearer interface {
	ClearHistory(ctx context.Context, sessionID string) error
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
