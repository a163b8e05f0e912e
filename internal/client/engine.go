package client

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/streamchat/internal/client/store"
	"github.com/zhouzirui/streamchat/internal/client/transport"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// State is the phase of the current submit cycle.
type State int32

const (
	StateIdle State = iota
	StateSubmitting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Outcome is how a submit cycle ended.
type Outcome int

const (
	// OutcomeRejected: blank text or a cycle already running; nothing changed.
	OutcomeRejected Outcome = iota
	// OutcomeFinalized: the reply streamed to a clean end.
	OutcomeFinalized
	// OutcomeFailed: the failure notice replaced the reply.
	OutcomeFailed
	// OutcomeDropped: the conversation was cleared while the cycle ran.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeFinalized:
		return "finalized"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// errTargetGone means the cycle's message was removed by a clear while the
// reply was still streaming.
var errTargetGone = errors.New("cycle message no longer present")

type sessionSource interface {
	GetOrCreate() string
}

// Engine runs one submit cycle at a time: user message and placeholder in,
// reply streamed into the placeholder, failure notice on error.
type Engine struct {
	store     *store.Store
	session   sessionSource
	transport transport.Transport
	changed   func()
	logger    zerolog.Logger

	state atomic.Int32
}

// NewEngine wires an engine. changed runs after every mutation batch and
// once more when a cycle ends.
func NewEngine(st *store.Store, session sessionSource, tr transport.Transport, changed func(), logger zerolog.Logger) *Engine {
	if changed == nil {
		changed = func() {}
	}
	return &Engine{
		store:     st,
		session:   session,
		transport: tr,
		changed:   changed,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// State returns the current cycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Submit runs a full cycle for text and blocks until it ends. It returns
// false without touching anything when text is blank or a cycle is already
// running. Cancelling ctx fails the cycle like a transport error.
func (e *Engine) Submit(ctx context.Context, text string) bool {
	return e.Exchange(ctx, text) != OutcomeRejected
}

// Exchange is Submit reporting how the cycle ended.
func (e *Engine) Exchange(ctx context.Context, text string) Outcome {
	if strings.TrimSpace(text) == "" {
		return OutcomeRejected
	}
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateSubmitting)) {
		e.logger.Debug().Msg("submit ignored, cycle in progress")
		return OutcomeRejected
	}
	defer func() {
		e.state.Store(int32(StateIdle))
		e.changed()
	}()

	sessionID := e.session.GetOrCreate()
	logger := e.logger.With().Str("session_id", sessionID).Logger()

	user := chat.NewMessage(chat.SenderUser, text)
	placeholder := chat.NewThinking()
	if err := e.appendPair(user, placeholder); err != nil {
		logger.Error().Err(err).Msg("append user message failed")
		return OutcomeFailed
	}
	e.changed()

	stream, err := e.transport.Open(ctx, transport.Request{Message: text, SessionID: sessionID})
	if err != nil {
		logger.Warn().Err(err).Msg("open reply stream failed")
		return e.fail(placeholder.ID)
	}
	defer stream.Close()

	reply := placeholder
	reply.IsThinking = false
	reply.Text = ""
	if err := e.store.ReplaceLast(isMessage(placeholder.ID), reply); err != nil {
		logger.Info().Err(err).Msg("placeholder gone before reply started")
		return OutcomeDropped
	}
	e.state.Store(int32(StateStreaming))
	e.changed()

	chunks, size, err := e.pump(ctx, stream, reply.ID)
	switch {
	case errors.Is(err, errTargetGone):
		logger.Info().Int("chunks", chunks).Msg("conversation cleared during reply, dropping rest")
		return OutcomeDropped
	case err != nil:
		logger.Warn().Err(err).Int("chunks", chunks).Int("bytes", size).Msg("reply stream failed")
		return e.fail(reply.ID)
	}
	logger.Debug().Int("chunks", chunks).Int("bytes", size).Msg("reply finalized")
	return OutcomeFinalized
}

func (e *Engine) appendPair(user, placeholder chat.Message) error {
	if err := e.store.Append(user); err != nil {
		return err
	}
	return e.store.Append(placeholder)
}

// pump applies chunks in arrival order. The message always holds the full
// text received so far, never a delta.
func (e *Engine) pump(ctx context.Context, stream transport.Stream, id string) (chunks, size int, err error) {
	decoder := newUTF8Stream()
	var text strings.Builder

	apply := func(part string) error {
		if part == "" {
			return nil
		}
		text.WriteString(part)
		if !e.store.UpdateLastText(id, text.String()) {
			return errTargetGone
		}
		e.changed()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return chunks, size, err
		}

		chunk, recvErr := stream.Recv()
		if len(chunk) > 0 {
			chunks++
			size += len(chunk)
			if err := apply(decoder.Decode(chunk)); err != nil {
				return chunks, size, err
			}
		}
		if recvErr == io.EOF {
			return chunks, size, apply(decoder.Flush())
		}
		if recvErr != nil {
			return chunks, size, recvErr
		}
	}
}

// fail swaps the cycle's message for the failure notice. Nothing is inserted
// if the message was already cleared away.
func (e *Engine) fail(id string) Outcome {
	err := e.store.ReplaceLast(isMessage(id), chat.NewFailure())
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		return OutcomeDropped
	}
	if err != nil {
		e.logger.Error().Err(err).Msg("insert failure notice failed")
	}
	return OutcomeFailed
}

func isMessage(id string) func(chat.Message) bool {
	return func(m chat.Message) bool { return m.ID == id }
}
