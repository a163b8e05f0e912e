package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	aiService "github.com/zhouzirui/streamchat/internal/service/ai"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

// Generator opens a reply stream for a prompt.
type Generator interface {
	Stream(ctx context.Context, turns []chat.Turn) (aiService.TokenStream, error)
}

// History builds prompts and records finished exchanges.
type History interface {
	Prompt(ctx context.Context, sessionID, userText string) []chat.Turn
	Commit(ctx context.Context, sessionID, userText, reply string) error
}

// Handler streams model replies as plain text (POST /chat-stream) or as
// websocket text frames (GET /chat-ws).
type Handler struct {
	llm     Generator
	history History
	logger  zerolog.Logger
}

// New creates a stream handler. llm may be nil, in which case every request
// is answered with 503.
func New(llm Generator, history History) *Handler {
	return &Handler{
		llm:     llm,
		history: history,
		logger:  log.With().Str("component", "stream").Logger(),
	}
}

// RegisterRoutes 注册流式对话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat-stream", h.handleChatStream)
	r.Get("/chat-ws", h.handleChatSocket)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

var errEmptyMessage = errors.New("message is required")

func (req *chatRequest) validate() error {
	if strings.TrimSpace(req.Message) == "" {
		return errEmptyMessage
	}
	return nil
}

// handleChatStream 以 text/plain 分块写出模型回复
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	logger := h.logger.With().
		Str("session_id", req.SessionID).
		Str("request_id", middleware.GetReqID(r.Context())).
		Logger()

	ctx := r.Context()
	stream, err := h.open(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("open reply stream failed")
		utils.RespondError(w, openStatus(err), openMessage(err))
		return
	}
	defer stream.Close()

	utils.SetupTextStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reply, err := relay(stream, func(token string) error {
		return utils.WriteChunk(w, flusher, token)
	})
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(reply)).Msg("reply stream aborted")
		// 中途失败时断开连接，客户端才不会把半截回复当成完整结束
		panic(http.ErrAbortHandler)
	}

	h.commit(ctx, logger, req, reply)
}

func (h *Handler) open(ctx context.Context, req chatRequest) (aiService.TokenStream, error) {
	if h.llm == nil {
		return nil, aiService.ErrProviderUnavailable
	}
	turns := h.history.Prompt(ctx, req.SessionID, req.Message)
	return h.llm.Stream(ctx, turns)
}

func (h *Handler) commit(ctx context.Context, logger zerolog.Logger, req chatRequest, reply string) {
	if err := h.history.Commit(ctx, req.SessionID, req.Message, reply); err != nil {
		logger.Error().Err(err).Msg("record exchange failed")
		return
	}
	logger.Debug().Int("bytes", len(reply)).Msg("reply completed")
}

// relay forwards tokens to emit until the stream ends and returns the full
// reply. A nil error means the provider finished cleanly.
func relay(stream aiService.TokenStream, emit func(string) error) (string, error) {
	var reply strings.Builder
	for {
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return reply.String(), nil
		}
		if err != nil {
			return reply.String(), errors.Wrap(err, "receive token")
		}
		if token == "" {
			continue
		}
		if err := emit(token); err != nil {
			return reply.String(), errors.Wrap(err, "write token")
		}
		reply.WriteString(token)
	}
}

func openStatus(err error) int {
	if errors.Is(err, aiService.ErrProviderUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func openMessage(err error) string {
	if errors.Is(err, aiService.ErrProviderUnavailable) {
		return "ai streaming unavailable"
	}
	return "failed to start reply stream"
}
