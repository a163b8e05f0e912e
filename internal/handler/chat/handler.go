package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
	"github.com/zhouzirui/streamchat/pkg/utils"
)

// History is the part of the history service the chat routes need.
type History interface {
	Clear(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	history History
}

// New 创建聊天处理器
func New(history History) *Handler {
	return &Handler{history: history}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Post("/clear-history", h.handleClearHistory)
	r.Get("/history/{sessionID}", h.handleHistory)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	utils.RespondMessage(w, http.StatusOK, "Chat API is running!")
}

// handleClearHistory 清空会话历史，保留系统提示
func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.history.Clear(r.Context(), payload.SessionID)
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondMessage(w, http.StatusOK, "Session not found")
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondMessage(w, http.StatusOK, "Conversation history cleared")
	}
}

type historyResponse struct {
	Session chat.Session `json:"session"`
	Turns   []chat.Turn  `json:"turns"`
}

// handleHistory 返回会话已记录的对话轮次
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.history.GetSession(r.Context(), sessionID)
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	turns, err := h.history.LoadTranscript(r.Context(), session.ID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, historyResponse{Session: session, Turns: turns})
}
