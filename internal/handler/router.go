package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/streamchat/internal/handler/chat"
	"github.com/zhouzirui/streamchat/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/streamchat/internal/middleware"
	aiService "github.com/zhouzirui/streamchat/internal/service/ai"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

// NewRouter wires HTTP routes to core services. aiSvc may be nil; the stream
// routes then answer 503.
func NewRouter(chatSvc *chatService.Service, aiSvc *aiService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chat.New(chatSvc).RegisterRoutes(r)

	var llm stream.Generator
	if aiSvc != nil {
		llm = aiSvc
	}
	stream.New(llm, chatSvc).RegisterRoutes(r)

	return r
}
