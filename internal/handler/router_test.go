package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	aiService "github.com/zhouzirui/streamchat/internal/service/ai"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

type echoStreamer struct{}

func (echoStreamer) Stream(_ context.Context, turns []chat.Turn) (aiService.TokenStream, error) {
	return &echoStream{text: "echo: " + turns[len(turns)-1].Content}, nil
}

type echoStream struct {
	text string
	done bool
}

func (s *echoStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *echoStream) Close() {}

func TestRouterServesChatRoutes(t *testing.T) {
	history := chatService.NewService("sys", 20)
	srv := httptest.NewServer(NewRouter(history, aiService.NewServiceWithStreamer("echo", echoStreamer{})))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	var root map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&root))
	resp.Body.Close()
	assert.Equal(t, "Chat API is running!", root["message"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Post(srv.URL+"/chat-stream", "application/json", strings.NewReader(`{"message":"ping"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", string(body))

	turns, err := history.LoadTranscript(context.Background(), chatService.DefaultSessionID)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestRouterWithoutAIService(t *testing.T) {
	srv := httptest.NewServer(NewRouter(chatService.NewService("sys", 20), nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat-stream", "application/json", strings.NewReader(`{"message":"ping"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
