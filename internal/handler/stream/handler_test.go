package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/streamchat/internal/client/transport"
	"github.com/zhouzirui/streamchat/internal/model/chat"
	aiService "github.com/zhouzirui/streamchat/internal/service/ai"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

type tokenStream struct {
	tokens []string
	err    error
}

func (s *tokenStream) Recv() (string, error) {
	if len(s.tokens) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *tokenStream) Close() {}

type fakeGenerator struct {
	mu      sync.Mutex
	tokens  []string
	err     error
	openErr error
	prompts [][]chat.Turn
}

func (g *fakeGenerator) Stream(_ context.Context, turns []chat.Turn) (aiService.TokenStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, turns)
	if g.openErr != nil {
		return nil, g.openErr
	}
	return &tokenStream{tokens: append([]string(nil), g.tokens...), err: g.err}, nil
}

func (g *fakeGenerator) lastPrompt() []chat.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return nil
	}
	return g.prompts[len(g.prompts)-1]
}

func newServer(t *testing.T, gen Generator) (*httptest.Server, *chatService.Service) {
	t.Helper()
	history := chatService.NewService("You are a helpful AI assistant.", 20)
	r := chi.NewRouter()
	New(gen, history).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, history
}

func postChat(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/chat-stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatStreamWritesTokens(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Hello", ", ", "world"}}
	srv, history := newServer(t, gen)

	resp := postChat(t, srv, `{"message":"hi","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", string(body))

	turns, err := history.LoadTranscript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "Hello, world"},
	}, turns)
}

func TestChatStreamSendsHistory(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"ok"}}
	srv, _ := newServer(t, gen)

	for _, msg := range []string{"first", "second"} {
		resp := postChat(t, srv, `{"message":"`+msg+`"}`)
		_, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
	}

	prompt := gen.lastPrompt()
	require.Len(t, prompt, 4)
	assert.Equal(t, chat.RoleSystem, prompt[0].Role)
	assert.Equal(t, "You are a helpful AI assistant.", prompt[0].Content)
	assert.Equal(t, chat.Turn{Role: chat.RoleUser, Content: "first"}, prompt[1])
	assert.Equal(t, chat.Turn{Role: chat.RoleAssistant, Content: "ok"}, prompt[2])
	assert.Equal(t, chat.Turn{Role: chat.RoleUser, Content: "second"}, prompt[3])
}

func TestChatStreamRejectsBadRequests(t *testing.T) {
	srv, _ := newServer(t, &fakeGenerator{})

	cases := map[string]string{
		"invalid json": `{"message":`,
		"empty":        `{"message":""}`,
		"blank":        `{"message":"   "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postChat(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestChatStreamWithoutProvider(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp := postChat(t, srv, `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ai streaming unavailable", body["error"])
}

func TestChatStreamOpenFailure(t *testing.T) {
	gen := &fakeGenerator{openErr: errors.New("upstream 500")}
	srv, history := newServer(t, gen)

	resp := postChat(t, srv, `{"message":"hi","session_id":"s1"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	turns, err := history.LoadTranscript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChatStreamMidStreamFailureAborts(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"partial"}, err: errors.New("provider reset")}
	srv, history := newServer(t, gen)

	resp := postChat(t, srv, `{"message":"hi","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
	assert.Equal(t, "partial", string(body))

	turns, err := history.LoadTranscript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func readStream(t *testing.T, stream transport.Stream) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return buf.String(), nil
		}
		if err != nil {
			return buf.String(), err
		}
		buf.Write(chunk)
	}
}

func TestTransportsAgainstHandler(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"你", "好", "!"}}
	srv, _ := newServer(t, gen)

	transports := map[string]transport.Transport{
		"http":      transport.NewHTTPTransport(srv.URL, time.Second),
		"websocket": transport.NewWebSocketTransport(srv.URL, time.Second),
	}
	for name, tr := range transports {
		t.Run(name, func(t *testing.T) {
			stream, err := tr.Open(context.Background(), transport.Request{Message: "hi", SessionID: name})
			require.NoError(t, err)
			defer stream.Close()

			got, err := readStream(t, stream)
			require.NoError(t, err)
			assert.Equal(t, "你好!", got)
		})
	}
}

func dialSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat-ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntilClose(t *testing.T, conn *websocket.Conn) (string, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var buf strings.Builder
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return buf.String(), err
		}
		buf.Write(data)
	}
}

func TestChatSocketCloseCodes(t *testing.T) {
	cases := []struct {
		name    string
		gen     Generator
		request string
		code    int
		text    string
	}{
		{"completed", &fakeGenerator{tokens: []string{"a", "b"}}, `{"message":"hi"}`, websocket.CloseNormalClosure, "ab"},
		{"empty message", &fakeGenerator{}, `{"message":" "}`, websocket.ClosePolicyViolation, ""},
		{"invalid json", &fakeGenerator{}, `not json`, websocket.ClosePolicyViolation, ""},
		{"no provider", nil, `{"message":"hi"}`, websocket.CloseTryAgainLater, ""},
		{"open failure", &fakeGenerator{openErr: errors.New("boom")}, `{"message":"hi"}`, websocket.CloseInternalServerErr, ""},
		{"mid-stream failure", &fakeGenerator{tokens: []string{"par"}, err: errors.New("reset")}, `{"message":"hi"}`, websocket.CloseInternalServerErr, "par"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newServer(t, tc.gen)
			conn := dialSocket(t, srv)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.request)))

			text, err := readUntilClose(t, conn)
			assert.True(t, websocket.IsCloseError(err, tc.code), "got %v", err)
			assert.Equal(t, tc.text, text)
		})
	}
}

func TestChatSocketCommitsOnlyCompletedReplies(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"par"}, err: errors.New("reset")}
	srv, history := newServer(t, gen)

	conn := dialSocket(t, srv)
	require.NoError(t, conn.WriteJSON(chatRequest{Message: "hi", SessionID: "ws"}))
	_, err := readUntilClose(t, conn)
	require.Error(t, err)

	turns, err := history.LoadTranscript(context.Background(), "ws")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRelayStopsOnEmitError(t *testing.T) {
	stream := &tokenStream{tokens: []string{"a", "", "b", "c"}}
	var got []string
	reply, err := relay(stream, func(tok string) error {
		got = append(got, tok)
		if tok == "b" {
			return errors.New("peer gone")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, "a", reply)
}
