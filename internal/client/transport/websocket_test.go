package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func socketServer(t *testing.T, serve func(conn *websocket.Conn, req Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatSocketPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		serve(conn, req)
	}))
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func TestWebSocketStreamsFrames(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, req Request) {
		conn.WriteMessage(websocket.TextMessage, []byte("echo: "))
		conn.WriteMessage(websocket.TextMessage, []byte(req.Message))
		closeWith(conn, websocket.CloseNormalClosure, "")
	})
	defer srv.Close()

	stream, err := NewWebSocketTransport(srv.URL, time.Second).Open(context.Background(), Request{Message: "hi", SessionID: "s"})
	require.NoError(t, err)
	defer stream.Close()

	body, err := readAll(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", string(body))
}

func TestWebSocketAbnormalCloseIsFailure(t *testing.T) {
	srv := socketServer(t, func(conn *websocket.Conn, req Request) {
		conn.WriteMessage(websocket.TextMessage, []byte("par"))
		closeWith(conn, websocket.CloseInternalServerErr, "provider failed")
	})
	defer srv.Close()

	stream, err := NewWebSocketTransport(srv.URL, time.Second).Open(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	defer stream.Close()

	body, err := readAll(t, stream)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(errors.Cause(err), websocket.CloseInternalServerErr))
	assert.Equal(t, "par", string(body))
}

func TestWebSocketContextCancelUnblocksRecv(t *testing.T) {
	release := make(chan struct{})
	srv := socketServer(t, func(conn *websocket.Conn, req Request) {
		<-release
	})
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewWebSocketTransport(srv.URL, time.Second).Open(ctx, Request{Message: "hi"})
	require.NoError(t, err)
	defer stream.Close()

	cancel()
	_, err = stream.Recv()
	assert.Error(t, err)
}

func TestWebSocketHandshakeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no provider", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewWebSocketTransport(srv.URL, time.Second).Open(context.Background(), Request{Message: "hi"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000": "ws://localhost:8000",
		"https://example.com/x": "wss://example.com/x",
		"ws://localhost:8000":   "ws://localhost:8000",
	}
	for in, want := range cases {
		got, err := socketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := socketURL("ftp://nope")
	assert.Error(t, err)
}
