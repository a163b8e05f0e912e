package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	chatSocketPath = "/chat-ws"
	closeWait      = time.Second
)

// WebSocketTransport opens one websocket per submission on /chat-ws. Every
// text frame is a chunk; a normal close ends the reply, any other close is a
// failure.
type WebSocketTransport struct {
	endpoint string
	dialer   *websocket.Dialer
	http     *HTTPTransport
}

// NewWebSocketTransport returns a transport for endpoint, given with an
// http(s) or ws(s) scheme.
func NewWebSocketTransport(endpoint string, handshakeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		endpoint: strings.TrimRight(endpoint, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		http: NewHTTPTransport(httpEndpoint(endpoint), handshakeTimeout),
	}
}

// Open implements Transport.
func (t *WebSocketTransport) Open(ctx context.Context, req Request) (Stream, error) {
	target, err := socketURL(t.endpoint)
	if err != nil {
		return nil, err
	}

	conn, resp, err := t.dialer.DialContext(ctx, target+chatSocketPath, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return nil, statusError(resp)
		}
		return nil, errors.Wrap(err, "dial chat socket")
	}

	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send request")
	}

	stream := &socketStream{conn: conn, done: make(chan struct{})}
	go stream.watch(ctx)
	return stream, nil
}

// ClearHistory goes over plain HTTP; the socket endpoint only streams.
func (t *WebSocketTransport) ClearHistory(ctx context.Context, sessionID string) error {
	return t.http.ClearHistory(ctx, sessionID)
}

type socketStream struct {
	conn *websocket.Conn
	done chan struct{}
}

// watch unblocks a pending read when ctx ends.
func (s *socketStream) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.conn.SetReadDeadline(time.Now())
	case <-s.done:
	}
}

func (s *socketStream) Recv() ([]byte, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "read frame")
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

func (s *socketStream) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	return s.conn.Close()
}

func socketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrapf(err, "parse endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func httpEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "ws://"):
		return "http://" + strings.TrimPrefix(endpoint, "ws://")
	case strings.HasPrefix(endpoint, "wss://"):
		return "https://" + strings.TrimPrefix(endpoint, "wss://")
	}
	return endpoint
}
