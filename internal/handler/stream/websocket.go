package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	closeGrace   = time.Second
	maxRequest   = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleChatSocket 处理一次 websocket 对话：读取一个请求，逐帧写出回复，
// 以 1000 结束；其他关闭码都表示失败。
func (h *Handler) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxRequest)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Debug().Err(err).Msg("read socket request failed")
		closeSocket(conn, websocket.ClosePolicyViolation, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		closeSocket(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	logger := h.logger.With().Str("session_id", req.SessionID).Str("transport", "websocket").Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	peerGone := make(chan struct{})
	go drain(conn, cancel, peerGone)
	go pingLoop(ctx, conn)

	stream, err := h.open(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("open reply stream failed")
		closeSocket(conn, openCloseCode(err), openMessage(err))
		awaitClose(peerGone)
		return
	}
	defer stream.Close()

	reply, err := relay(stream, func(token string) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, []byte(token))
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Int("bytes", len(reply)).Msg("peer left mid-reply")
			return
		}
		logger.Warn().Err(err).Int("bytes", len(reply)).Msg("reply stream aborted")
		closeSocket(conn, websocket.CloseInternalServerErr, "reply stream failed")
		awaitClose(peerGone)
		return
	}

	h.commit(ctx, logger, req, reply)
	closeSocket(conn, websocket.CloseNormalClosure, "")
	awaitClose(peerGone)
}

// drain reads until the peer goes away so control frames are processed and a
// disconnect cancels the provider stream.
func drain(conn *websocket.Conn, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// awaitClose gives the peer a moment to answer the close frame.
func awaitClose(peerGone <-chan struct{}) {
	select {
	case <-peerGone:
	case <-time.After(closeGrace):
	}
}

func openCloseCode(err error) int {
	if openStatus(err) == http.StatusServiceUnavailable {
		return websocket.CloseTryAgainLater
	}
	return websocket.CloseInternalServerErr
}
