package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	chatStreamPath   = "/chat-stream"
	clearHistoryPath = "/clear-history"

	readBufferSize = 4096
	errorBodyLimit = 512
)

// HTTPTransport posts to the backend's /chat-stream endpoint and streams the
// plain-text reply body.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport returns a transport for endpoint (scheme, host and
// optional path prefix). headerTimeout bounds the wait for response headers
// only; the body may stream for as long as the backend keeps it open.
func NewHTTPTransport(endpoint string, headerTimeout time.Duration) *HTTPTransport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if headerTimeout > 0 {
		base.ResponseHeaderTimeout = headerTimeout
	}
	return &HTTPTransport{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Transport: base},
	}
}

// Open implements Transport.
func (t *HTTPTransport) Open(ctx context.Context, req Request) (Stream, error) {
	resp, err := t.post(ctx, chatStreamPath, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	// 204/205 carry no body at all; a zero-length 200 is an empty reply
	if resp.Body == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}
	return &bodyStream{body: resp.Body, buf: make([]byte, readBufferSize)}, nil
}

type clearHistoryRequest struct {
	SessionID string `json:"session_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ClearHistory asks the backend to drop its history for sessionID. An
// unknown session is not an error.
func (t *HTTPTransport) ClearHistory(ctx context.Context, sessionID string) error {
	resp, err := t.post(ctx, clearHistoryPath, clearHistoryRequest{SessionID: sessionID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	var body messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errors.Wrap(err, "decode clear-history response")
	}
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

type bodyStream struct {
	body io.ReadCloser
	buf  []byte
}

func (s *bodyStream) Recv() ([]byte, error) {
	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			// io.EOF is reported on the next call
			return chunk, nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, "read reply")
		}
	}
}

func (s *bodyStream) Close() error {
	return s.body.Close()
}
