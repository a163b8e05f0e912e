package utils

import (
	"io"
	"net/http"
)

// SetupTextStreamHeaders 设置纯文本流响应头
func SetupTextStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// WriteChunk writes one chunk of a streamed body and flushes it to the peer.
func WriteChunk(w io.Writer, flusher http.Flusher, chunk string) error {
	if chunk == "" {
		return nil
	}
	if _, err := io.WriteString(w, chunk); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
