package client_test

import (
	"context"
	"io"
	"sync"

	"github.com/zhouzirui/streamchat/internal/client/transport"
)

type step struct {
	data []byte
	err  error
}

func chunks(parts ...string) []step {
	steps := make([]step, 0, len(parts))
	for _, p := range parts {
		steps = append(steps, step{data: []byte(p)})
	}
	return steps
}

type fakeStream struct {
	mu     sync.Mutex
	steps  []step
	gate   chan struct{}
	closed bool
}

func (s *fakeStream) Recv() ([]byte, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return nil, io.EOF
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.data, next.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	openErr  error
	steps    []step
	gate     chan struct{}
	opened   chan struct{}
	requests []transport.Request
	streams  []*fakeStream
}

func (f *fakeTransport) Open(ctx context.Context, req transport.Request) (transport.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.opened != nil {
		f.opened <- struct{}{}
	}
	if f.openErr != nil {
		return nil, f.openErr
	}

	stream := &fakeStream{steps: append([]step(nil), f.steps...), gate: f.gate}
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()
	return stream, nil
}

func (f *fakeTransport) Requests() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Request(nil), f.requests...)
}

type clearingTransport struct {
	fakeTransport
	cleared []string
}

func (c *clearingTransport) ClearHistory(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	c.cleared = append(c.cleared, sessionID)
	c.mu.Unlock()
	return nil
}
