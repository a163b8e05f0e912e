package tui

import "sync/atomic"

// Follow is the scroll.Viewport handed to the client. The client calls it
// from whatever goroutine made the change, so it only records the request;
// the model applies it on the next render.
type Follow struct {
	pending atomic.Bool
}

// ScrollToEnd implements scroll.Viewport.
func (f *Follow) ScrollToEnd() {
	f.pending.Store(true)
}

func (f *Follow) take() bool {
	return f.pending.Swap(false)
}
