// Package scroll decides whether new content should pull the viewport to the
// bottom or count as unread.
package scroll

import "sync"

// DefaultThreshold is the distance from the bottom, in viewport units, that
// still counts as "at the bottom".
const DefaultThreshold = 100

// Viewport is the surface the controller drives.
type Viewport interface {
	ScrollToEnd()
}

// Position describes the current scroll geometry. Units are whatever the
// viewport uses (pixels, lines), as long as they are consistent.
type Position struct {
	Offset  int
	Height  int
	Content int
}

// State is a point-in-time view of the controller.
type State struct {
	NearBottom  bool
	UnreadCount int
}

// Controller tracks near-bottom status and the unread counter.
type Controller struct {
	mu         sync.Mutex
	viewport   Viewport
	threshold  int
	nearBottom bool
	unread     int
}

// NewController returns a controller that starts at the bottom with nothing
// unread. viewport may be nil; threshold <= 0 selects DefaultThreshold.
func NewController(viewport Viewport, threshold int) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{
		viewport:   viewport,
		threshold:  threshold,
		nearBottom: true,
	}
}

// SetViewport swaps the driven viewport.
func (c *Controller) SetViewport(viewport Viewport) {
	c.mu.Lock()
	c.viewport = viewport
	c.mu.Unlock()
}

// Scrolled records a user scroll and recomputes near-bottom status.
func (c *Controller) Scrolled(pos Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nearBottom = pos.Content-pos.Offset-pos.Height <= c.threshold
	if c.nearBottom {
		c.unread = 0
	}
}

// ContentChanged is called after every transcript mutation.
func (c *Controller) ContentChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nearBottom {
		c.scrollToEnd()
		c.unread = 0
		return
	}
	c.unread++
}

// JumpToEnd scrolls to the bottom and clears the unread counter.
func (c *Controller) JumpToEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scrollToEnd()
	c.unread = 0
	c.nearBottom = true
}

// State returns the current status.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{NearBottom: c.nearBottom, UnreadCount: c.unread}
}

func (c *Controller) scrollToEnd() {
	if c.viewport != nil {
		c.viewport.ScrollToEnd()
	}
}
