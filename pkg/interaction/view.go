package interaction

import (
	"time"

	"github.com/portfolio-globe/backend/pkg/geo"
)

// View is the globe (3d) or flat map (2d) rendering.
type View string

const (
	View3D View = "3d"
	View2D View = "2d"
)

// ParseView accepts "2d"; anything else is 3d.
func ParseView(s string) View {
	if s == string(View2D) {
		return View2D
	}
	return View3D
}

// Fullscreen mirrors what the client last reported.
type Fullscreen struct {
	Active    bool `json:"active"`
	Requested bool `json:"requested"`
}

// RequestFullscreen records that the client asked for fullscreen in view.
// Nothing is considered fullscreen until OnFullscreenChange confirms it.
func (c *Controller) RequestFullscreen(view View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullscreen.Requested = true
	c.view = view
}

// OnFullscreenChange applies a fullscreen notification from the client. It
// wins over any earlier request, so an exit the user made outside the
// controller is picked up here.
func (c *Controller) OnFullscreenChange(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullscreen.Active = active
	c.fullscreen.Requested = false
}

// ToggleView switches between globe and flat map.
func (c *Controller) ToggleView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == View3D {
		c.view = View2D
	} else {
		c.view = View3D
	}
	return c.view
}

// SetViewport sizes both cameras. Until it is called with a positive size
// no overlay can be projected.
func (c *Controller) SetViewport(width, height float64) {
	c.globe.SetViewport(width, height)
	c.flat.SetViewport(width, height)
}

// Projector returns the camera of the current view.
func (c *Controller) Projector() geo.Projector {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == View2D {
		return c.flat
	}
	return c.globe
}

// ScreenProjection implements geo.Projector using the current view.
func (c *Controller) ScreenProjection(lat, lng float64) (geo.Point2, bool) {
	return c.Projector().ScreenProjection(lat, lng)
}

const (
	HoverDebounce = 100 * time.Millisecond
	HoverTimeout  = 10 * time.Second
)

type hoverState struct {
	candidate   string
	candidateAt time.Time
	current     string
	currentAt   time.Time
}

func (h *hoverState) settle(now time.Time) {
	if h.candidate != "" && now.Sub(h.candidateAt) >= HoverDebounce {
		h.current = h.candidate
		h.currentAt = h.candidateAt.Add(HoverDebounce)
		h.candidate = ""
	}
	if h.current != "" && now.Sub(h.currentAt) >= HoverTimeout {
		h.current = ""
	}
}

// Hover reports the pointer over id at now. Only the last hover of a burst
// counts and it takes effect HoverDebounce later. An empty id drops a
// hover that has not taken effect yet.
func (c *Controller) Hover(id string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hover.settle(now)
	c.hover.candidate = id
	c.hover.candidateAt = now
}

// HoveredAt returns the hovered node at now. A hover expires HoverTimeout
// after it took effect.
func (c *Controller) HoveredAt(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hover.settle(now)
	return c.hover.current
}

// ClearHover drops any hover.
func (c *Controller) ClearHover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hover = hoverState{}
}
