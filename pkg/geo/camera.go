package geo

import (
	"math"
	"sync"
)

// Projector maps a geographic coordinate to a screen position. ok is false
// when no viewport exists yet or the point is not visible; callers skip the
// overlay for that frame.
type Projector interface {
	ScreenProjection(lat, lng float64) (Point2, bool)
}

// PointOfView describes where a globe camera looks from. Altitude is in
// globe radii above the surface.
type PointOfView struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Altitude float64 `json:"altitude"`
}

// DefaultPointOfView looks at Istanbul.
var DefaultPointOfView = PointOfView{Lat: 41.0082, Lng: 28.9784, Altitude: 2}

// GlobeCamera is an orthographic camera looking at the globe center from
// its point of view. The zero value has no viewport.
type GlobeCamera struct {
	mu     sync.RWMutex
	pov    PointOfView
	width  float64
	height float64
}

// NewGlobeCamera returns a camera without a viewport.
func NewGlobeCamera(pov PointOfView) *GlobeCamera {
	return &GlobeCamera{pov: pov}
}

// SetViewport sets the screen size. Non-positive sizes reset the camera to
// the uninitialized state.
func (c *GlobeCamera) SetViewport(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if width <= 0 || height <= 0 {
		width, height = 0, 0
	}
	c.width, c.height = width, height
}

// SetPointOfView moves the camera.
func (c *GlobeCamera) SetPointOfView(pov PointOfView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pov.Lat = ClampLat(pov.Lat)
	pov.Lng = WrapLng(pov.Lng)
	if pov.Altitude <= 0 {
		pov.Altitude = DefaultPointOfView.Altitude
	}
	c.pov = pov
}

// PointOfView returns the current camera position.
func (c *GlobeCamera) PointOfView() PointOfView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pov
}

// Ready reports whether a viewport has been set.
func (c *GlobeCamera) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width > 0 && c.height > 0
}

// ScreenProjection implements Projector. Points on the far hemisphere are
// reported as not visible.
func (c *GlobeCamera) ScreenProjection(lat, lng float64) (Point2, bool) {
	c.mu.RLock()
	pov, w, h := c.pov, c.width, c.height
	c.mu.RUnlock()
	if w <= 0 || h <= 0 {
		return Point2{}, false
	}

	p := ToCartesian(lat, lng, 1)
	forward := ToCartesian(pov.Lat, pov.Lng, 1)
	if p.Dot(forward) < 0 {
		return Point2{}, false
	}

	// camera basis: right is perpendicular to forward in the equatorial plane
	up := Vec3{Y: 1}
	right := cross(up, forward)
	if right.Length() < 1e-9 {
		right = Vec3{X: 1}
	}
	right = right.Scale(1 / right.Length())
	trueUp := cross(forward, right)

	// the globe fills 1/altitude of the shorter screen side
	scale := math.Min(w, h) / 2 / pov.Altitude
	return Point2{
		X: w/2 + p.Dot(right)*scale,
		Y: h/2 - p.Dot(trueUp)*scale,
	}, true
}

func cross(a, b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// FlatCamera projects onto a 2D Mollweide map that fills its viewport.
type FlatCamera struct {
	mu     sync.RWMutex
	width  float64
	height float64
}

// SetViewport sets the screen size.
func (c *FlatCamera) SetViewport(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if width <= 0 || height <= 0 {
		width, height = 0, 0
	}
	c.width, c.height = width, height
}

// ScreenProjection implements Projector.
func (c *FlatCamera) ScreenProjection(lat, lng float64) (Point2, bool) {
	c.mu.RLock()
	w, h := c.width, c.height
	c.mu.RUnlock()
	if w <= 0 || h <= 0 {
		return Point2{}, false
	}
	x, y := mollweide(lat, lng)
	// mollweide spans x in [-2√2, 2√2] and y in [-√2, √2]
	scale := math.Min(w/(4*math.Sqrt2), h/(2*math.Sqrt2))
	return Point2{X: w/2 + x*scale, Y: h/2 - y*scale}, true
}

func mollweide(lat, lng float64) (float64, float64) {
	lat = clamp(lat, -89.5, 89.5)
	latRad, lngRad := radians(lat), radians(WrapLng(lng))
	theta := latRad
	for i := 0; i < 10; i++ {
		denom := 2 + 2*math.Cos(2*theta)
		if math.Abs(denom) < 1e-9 {
			break
		}
		delta := (2*theta + math.Sin(2*theta) - math.Pi*math.Sin(latRad)) / denom
		theta -= delta
		if math.Abs(delta) < 1e-7 {
			break
		}
	}
	return (2 * math.Sqrt2 / math.Pi) * lngRad * math.Cos(theta), math.Sqrt2 * math.Sin(theta)
}
