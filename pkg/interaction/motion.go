package interaction

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/scene"
)

const (
	// Damping is applied to the rotation velocity once per tick.
	Damping = 0.95
	// DragSensitivity converts pointer pixels into degrees per tick.
	DragSensitivity = 0.1
	JoystickSpeed   = 0.2
	KeySpeed        = 0.9
	// TriggerDistance is how close in degrees the plane must come to a
	// marker to open it.
	TriggerDistance = 2.0
	// CollectDistance is how close in degrees the plane must come to a coin.
	CollectDistance = 10.0
	CoinCount       = 20

	minVelocity = 1e-3
)

// FlightStart is where the plane takes off.
var FlightStart = geo.LatLng{Lat: 55.7558, Lng: 37.6173}

type motion struct {
	velLat, velLng float64
	joyX, joyY     float64
	keys           map[string]bool
}

type placeMarker struct {
	id string
	at geo.LatLng
}

func placeMarkers(nodes []scene.Node) []placeMarker {
	var out []placeMarker
	for _, n := range nodes {
		if n.Geo != nil {
			out = append(out, placeMarker{id: n.ID, at: *n.Geo})
		}
	}
	return out
}

// Coin is a collectible on the globe.
type Coin struct {
	ID int        `json:"id"`
	At geo.LatLng `json:"at"`
}

// Flight is the state of the plane demo.
type Flight struct {
	Plane      geo.LatLng `json:"plane"`
	Coins      []Coin     `json:"coins"`
	Collected  int        `json:"collected"`
	Triggered  []string   `json:"triggered"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt,omitzero"`
}

func (f *Flight) clone() Flight {
	out := *f
	out.Coins = append([]Coin(nil), f.Coins...)
	out.Triggered = append([]string(nil), f.Triggered...)
	return out
}

func (f *Flight) triggered(id string) bool {
	for _, t := range f.Triggered {
		if t == id {
			return true
		}
	}
	return false
}

// Finished reports whether every coin was collected.
func (f *Flight) Finished() bool {
	return !f.FinishedAt.IsZero()
}

// Elapsed is the flight time up to now, or up to the finish.
func (f *Flight) Elapsed(now time.Time) time.Duration {
	if f.Finished() {
		return f.FinishedAt.Sub(f.StartedAt)
	}
	return now.Sub(f.StartedAt)
}

// Drag adds a pointer delta in pixels to the rotation velocity.
func (c *Controller) Drag(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.motion.velLng -= dx * DragSensitivity
	c.motion.velLat += dy * DragSensitivity
}

// Joystick sets the stick direction. Only the sign of each axis matters;
// positive y is north and positive x is east. (0, 0) releases the stick
// and every held key.
func (c *Controller) Joystick(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.motion.joyX, c.motion.joyY = x, y
	if x == 0 && y == 0 {
		clear(c.motion.keys)
	}
}

// Key records a WASD key going down or up. Other keys are ignored and
// false is returned.
func (c *Controller) Key(key string, down bool) bool {
	key = strings.ToLower(key)
	switch key {
	case "w", "a", "s", "d":
	default:
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.motion.keys == nil {
		c.motion.keys = map[string]bool{}
	}
	c.motion.keys[key] = down
	return true
}

// StartFlight starts the plane demo with fresh coins.
func (c *Controller) StartFlight(now time.Time, rng *rand.Rand) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(now.UnixNano()), 0))
	}
	coins := make([]Coin, CoinCount)
	for i := range coins {
		coins[i] = Coin{ID: i, At: geo.LatLng{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flight = &Flight{Plane: FlightStart, Coins: coins, StartedAt: now}
	c.globe.SetPointOfView(geo.PointOfView{Lat: FlightStart.Lat, Lng: FlightStart.Lng, Altitude: 2})
}

// StopFlight ends the plane demo.
func (c *Controller) StopFlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flight = nil
	c.motion.joyX, c.motion.joyY = 0, 0
	clear(c.motion.keys)
}

// TickResult is what one tick changed.
type TickResult struct {
	Moved     bool     `json:"moved"`
	Triggered []string `json:"triggered,omitempty"`
	Collected int      `json:"collected,omitempty"`
	Finished  bool     `json:"finished,omitempty"`
}

// Tick advances continuous input by one animation frame. Rotation velocity
// is applied and then damped by a fixed factor; the plane moves by a fixed
// step per held direction.
func (c *Controller) Tick(now time.Time) TickResult {
	var markers []placeMarker
	if c.store != nil {
		markers = placeMarkers(c.store.Snapshot().Nodes())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res TickResult
	if c.motion.velLat != 0 || c.motion.velLng != 0 {
		pov := c.globe.PointOfView()
		pov.Lat += c.motion.velLat
		pov.Lng += c.motion.velLng
		c.globe.SetPointOfView(pov)
		c.motion.velLat *= Damping
		c.motion.velLng *= Damping
		if math.Hypot(c.motion.velLat, c.motion.velLng) < minVelocity {
			c.motion.velLat, c.motion.velLng = 0, 0
		}
		res.Moved = true
	}

	f := c.flight
	if f == nil || f.Finished() {
		return res
	}
	lat, lng := f.Plane.Lat, f.Plane.Lng
	moved := false
	step := func(dLat, dLng float64) {
		lat = geo.ClampLat(lat + dLat)
		lng = geo.WrapLng(lng + dLng)
		moved = true
	}
	k := c.motion.keys
	if k["w"] {
		step(KeySpeed, 0)
	}
	if k["s"] {
		step(-KeySpeed, 0)
	}
	if k["a"] {
		step(0, -KeySpeed)
	}
	if k["d"] {
		step(0, KeySpeed)
	}
	if c.motion.joyY > 0 {
		step(JoystickSpeed, 0)
	} else if c.motion.joyY < 0 {
		step(-JoystickSpeed, 0)
	}
	if c.motion.joyX > 0 {
		step(0, JoystickSpeed)
	} else if c.motion.joyX < 0 {
		step(0, -JoystickSpeed)
	}
	if !moved {
		return res
	}

	res.Moved = true
	f.Plane = geo.LatLng{Lat: lat, Lng: lng}
	c.globe.SetPointOfView(geo.PointOfView{Lat: lat, Lng: lng, Altitude: 2})

	remaining := f.Coins[:0]
	for _, coin := range f.Coins {
		if geo.PlanarDistance(coin.At, f.Plane) < CollectDistance {
			f.Collected++
			res.Collected++
			continue
		}
		remaining = append(remaining, coin)
	}
	f.Coins = remaining

	for _, m := range markers {
		if geo.PlanarDistance(m.at, f.Plane) < TriggerDistance && !f.triggered(m.id) {
			f.Triggered = append(f.Triggered, m.id)
			res.Triggered = append(res.Triggered, m.id)
		}
	}

	if len(f.Coins) == 0 {
		f.FinishedAt = now
		res.Finished = true
	}
	return res
}
