// Package render computes everything that changes from frame to frame:
// time-based opacities, ring propagation, particles and the frame payload.
// All time functions take milliseconds so a fixed timestamp always yields
// the same frame.
package render

import (
	"math"
	"time"
)

const (
	PulsePeriodMs     = 300.0
	BreathingPeriodMs = 1000.0
	// RingRepeatMs is how often a new ring starts from a marker.
	RingRepeatMs = 1500
	// ArcDashMs is the time one dash takes to travel an arc.
	ArcDashMs = 1500
	// RingMaxRadius is in globe degrees.
	RingMaxRadius = 5.0
)

// Clock supplies the time for a frame.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// Millis converts t to the millisecond timestamps used by this package.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// PulseOpacity is the stroke opacity of a selected or major marker.
// It stays within [0.2, 1].
func PulseOpacity(ms int64) float64 {
	return 0.6 + 0.4*math.Sin(float64(ms)/PulsePeriodMs)
}

// BreathingOpacity is the opacity of relation paths. It stays within
// [0.2, 0.8].
func BreathingOpacity(ms int64) float64 {
	return 0.5 + 0.3*math.Sin(float64(ms)/BreathingPeriodMs)
}

// RingPhase is the progress in [0, 1) of the ring that started most
// recently at or before now. Rings start at start and every period
// milliseconds after. now and now+period give the same phase.
func RingPhase(now, start, period int64) float64 {
	if period <= 0 {
		return 0
	}
	d := (now - start) % period
	if d < 0 {
		d += period
	}
	return float64(d) / float64(period)
}

// RingRadius is the radius of a ring at phase.
func RingRadius(phase, maxRadius float64) float64 {
	return phase * maxRadius
}

// RingOpacity fades a ring out as it expands.
func RingOpacity(phase float64) float64 {
	return 1 - phase
}

// ArcDashOffset is the position in [0, 1) of the dash on an arc.
func ArcDashOffset(ms int64) float64 {
	return RingPhase(ms, 0, ArcDashMs)
}
