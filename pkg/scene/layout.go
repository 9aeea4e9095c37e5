package scene

import (
	"math"

	"github.com/portfolio-globe/backend/pkg/geo"
)

const (
	// childRadius is the distance of the first shell of children from their parent.
	childRadius = 30.0
	// rootRadius is the distance of the first shell of roots from the origin.
	rootRadius = 60.0
	// shellSize is how many positions one shell holds before the next,
	// larger shell is used.
	shellSize = 12
)

var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// SpiralOffset returns the offset of the i-th child from its parent. Every
// index within a shell gets a different inclination and every shell a
// different radius, so two indices never share a position.
func SpiralOffset(i int, base float64) geo.Vec3 {
	if i < 0 {
		i = 0
	}
	shell := i / shellSize
	j := i % shellSize
	r := base * (1 + 0.5*float64(shell))

	azimuth := float64(i) * goldenAngle
	// evenly spaced heights in (-1, 1), as in a fibonacci sphere
	y := 1 - 2*(float64(j)+0.5)/shellSize
	ring := math.Sqrt(1 - y*y)
	return geo.Vec3{
		X: r * ring * math.Cos(azimuth),
		Y: r * y,
		Z: r * ring * math.Sin(azimuth),
	}
}

func placeChild(parent geo.Vec3, index int) geo.Vec3 {
	return parent.Add(SpiralOffset(index, childRadius))
}

func placeRoot(index int) geo.Vec3 {
	if index == 0 {
		return geo.Vec3{}
	}
	return SpiralOffset(index-1, rootRadius)
}
