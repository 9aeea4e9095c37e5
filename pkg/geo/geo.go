// Package geo maps geographic coordinates into globe space and onto a screen.
package geo

import "math"

// GlobeRadius is the radius of the rendered globe in scene units.
const GlobeRadius = 100.0

// LatLng is a geographic coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Vec3 is a point in scene space. Y points to the north pole.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point2 is a screen position in pixels, origin at the top left.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// ToCartesian converts lat/lng on a sphere of the given radius into scene
// space. Latitude 0, longitude 0 lands on +X and the north pole on +Y.
func ToCartesian(lat, lng, radius float64) Vec3 {
	phi := radians(90 - lat)
	theta := radians(lng + 180)
	return Vec3{
		X: -radius * math.Sin(phi) * math.Cos(theta),
		Y: radius * math.Cos(phi),
		Z: radius * math.Sin(phi) * math.Sin(theta),
	}
}

// ToLatLng is the inverse of ToCartesian. The zero vector maps to 0,0.
func ToLatLng(v Vec3) LatLng {
	r := v.Length()
	if r == 0 {
		return LatLng{}
	}
	phi := math.Acos(clamp(v.Y/r, -1, 1))
	theta := math.Atan2(v.Z, -v.X)
	return LatLng{
		Lat: 90 - degrees(phi),
		Lng: WrapLng(degrees(theta) - 180),
	}
}

// Length returns the euclidean norm of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Distance returns the euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float64 {
	return v.Add(o.Scale(-1)).Length()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClampLat limits a latitude to [-90, 90].
func ClampLat(lat float64) float64 {
	return clamp(lat, -90, 90)
}

// WrapLng folds a longitude into [-180, 180].
func WrapLng(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// Normalize clamps the latitude and wraps the longitude.
func (p LatLng) Normalize() LatLng {
	return LatLng{Lat: ClampLat(p.Lat), Lng: WrapLng(p.Lng)}
}

// PlanarDistance is the euclidean distance in degree space. It ignores the
// antimeridian and is only meant for short-range proximity checks.
func PlanarDistance(a, b LatLng) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// PolygonCenter returns the vertex average of a GeoJSON ring given as
// [lng, lat] pairs. An empty ring yields the zero coordinate.
func PolygonCenter(ring [][]float64) LatLng {
	var lat, lng float64
	n := 0
	for _, p := range ring {
		if len(p) < 2 {
			continue
		}
		lng += p[0]
		lat += p[1]
		n++
	}
	if n == 0 {
		return LatLng{}
	}
	return LatLng{Lat: lat / float64(n), Lng: lng / float64(n)}
}
