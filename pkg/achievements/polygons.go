package achievements

import (
	"math"
	"os"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/style"
)

const (
	PolygonAlpha     = 0.6
	PolygonSideColor = "rgba(0, 0, 0, 0.1)"
	PolygonEmptyCap  = "rgba(0, 0, 0, 0)"
)

// feature properties that may carry a country name, most specific first
var nameKeys = []string{"ADMIN", "admin", "NAME", "name"}

// LoadPolygons reads a GeoJSON feature collection from path. A missing or
// invalid file yields an empty collection.
func LoadPolygons(path string) *geojson.FeatureCollection {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("[Globe] polygon file unavailable", "path", path, "err", err)
		return geojson.NewFeatureCollection()
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		logger.Warn("[Globe] polygon file invalid", "path", path, "err", err)
		return geojson.NewFeatureCollection()
	}
	return fc
}

// Polygon is a drawable country shape.
type Polygon struct {
	Name      string        `json:"name"`
	Rings     [][][]float64 `json:"rings"`
	Center    geo.LatLng    `json:"center"`
	Filled    bool          `json:"filled"`
	CapColor  string        `json:"capColor"`
	SideColor string        `json:"sideColor"`
	Altitude  float64       `json:"altitude"`
}

// CountryImportance averages the activity importance per country.
func CountryImportance(acts []Activity) map[string]float64 {
	sum := map[string]float64{}
	count := map[string]int{}
	for _, a := range Located(acts) {
		key := strings.ToLower(a.Map.Country)
		sum[key] += a.Importance
		count[key]++
	}
	for k := range sum {
		sum[k] /= float64(count[k])
	}
	return sum
}

// Polygons turns every polygon feature of fc into a drawable shape. Countries
// present in importance are filled with their importance color and raised.
// Altitudes shrink with the cosine of the center latitude.
func Polygons(fc *geojson.FeatureCollection, importance map[string]float64) []Polygon {
	out := []Polygon{}
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		name := featureName(f)
		score, filled := importance[strings.ToLower(name)]
		switch {
		case f.Geometry.IsPolygon():
			out = append(out, polygon(name, f.Geometry.Polygon, score, filled))
		case f.Geometry.IsMultiPolygon():
			for _, rings := range f.Geometry.MultiPolygon {
				out = append(out, polygon(name, rings, score, filled))
			}
		}
	}
	return out
}

func polygon(name string, rings [][][]float64, score float64, filled bool) Polygon {
	p := Polygon{Name: name, Rings: rings, Filled: filled, SideColor: PolygonSideColor, CapColor: PolygonEmptyCap}
	if len(rings) > 0 {
		p.Center = geo.PolygonCenter(rings[0])
	}
	p.Altitude = PolygonAltitude(p.Center.Lat, filled)
	if filled {
		p.CapColor = style.RGBA(style.ImportanceColor(score), PolygonAlpha)
	}
	return p
}

// PolygonAltitude is 0.01, or 0.02 when filled, scaled by cos(lat).
func PolygonAltitude(lat float64, filled bool) float64 {
	base := 0.01
	if filled {
		base = 0.02
	}
	return base * math.Cos(lat*math.Pi/180)
}

func featureName(f *geojson.Feature) string {
	for _, key := range nameKeys {
		if s, ok := f.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
