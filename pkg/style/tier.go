package style

// Tier classifies a venue by its summed importance.
type Tier string

const (
	TierMajor  Tier = "major"
	TierMedium Tier = "medium"
	TierMinor  Tier = "minor"
)

// TierFor buckets a total importance score.
func TierFor(totalImportance float64) Tier {
	switch {
	case totalImportance >= 15:
		return TierMajor
	case totalImportance >= 8:
		return TierMedium
	default:
		return TierMinor
	}
}

// MarkerSize is the pixel size of a venue marker.
func MarkerSize(t Tier) int {
	switch t {
	case TierMajor:
		return 50
	case TierMedium:
		return 40
	default:
		return 30
	}
}

// ClusterClass buckets a marker cluster by its summed activity count.
func ClusterClass(totalCount int) (string, int) {
	switch {
	case totalCount > 20:
		return "large", 60
	case totalCount > 10:
		return "medium", 50
	default:
		return "small", 40
	}
}

// CityMarker describes how a city marker is drawn on the globe.
type CityMarker struct {
	Color     string `json:"color"`
	Size      int    `json:"size"`
	Animation string `json:"animation,omitempty"`
}

// CityMarkerStyle styles the i-th city. Major cities are gold and pulse.
func CityMarkerStyle(i int, major bool) CityMarker {
	if major {
		return CityMarker{Color: Hex(MajorCityColor), Size: 20, Animation: "pulsate"}
	}
	return CityMarker{Color: Hex(PaletteIndex(i)), Size: 15}
}

// LegendSample is one entry of the importance legend.
type LegendSample struct {
	Importance float64 `json:"importance"`
	Color      string  `json:"color"`
	Label      string  `json:"label"`
}

// ImportanceLegend samples the importance gradient at its high, medium and
// low points.
func ImportanceLegend() []LegendSample {
	samples := []struct {
		score float64
		label string
	}{
		{9, "High"},
		{6, "Medium"},
		{3, "Low"},
	}
	out := make([]LegendSample, 0, len(samples))
	for _, s := range samples {
		out = append(out, LegendSample{
			Importance: s.score,
			Color:      Hex(ImportanceColor(s.score)),
			Label:      s.label,
		})
	}
	return out
}
