package achievements

import (
	"math"

	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/scene"
	"github.com/portfolio-globe/backend/pkg/style"
)

// MajorCityActivities is the activity count from which a city is major.
const MajorCityActivities = 3

// Venue groups the activities held at one venue.
type Venue struct {
	Key               string     `json:"key"`
	Venue             string     `json:"venue"`
	City              string     `json:"city"`
	Country           string     `json:"country"`
	At                geo.LatLng `json:"at"`
	Activities        []Ref      `json:"activities"`
	Count             int        `json:"count"`
	TotalImportance   float64    `json:"totalImportance"`
	AverageImportance float64    `json:"averageImportance"`
	MaxImportance     float64    `json:"maxImportance"`
	Tier              style.Tier `json:"type"`
	Label             string     `json:"label"`
	Color             string     `json:"color"`
	Size              int        `json:"size"`
}

// Venues groups located activities by venue, city and country in order of
// first appearance.
func Venues(acts []Activity) []Venue {
	var out []Venue
	index := map[string]int{}
	for _, a := range Located(acts) {
		key := a.Map.Venue + "-" + a.Map.City + "-" + a.Map.Country
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Venue{
				Key:     key,
				Venue:   a.Map.Venue,
				City:    a.Map.City,
				Country: a.Map.Country,
				At:      geo.LatLng{Lat: a.Map.Lat, Lng: a.Map.Lng},
				Label:   a.Map.Venue + ", " + a.Map.City,
			})
		}
		v := &out[i]
		v.Activities = append(v.Activities, a.ref())
		v.Count++
		v.TotalImportance += a.Importance
		v.MaxImportance = math.Max(v.MaxImportance, a.Importance)
	}
	for i := range out {
		v := &out[i]
		v.AverageImportance = v.TotalImportance / float64(v.Count)
		v.Tier = style.TierFor(v.TotalImportance)
		v.Size = style.MarkerSize(v.Tier)
		v.Color = style.Hex(style.ImportanceColor(v.MaxImportance))
	}
	return out
}

// City groups the activities of one city.
type City struct {
	ID         int              `json:"id"`
	City       string           `json:"city"`
	Country    string           `json:"country"`
	At         geo.LatLng       `json:"at"`
	Activities []Ref            `json:"activities"`
	Importance float64          `json:"importance"`
	Major      bool             `json:"major"`
	Marker     style.CityMarker `json:"marker"`
}

// Cities groups located activities by city and country in order of first
// appearance. Cities with at least MajorCityActivities are major.
func Cities(acts []Activity) []City {
	var out []City
	index := map[string]int{}
	for _, a := range Located(acts) {
		key := a.Map.City + "-" + a.Map.Country
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, City{
				ID:      i,
				City:    a.Map.City,
				Country: a.Map.Country,
				At:      geo.LatLng{Lat: a.Map.Lat, Lng: a.Map.Lng},
			})
		}
		out[i].Activities = append(out[i].Activities, a.ref())
		out[i].Importance += a.Importance
	}
	for i := range out {
		c := &out[i]
		c.Major = len(c.Activities) >= MajorCityActivities
		c.Marker = style.CityMarkerStyle(i, c.Major)
	}
	return out
}

// Arc joins two successive city markers.
type Arc struct {
	Start  geo.LatLng `json:"start"`
	End    geo.LatLng `json:"end"`
	Colors [2]string  `json:"colors"`
}

// Arcs links every city to the next one.
func Arcs(cities []City) []Arc {
	if len(cities) < 2 {
		return []Arc{}
	}
	out := make([]Arc, 0, len(cities)-1)
	for i := 0; i < len(cities)-1; i++ {
		a, b := cities[i], cities[i+1]
		out = append(out, Arc{
			Start:  a.At,
			End:    b.At,
			Colors: [2]string{a.Marker.Color, b.Marker.Color},
		})
	}
	return out
}

// Cluster merges venues that are close together on the flat map.
type Cluster struct {
	At              geo.LatLng `json:"at"`
	Venues          []string   `json:"venues"`
	Count           int        `json:"count"`
	TotalImportance float64    `json:"totalImportance"`
	MaxImportance   float64    `json:"maxImportance"`
	Class           string     `json:"class"`
	Size            int        `json:"size"`
	Color           string     `json:"color"`
}

// ClusterVenues greedily groups venues lying within radius degrees of a
// cluster's first venue. Counts and importance are summed and the largest
// importance picks the color.
func ClusterVenues(venues []Venue, radius float64) []Cluster {
	var out []Cluster
	for _, v := range venues {
		placed := false
		for i := range out {
			if geo.PlanarDistance(out[i].At, v.At) <= radius {
				out[i].add(v)
				placed = true
				break
			}
		}
		if !placed {
			c := Cluster{At: v.At}
			c.add(v)
			out = append(out, c)
		}
	}
	for i := range out {
		c := &out[i]
		c.Class, c.Size = style.ClusterClass(c.Count)
		c.Color = style.Hex(style.ImportanceColor(c.MaxImportance))
	}
	if out == nil {
		return []Cluster{}
	}
	return out
}

func (c *Cluster) add(v Venue) {
	c.Venues = append(c.Venues, v.Key)
	c.Count += v.Count
	c.TotalImportance += v.TotalImportance
	c.MaxImportance = math.Max(c.MaxImportance, v.MaxImportance)
}

// Seed adds every city to store as a place node and links successive
// cities. Seeding the same store twice adds the counts again.
func Seed(store *scene.Store, cities []City, radius float64) error {
	var prev string
	for _, c := range cities {
		n, err := store.AddPlace(c.City, c.Country, c.At, radius, map[string]float64{
			scene.MetaCount:      float64(len(c.Activities)),
			scene.MetaImportance: c.Importance,
		})
		if err != nil {
			return err
		}
		if prev != "" && !hasEdge(store.Snapshot(), prev, n.ID) {
			if _, err := store.AddPlaceEdge(prev, n.ID, "next"); err != nil {
				return err
			}
		}
		prev = n.ID
	}
	return nil
}

func hasEdge(s *scene.Snapshot, source, target string) bool {
	for _, e := range s.Edges() {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}
