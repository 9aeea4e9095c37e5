// Package achievements holds the activity dataset shown on the globe and
// the aggregations the globe and flat map draw from it.
package achievements

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/portfolio-globe/backend/pkg/style"
)

//go:embed achievements.yaml
var dataset []byte

// Link is an external reference of an activity.
type Link struct {
	Label string `yaml:"label" json:"label"`
	URL   string `yaml:"url" json:"url"`
}

// Location is where an activity took place.
type Location struct {
	Venue   string  `yaml:"venue" json:"venue"`
	City    string  `yaml:"city" json:"city"`
	Country string  `yaml:"country" json:"country"`
	Lat     float64 `yaml:"lat" json:"lat"`
	Lng     float64 `yaml:"lng" json:"lng"`
}

// Activity is one contest, award or project.
type Activity struct {
	Slug         string    `yaml:"slug" json:"slug"`
	Title        string    `yaml:"title" json:"title"`
	Date         string    `yaml:"date" json:"date"`
	Highlighted  bool      `yaml:"highlighted" json:"highlighted,omitempty"`
	Importance   float64   `yaml:"importance" json:"importance"`
	Technologies []string  `yaml:"technologies" json:"technologies,omitempty"`
	Links        []Link    `yaml:"links" json:"links,omitempty"`
	Map          *Location `yaml:"map" json:"map,omitempty"`
}

// Ref is the short form of an activity listed under a marker.
type Ref struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Venue string `json:"venue"`
	Date  string `json:"date"`
}

func (a Activity) ref() Ref {
	r := Ref{Slug: a.Slug, Title: a.Title, Date: a.Date}
	if a.Map != nil {
		r.Venue = a.Map.Venue
	}
	return r
}

// Load parses the embedded dataset.
func Load() ([]Activity, error) {
	return Parse(dataset)
}

// Parse decodes a YAML list of activities. Slugs must be unique and
// importance must lie in [0, style.MaxImportance].
func Parse(data []byte) ([]Activity, error) {
	var acts []Activity
	if err := yaml.Unmarshal(data, &acts); err != nil {
		return nil, fmt.Errorf("parse activities: %w", err)
	}
	seen := make(map[string]bool, len(acts))
	for i, a := range acts {
		if a.Slug == "" {
			return nil, fmt.Errorf("activity %d: missing slug", i)
		}
		if seen[a.Slug] {
			return nil, fmt.Errorf("activity %q: duplicate slug", a.Slug)
		}
		seen[a.Slug] = true
		if a.Importance < 0 || a.Importance > style.MaxImportance {
			return nil, fmt.Errorf("activity %q: importance %v out of range", a.Slug, a.Importance)
		}
	}
	return acts, nil
}

// Located drops activities without a location.
func Located(acts []Activity) []Activity {
	out := make([]Activity, 0, len(acts))
	for _, a := range acts {
		if a.Map != nil {
			out = append(out, a)
		}
	}
	return out
}

// BySlug finds an activity.
func BySlug(acts []Activity, slug string) (Activity, bool) {
	for _, a := range acts {
		if a.Slug == slug {
			return a, true
		}
	}
	return Activity{}, false
}
