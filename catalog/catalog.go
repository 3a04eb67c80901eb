// Package catalog lists the built-in garment mockups and the choices offered
// when generating a new one.
package catalog

import (
	"strings"

	"github.com/Skryldev/mockup-studio/compositor"
)

// Mockup is a base garment photo with the area designs are meant to cover.
type Mockup struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Color     string                `json:"color"`
	Sleeve    string                `json:"sleeve"`
	URL       string                `json:"url"`
	PrintArea *compositor.PrintArea `json:"print_area,omitempty"`
}

// Swatch is a named colour.
type Swatch struct {
	Name  string `json:"name"`
	Value string `json:"value"` // #rrggbb
}

var chest = compositor.PrintArea{X: 320, Y: 220, Width: 360, Height: 450}

var mockups = []Mockup{
	{
		ID:        "short-black",
		Name:      "Plain black tee",
		Color:     "Black",
		Sleeve:    "Short",
		URL:       "https://images.unsplash.com/photo-1583743814966-8936f5b7be1a?q=80&w=1000&auto=format&fit=crop",
		PrintArea: &chest,
	},
	{
		ID:        "short-white",
		Name:      "Plain white tee",
		Color:     "White",
		Sleeve:    "Short",
		URL:       "https://images.unsplash.com/photo-1581655353564-df123a1eb820?q=80&w=1000&auto=format&fit=crop",
		PrintArea: &chest,
	},
}

// GarmentTypes are the garments the generator is asked for.
var GarmentTypes = []string{"T-Shirt", "Hoodie", "Polo", "Uniform", "Jacket"}

// Colors are the garment colours offered for generation.
var Colors = []Swatch{
	{"Black", "#1a1a1a"},
	{"White", "#ffffff"},
	{"Navy", "#000080"},
	{"Maroon", "#800000"},
	{"Gray", "#808080"},
	{"Bottle Green", "#006400"},
}

// Backgrounds are the studio backdrop colours.
var Backgrounds = []Swatch{
	{"Studio White", "#FFFFFF"},
	{"Soft Gray", "#F3F4F6"},
	{"Clean Blue", "#E0F2FE"},
	{"Warm Sand", "#FEF3C7"},
	{"Mint Refresh", "#ECFDF5"},
	{"Dark Slate", "#1E293B"},
}

// Moods are the scene styles offered for generated product backgrounds.
var Moods = []string{
	"High-End Studio White",
	"Modern Urban Streetwear",
	"Soft Natural Sunlight Garden",
	"Cinematic Creative Neon",
	"Minimalist Abstract Geometry",
	"Luxury Wood & Leather Boutique",
	"Industrial Concrete Loft",
	"Vibrant Pop Culture Background",
}

// Mockups returns a copy of the built-in mockups.
func Mockups() []Mockup {
	out := make([]Mockup, len(mockups))
	copy(out, mockups)
	return out
}

// Default is the mockup a new session starts with.
func Default() Mockup { return mockups[0] }

// Lookup finds a mockup by ID.
func Lookup(id string) (Mockup, bool) {
	for _, m := range mockups {
		if m.ID == id {
			return m, true
		}
	}
	return Mockup{}, false
}

// Backdrop finds a backdrop colour by name or hex code, ignoring case.
func Backdrop(name string) (Swatch, bool) {
	name = strings.TrimSpace(name)
	for _, b := range Backgrounds {
		if strings.EqualFold(b.Name, name) || strings.EqualFold(b.Value, name) {
			return b, true
		}
	}
	return Swatch{}, false
}

// IsGarmentType reports whether s names a known garment, ignoring case.
func IsGarmentType(s string) bool {
	for _, g := range GarmentTypes {
		if strings.EqualFold(g, strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
