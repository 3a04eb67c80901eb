// Package transform holds the overlay placement state and its clamping rules.
//
// A State is a plain value. Every constructor and With* method returns a
// State that already satisfies the invariants for the given Limits:
// position in [0,1]², scale in [MinScale,MaxScale], rotation in [0,360),
// opacity in [0,1].
package transform

import (
	"fmt"
	"math"

	"github.com/Skryldev/mockup-studio/config"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// Vec is a point in normalised canvas space.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o.
func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }

// Limits bounds the scale factor. Position and opacity are always [0,1].
type Limits struct {
	MinScale float64
	MaxScale float64
}

// DefaultLimits matches the slider range of the editor.
func DefaultLimits() Limits { return Limits{MinScale: 0.05, MaxScale: 0.8} }

// LimitsFrom reads the scale bounds from cfg.
func LimitsFrom(cfg config.TransformConfig) Limits {
	return Limits{MinScale: cfg.MinScale, MaxScale: cfg.MaxScale}
}

// State describes where and how the overlay is drawn on the base image.
type State struct {
	Position Vec     `json:"position"` // anchor centre as a fraction of base width/height
	Scale    float64 `json:"scale"`    // overlay width as a fraction of base width
	Rotation float64 `json:"rotation"` // clockwise degrees
	Opacity  float64 `json:"opacity"`
	FlipX    bool    `json:"flipX"`
}

// Default is the placement used whenever an overlay is first shown.
func Default() State {
	return State{Position: Vec{0.5, 0.45}, Scale: 0.25, Rotation: 0, Opacity: 1}
}

// Initial builds the starting State from configuration.
func Initial(cfg config.TransformConfig) State {
	return State{
		Position: Vec{cfg.InitialX, cfg.InitialY},
		Scale:    cfg.InitialScale,
		Opacity:  cfg.InitialOpacity,
	}.Clamp(LimitsFrom(cfg))
}

// Clamp forces every field into range.
func (s State) Clamp(l Limits) State {
	s.Position = Vec{clamp(s.Position.X, 0, 1), clamp(s.Position.Y, 0, 1)}
	s.Scale = clamp(s.Scale, l.MinScale, l.MaxScale)
	s.Rotation = NormalizeDegrees(s.Rotation)
	s.Opacity = clamp(s.Opacity, 0, 1)
	return s
}

// WithPosition moves the anchor to p.
func (s State) WithPosition(p Vec) State {
	s.Position = Vec{clamp(p.X, 0, 1), clamp(p.Y, 0, 1)}
	return s
}

// Translate offsets the anchor by d.
func (s State) Translate(d Vec) State {
	return s.WithPosition(s.Position.Add(d))
}

// WithScale sets the width fraction.
func (s State) WithScale(v float64, l Limits) State {
	s.Scale = clamp(v, l.MinScale, l.MaxScale)
	return s
}

// WithRotation sets the clockwise angle in degrees.
func (s State) WithRotation(deg float64) State {
	s.Rotation = NormalizeDegrees(deg)
	return s
}

// WithOpacity sets the overlay alpha.
func (s State) WithOpacity(v float64) State {
	s.Opacity = clamp(v, 0, 1)
	return s
}

// WithFlip sets the horizontal mirror.
func (s State) WithFlip(flip bool) State {
	s.FlipX = flip
	return s
}

// ToggleFlip inverts the horizontal mirror.
func (s State) ToggleFlip() State {
	s.FlipX = !s.FlipX
	return s
}

// Field names a slider-controlled component of State.
type Field string

const (
	FieldScale    Field = "scale"
	FieldRotation Field = "rotation"
	FieldOpacity  Field = "opacity"
	FieldX        Field = "x"
	FieldY        Field = "y"
)

// Set applies a slider value. Non-finite values and unknown fields are
// rejected and leave s untouched.
func (s State) Set(f Field, v float64, l Limits) (State, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s, apperrors.New(apperrors.CategoryInput, "transform.set",
			fmt.Errorf("%s: %w", f, apperrors.ErrInvalidValue))
	}
	switch f {
	case FieldScale:
		return s.WithScale(v, l), nil
	case FieldRotation:
		return s.WithRotation(v), nil
	case FieldOpacity:
		return s.WithOpacity(v), nil
	case FieldX:
		return s.WithPosition(Vec{v, s.Position.Y}), nil
	case FieldY:
		return s.WithPosition(Vec{s.Position.X, v}), nil
	}
	return s, apperrors.New(apperrors.CategoryInput, "transform.set",
		fmt.Errorf("unknown field %q: %w", f, apperrors.ErrInvalidValue))
}

// NormalizeDegrees maps any angle into [0,360). NaN maps to 0.
func NormalizeDegrees(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 || r == 0 {
		r = 0 // also folds -0
	}
	return r
}

// Radians converts the stored clockwise angle for drawing.
func (s State) Radians() float64 { return s.Rotation * math.Pi / 180 }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Clamp limits v to [lo,hi]; NaN yields lo and an inverted range collapses to lo.
func Clamp(v, lo, hi float64) float64 { return clamp(v, lo, hi) }
