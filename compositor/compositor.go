// Package compositor renders the mockup: a base garment image with an
// optional design overlay placed by a transform.State.
package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/raster"
	"github.com/Skryldev/mockup-studio/transform"
)

// Background is painted before anything else.
var Background = color.RGBA{255, 255, 255, 255}

// PrintArea is a rectangle in 0-1000 units relative to the base image.
type PrintArea struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Options tunes a single render.
type Options struct {
	// Suppressed hides the overlay while an external edit is pending.
	Suppressed bool
	// Shadow draws a soft drop shadow under the overlay.
	Shadow bool
	// Guide outlines the printable area. Never set for exports.
	Guide *PrintArea
}

// Render draws base and overlay onto s. The surface is cleared first and the
// surface state is left as it was found.
//
// A nil base is an error and leaves s cleared. A nil overlay, a suppressed
// one, zero opacity or a degenerate overlay image all yield a base-only frame.
func Render(s raster.Surface, base, overlay *core.Asset, t transform.State, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.CategoryRender, "compositor.render", fmt.Errorf("panic: %v", r))
		}
	}()

	s.Clear(Background)
	if base == nil || base.Image == nil {
		return apperrors.New(apperrors.CategoryRender, "compositor.render", apperrors.ErrBaseUnavailable)
	}

	b := s.Bounds()
	W, H := float64(b.Dx()), float64(b.Dy())
	if err := s.DrawImage(base.Image, float64(b.Min.X), float64(b.Min.Y), W, H); err != nil {
		return apperrors.Wrap(apperrors.CategoryRender, "compositor.base", err)
	}

	if opts.Guide != nil {
		if err := drawGuide(s, *opts.Guide); err != nil {
			return err
		}
	}

	if overlay == nil || overlay.Image == nil || opts.Suppressed || t.Opacity <= 0 {
		return nil
	}
	aspect := overlay.Aspect()
	if aspect <= 0 {
		return nil
	}

	dw := W * t.Scale
	dh := dw / aspect

	s.Save()
	defer s.Restore()
	s.Translate(float64(b.Min.X)+W*t.Position.X, float64(b.Min.Y)+H*t.Position.Y)
	s.Rotate(t.Radians())
	if t.FlipX {
		s.Scale(-1, 1)
	}
	s.SetAlpha(t.Opacity)
	if opts.Shadow {
		s.SetShadow(raster.DefaultShadow())
	}
	if err := s.DrawImage(overlay.Image, -dw/2, -dh/2, dw, dh); err != nil {
		return apperrors.Wrap(apperrors.CategoryRender, "compositor.overlay", err)
	}
	return nil
}

// Snapshot renders a fresh frame at multiplier times the base resolution.
// The result carries no layer information.
func Snapshot(base, overlay *core.Asset, t transform.State, multiplier int, opts Options) (*image.RGBA, error) {
	if multiplier < 1 {
		return nil, apperrors.New(apperrors.CategoryInput, "compositor.snapshot",
			fmt.Errorf("multiplier %d: %w", multiplier, apperrors.ErrInvalidValue))
	}
	if base == nil || base.Image == nil {
		return nil, apperrors.New(apperrors.CategoryRender, "compositor.snapshot", apperrors.ErrBaseUnavailable)
	}
	w, h := base.Width()*multiplier, base.Height()*multiplier
	if w <= 0 || h <= 0 {
		return nil, apperrors.New(apperrors.CategoryRender, "compositor.snapshot", apperrors.ErrInvalidDimensions)
	}
	c := raster.NewCanvas(w, h)
	if err := Render(c, base, overlay, t, opts); err != nil {
		return nil, err
	}
	return c.Image(), nil
}

// drawGuide scales the print area from 0-1000 units to surface pixels.
func drawGuide(s raster.Surface, area PrintArea) error {
	c, ok := s.(interface{ Image() *image.RGBA })
	if !ok {
		return nil
	}
	b := s.Bounds()
	kx, ky := float64(b.Dx())/1000, float64(b.Dy())/1000
	g := raster.PrintGuide(
		float64(b.Min.X)+area.X*kx, float64(b.Min.Y)+area.Y*ky,
		area.Width*kx, area.Height*ky,
	)
	if err := raster.DrawGuide(c.Image(), g); err != nil {
		return apperrors.Wrap(apperrors.CategoryRender, "compositor.guide", err)
	}
	return nil
}
