package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
)

// Guide is a dashed rectangle outlining the printable area of a garment.
type Guide struct {
	X, Y, W, H float64
	Color      color.NRGBA
	LineWidth  float64
	Dash       []float64
}

// PrintGuide returns the default guide style for the given rectangle.
func PrintGuide(x, y, w, h float64) Guide {
	return Guide{
		X: x, Y: y, W: w, H: h,
		Color:     color.NRGBA{R: 99, G: 102, B: 241, A: 200},
		LineWidth: 2,
		Dash:      []float64{8, 6},
	}
}

// DrawGuide strokes g onto dst. Only the region around the rectangle is
// rasterised.
func DrawGuide(dst xdraw.Image, g Guide) error {
	if g.W <= 0 || g.H <= 0 {
		return nil
	}
	pad := int(math.Ceil(g.LineWidth)) + 1
	region := image.Rect(
		int(math.Floor(g.X))-pad, int(math.Floor(g.Y))-pad,
		int(math.Ceil(g.X+g.W))+pad, int(math.Ceil(g.Y+g.H))+pad,
	).Intersect(dst.Bounds())
	if region.Empty() {
		return nil
	}

	dc := gg.NewContext(region.Dx(), region.Dy())
	defer dc.Close()
	dc.SetRGBA(0, 0, 0, 1)
	dc.SetLineWidth(g.LineWidth)
	dc.SetDash(g.Dash...)
	dc.DrawRectangle(g.X-float64(region.Min.X), g.Y-float64(region.Min.Y), g.W, g.H)
	if err := dc.Stroke(); err != nil {
		return err
	}

	// The stroke's alpha is used as coverage so the guide colour is applied
	// independently of how the context stores colour channels.
	xdraw.DrawMask(dst, region, image.NewUniform(g.Color), image.Point{}, dc.Image(), image.Point{}, xdraw.Over)
	return nil
}
