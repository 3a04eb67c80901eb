package raster

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// drawShadow renders the silhouette of img offset by s, blurs it and
// composites it under whatever is drawn next.
func (c *Canvas) drawShadow(img image.Image, sr image.Rectangle, m f64.Aff3, opts *xdraw.Options, s *Shadow) {
	m[2] += s.OffsetX
	m[5] += s.OffsetY

	sigma := s.Blur / 2
	area := deviceBounds(m, sr).Inset(-shadowReach(sigma)).Intersect(c.dst.Bounds())
	if area.Empty() {
		return
	}

	layer := image.NewAlpha(area)
	c.Interp.Transform(layer, m, img, sr, xdraw.Over, opts)

	var mask image.Image = layer
	maskAt := area.Min
	if sigma > 0 {
		// imaging returns the blurred layer anchored at the origin.
		mask, maskAt = imaging.Blur(layer, sigma), image.Point{}
	}
	xdraw.DrawMask(c.dst, area, image.NewUniform(s.Color), image.Point{}, mask, maskAt, xdraw.Over)
}

// shadowReach is how far past the silhouette a blur with sigma still
// leaves visible alpha.
func shadowReach(sigma float64) int {
	if sigma <= 0 {
		return 1
	}
	return int(math.Ceil(3*sigma)) + 1
}
