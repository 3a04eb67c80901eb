// Package raster provides the drawing surface used by the compositor: a
// save/restore state stack with an affine transform, a global alpha and an
// optional drop shadow, backed by an *image.RGBA.
package raster

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Surface is the raster target the compositor draws through. Coordinates are
// pixels of the destination image after the current transform is applied.
type Surface interface {
	Bounds() image.Rectangle
	Clear(c color.Color)
	Save()
	Restore()
	Translate(x, y float64)
	Rotate(rad float64) // clockwise on screen
	Scale(sx, sy float64)
	SetAlpha(a float64)
	SetShadow(s *Shadow)
	// DrawImage draws img stretched into the rectangle (x, y, w, h) of the
	// current user space.
	DrawImage(img image.Image, x, y, w, h float64) error
}

// Shadow is a blurred silhouette drawn beneath images. Offsets are in device
// pixels and ignore the current transform.
type Shadow struct {
	Color   color.NRGBA
	Blur    float64
	OffsetX float64
	OffsetY float64
}

// DefaultShadow is the soft drop shadow shown under the overlay in previews.
func DefaultShadow() *Shadow {
	return &Shadow{Color: color.NRGBA{A: 38}, Blur: 10, OffsetY: 5}
}

type state struct {
	m      f64.Aff3
	alpha  float64
	shadow *Shadow
}

// Canvas implements Surface on top of an *image.RGBA.
type Canvas struct {
	dst   *image.RGBA
	cur   state
	stack []state

	// Interp resamples drawn images. Defaults to bilinear.
	Interp xdraw.Transformer
}

var _ Surface = (*Canvas)(nil)

// NewCanvas allocates a w×h transparent canvas.
func NewCanvas(w, h int) *Canvas {
	return NewCanvasFor(image.NewRGBA(image.Rect(0, 0, w, h)))
}

// NewCanvasFor draws into dst.
func NewCanvasFor(dst *image.RGBA) *Canvas {
	return &Canvas{
		dst:    dst,
		cur:    state{m: identity(), alpha: 1},
		Interp: xdraw.BiLinear,
	}
}

// Image returns the backing image.
func (c *Canvas) Image() *image.RGBA { return c.dst }

// Bounds returns the destination bounds.
func (c *Canvas) Bounds() image.Rectangle { return c.dst.Bounds() }

// Depth reports how many states are saved.
func (c *Canvas) Depth() int { return len(c.stack) }

// Matrix returns the current user-to-device transform.
func (c *Canvas) Matrix() f64.Aff3 { return c.cur.m }

// Alpha returns the current global alpha.
func (c *Canvas) Alpha() float64 { return c.cur.alpha }

// Clear fills the whole image, ignoring transform and alpha.
func (c *Canvas) Clear(col color.Color) {
	xdraw.Draw(c.dst, c.dst.Bounds(), image.NewUniform(col), image.Point{}, xdraw.Src)
}

// Save pushes the current state.
func (c *Canvas) Save() { c.stack = append(c.stack, c.cur) }

// Restore pops the last saved state. Unbalanced calls are ignored.
func (c *Canvas) Restore() {
	if n := len(c.stack); n > 0 {
		c.cur = c.stack[n-1]
		c.stack = c.stack[:n-1]
	}
}

func (c *Canvas) Translate(x, y float64) {
	c.cur.m = mul(c.cur.m, f64.Aff3{1, 0, x, 0, 1, y})
}

func (c *Canvas) Rotate(rad float64) {
	sin, cos := math.Sincos(rad)
	c.cur.m = mul(c.cur.m, f64.Aff3{cos, -sin, 0, sin, cos, 0})
}

func (c *Canvas) Scale(sx, sy float64) {
	c.cur.m = mul(c.cur.m, f64.Aff3{sx, 0, 0, 0, sy, 0})
}

// SetAlpha sets the global alpha, clamped to [0,1].
func (c *Canvas) SetAlpha(a float64) {
	if math.IsNaN(a) {
		a = 0
	}
	c.cur.alpha = math.Max(0, math.Min(1, a))
}

// SetShadow enables a shadow for subsequent draws; nil disables it.
func (c *Canvas) SetShadow(s *Shadow) { c.cur.shadow = s }

func (c *Canvas) DrawImage(img image.Image, x, y, w, h float64) error {
	sr := img.Bounds()
	sw, sh := float64(sr.Dx()), float64(sr.Dy())
	if sw == 0 || sh == 0 || w == 0 || h == 0 || c.cur.alpha <= 0 {
		return nil
	}
	kx, ky := w/sw, h/sh
	local := f64.Aff3{
		kx, 0, x - float64(sr.Min.X)*kx,
		0, ky, y - float64(sr.Min.Y)*ky,
	}
	m := mul(c.cur.m, local)

	var opts *xdraw.Options
	if c.cur.alpha < 1 {
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha16{A: uint16(c.cur.alpha * 0xffff)})}
	}

	if s := c.cur.shadow; s != nil && s.Color.A > 0 {
		c.drawShadow(img, sr, m, opts, s)
	}
	c.Interp.Transform(c.dst, m, img, sr, xdraw.Over, opts)
	return nil
}

// deviceBounds is the integer box covering sr mapped through m.
func deviceBounds(m f64.Aff3, sr image.Rectangle) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{
		{float64(sr.Min.X), float64(sr.Min.Y)},
		{float64(sr.Max.X), float64(sr.Min.Y)},
		{float64(sr.Min.X), float64(sr.Max.Y)},
		{float64(sr.Max.X), float64(sr.Max.Y)},
	} {
		dx, dy := apply(m, p[0], p[1])
		minX, maxX = math.Min(minX, dx), math.Max(maxX, dx)
		minY, maxY = math.Min(minY, dy), math.Max(maxY, dy)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

func identity() f64.Aff3 { return f64.Aff3{1, 0, 0, 0, 1, 0} }

// mul returns a∘b: b is applied first.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}
