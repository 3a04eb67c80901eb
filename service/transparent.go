package service

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// WhiteThreshold is the channel value above which a pixel counts as
// background white.
const WhiteThreshold = 240

// Transparentize returns a copy of img in which every pixel whose red, green
// and blue channels all exceed WhiteThreshold is fully transparent.
func Transparentize(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(out, out.Bounds(), img, b.Min, xdraw.Src)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		p := out.Pix[i : i+4 : i+4]
		if p[0] > WhiteThreshold && p[1] > WhiteThreshold && p[2] > WhiteThreshold {
			p[3] = 0
		}
	}
	return out
}
