// Package decoder provides format-specific image decoders built on the
// standard library and golang.org/x/image.
package decoder

import (
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// decodeFunc matches image/jpeg.Decode and friends.
type decodeFunc func(io.Reader) (image.Image, error)

type codec struct {
	format core.Format
	op     string
	decode decodeFunc
}

func (c codec) CanDecode(format core.Format) bool { return format == c.format }

func (c codec) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, c.op, err)
	}
	img, err := c.decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, c.op, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, c.op, apperrors.ErrInvalidDimensions)
	}
	return &core.ImageData{
		Image:  img,
		Format: c.format,
		Meta: core.Metadata{
			Width:      b.Dx(),
			Height:     b.Dy(),
			Format:     c.format,
			ColorSpace: colorSpace(img),
			HasAlpha:   hasAlpha(img),
		},
	}, nil
}

// JPEG decodes baseline and progressive JPEG.
type JPEG struct{ codec }

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{codec{core.FormatJPEG, "jpeg.decode", jpeg.Decode}} }

// PNG decodes PNG, including transparency.
type PNG struct{ codec }

func NewPNG() *PNG { return &PNG{codec{core.FormatPNG, "png.decode", png.Decode}} }

// WebP decodes lossy and lossless still WebP via golang.org/x/image/webp.
// Animated WebP needs the vips backend.
type WebP struct{ codec }

func NewWebP() *WebP { return &WebP{codec{core.FormatWebP, "webp.decode", webp.Decode}} }

// Compile-time interface assertions.
var (
	_ core.Decoder = (*JPEG)(nil)
	_ core.Decoder = (*PNG)(nil)
	_ core.Decoder = (*WebP)(nil)
)

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted:
		return true
	}
	return false
}
