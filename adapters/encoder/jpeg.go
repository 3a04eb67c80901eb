package encoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// JPEG encodes images to JPEG format. Transparent pixels are flattened onto
// white since JPEG carries no alpha.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = 85
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "jpeg.encode", apperrors.ErrEmptyInput)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = j.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img.Image), &jpeg.Options{Quality: quality}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}

// flatten composites src over opaque white when it may carry alpha.
func flatten(src image.Image) image.Image {
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(b)
	xdraw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, b, src, b.Min, xdraw.Over)
	return dst
}
