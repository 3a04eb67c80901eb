package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// PNG encodes images to PNG format.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "png.encode", apperrors.ErrEmptyInput)
	}

	enc := &png.Encoder{CompressionLevel: png.DefaultCompression}
	if opts.Lossless {
		enc.CompressionLevel = png.BestCompression
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, img.Image); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}

// Compile-time interface assertions.
var (
	_ core.Encoder = (*PNG)(nil)
	_ core.Encoder = (*JPEG)(nil)
)
