// Package vips is the optional libvips backend. It decodes with EXIF
// auto-rotation, which matters for phone photos uploaded as designs, and
// provides real WebP export.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatUnknown:
		return true
	}
	return false
}

// Decode loads r, applies the EXIF orientation and returns a Go raster.
func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	format := vipsFormatToCore(ref.Format())
	orientation := ref.Orientation()
	if err := ref.AutoRotate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.rotate", err)
	}

	img, err := toGoImage(ref)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.raster", err)
	}

	return &core.ImageData{
		Data:   raw,
		Format: format,
		Image:  img,
		Meta: core.Metadata{
			Width:       ref.Width(),
			Height:      ref.Height(),
			Format:      format,
			ColorSpace:  vipsInterpretationToColorSpace(ref.Interpretation()),
			HasAlpha:    ref.HasAlpha(),
			SizeBytes:   int64(len(raw)),
			Orientation: orientation,
		},
		OriginalSize: int64(len(raw)),
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

// exporter writes ref in one output format.
type exporter func(ref *govips.ImageRef, quality int, opts core.EncodeOptions) ([]byte, error)

var exporters = map[core.Format]exporter{
	core.FormatJPEG: exportJPEG,
	core.FormatPNG:  exportPNG,
	core.FormatWebP: exportWebP,
}

func (b *Backend) CanEncode(f core.Format) bool {
	_, ok := exporters[f]
	return ok
}

// Encode exports an export frame. JPEG frames are flattened onto white first
// because the overlay may leave transparent pixels at the edges.
func (b *Backend) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	const op = "vips.encode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	export, ok := exporters[img.Format]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, op,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	ref, err := fromGoImage(img.Image)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op+".load", err)
	}
	defer ref.Close()

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}
	out, err := export(ref, quality, opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op+"."+string(img.Format), err)
	}
	return out, nil
}

func exportJPEG(ref *govips.ImageRef, quality int, opts core.EncodeOptions) ([]byte, error) {
	if ref.HasAlpha() {
		if err := ref.Flatten(&govips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, err
		}
	}
	p := govips.NewJpegExportParams()
	p.Quality = quality
	p.StripMetadata = opts.StripEXIF
	p.Interlace = opts.Interlaced
	out, _, err := ref.ExportJpeg(p)
	return out, err
}

func exportPNG(ref *govips.ImageRef, _ int, opts core.EncodeOptions) ([]byte, error) {
	p := govips.NewPngExportParams()
	p.StripMetadata = opts.StripEXIF
	p.Interlace = opts.Interlaced
	out, _, err := ref.ExportPng(p)
	return out, err
}

func exportWebP(ref *govips.ImageRef, quality int, opts core.EncodeOptions) ([]byte, error) {
	p := govips.NewWebpExportParams()
	p.Quality = quality
	p.Lossless = opts.Lossless
	p.StripMetadata = opts.StripEXIF
	out, _, err := ref.ExportWebp(p)
	return out, err
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend routes every format the backend exports through
// libvips, for decoding as well as export.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for f := range exporters {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// toGoImage hands pixels to Go through an uncompressed PNG.
func toGoImage(ref *govips.ImageRef) (image.Image, error) {
	ep := govips.NewPngExportParams()
	ep.Compression = 0
	buf, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(buf))
}

func fromGoImage(img image.Image) (*govips.ImageRef, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return govips.NewImageFromBuffer(buf.Bytes())
}

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var (
	_ core.Decoder = (*Backend)(nil)
	_ core.Encoder = (*Backend)(nil)
)
