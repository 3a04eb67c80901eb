package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"
	"strconv"

	"github.com/oklog/ulid/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/service"
	"github.com/Skryldev/mockup-studio/utils"
)

// ── Resize ────────────────────────────────────────────────────────────────────

// ResizeStep scales the raster, preserving aspect ratio when one axis is 0.
// With Shrink set the raster is only ever reduced to fit inside the box.
type ResizeStep struct {
	Width, Height int
	Shrink        bool
	// Resampler controls quality vs speed.  Defaults to draw.CatmullRom.
	Resampler xdraw.Interpolator
}

func (s *ResizeStep) Name() string { return "resize" }

func (s *ResizeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}

	srcB := img.Image.Bounds()
	dstW, dstH := utils.ScaleDimensions(srcB.Dx(), srcB.Dy(), s.Width, s.Height)
	if s.Shrink {
		dstW, dstH = utils.FitDimensions(srcB.Dx(), srcB.Dy(), s.Width, s.Height)
	}

	if dstW == srcB.Dx() && dstH == srcB.Dy() {
		return img, nil
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimensions)
	}

	sampler := s.Resampler
	if sampler == nil {
		sampler = xdraw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	sampler.Scale(dst, dst.Bounds(), img.Image, srcB, xdraw.Src, nil)

	out := *img
	out.Image = dst
	out.Data = nil
	out.Meta.Width = dstW
	out.Meta.Height = dstH
	return &out, nil
}

// ── Format ────────────────────────────────────────────────────────────────────

// FormatStep selects the output format for the encode step.
type FormatStep struct {
	Format core.Format
}

func (s *FormatStep) Name() string { return "format" }

func (s *FormatStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Format == core.FormatUnknown || s.Format == "" {
		return nil, apperrors.New(apperrors.CategoryInput, s.Name(), apperrors.ErrUnsupportedFormat)
	}
	out := *img
	out.Format = s.Format
	out.Meta.Format = s.Format
	return &out, nil
}

// ── Quality ───────────────────────────────────────────────────────────────────

// QualityStep records the lossy quality (1-100) the encode step should use.
type QualityStep struct {
	Quality int
}

func (s *QualityStep) Name() string { return "quality" }

func (s *QualityStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Quality < 1 || s.Quality > 100 {
		return nil, apperrors.New(apperrors.CategoryInput, s.Name(),
			fmt.Errorf("%w: quality %d", apperrors.ErrInvalidValue, s.Quality))
	}
	out := *img
	out.Quality = s.Quality
	return &out, nil
}

// ── Enhance ───────────────────────────────────────────────────────────────────

// EnhanceStep sends the raster through the image-edit service before
// encoding. The service decides the output size.
type EnhanceStep struct {
	Editor      service.ImageEditor
	Instruction string // defaults to service.EnhanceInstruction
}

func (s *EnhanceStep) Name() string { return "enhance" }

func (s *EnhanceStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Editor == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, s.Name(), fmt.Errorf("no image editor configured"))
	}
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}
	instruction := s.Instruction
	if instruction == "" {
		instruction = service.EnhanceInstruction
	}
	b := img.Image.Bounds()
	enhanced, err := s.Editor.Edit(ctx, img.Image, instruction, service.AspectRatio(b.Dx(), b.Dy()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, s.Name(), err)
	}

	nb := enhanced.Bounds()
	out := *img
	out.Image = enhanced
	out.Data = nil
	out.Meta.Width = nb.Dx()
	out.Meta.Height = nb.Dy()
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the raster with the encoder registered for img.Format.
type EncodeStep struct {
	Registry    core.Registry
	BaseOptions core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	opts := s.BaseOptions
	if img.Quality > 0 {
		opts.Quality = img.Quality
	}

	data, err := enc.Encode(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	out := *img
	out.Data = data
	out.Meta.SizeBytes = int64(len(data))
	if out.OriginalSize == 0 {
		out.OriginalSize = int64(len(data))
	}
	return &out, nil
}

// ── AdaptiveCompress ──────────────────────────────────────────────────────────

// AdaptiveCompressStep lowers JPEG/WebP quality in StepSize decrements until
// the output fits TargetSizeBytes or MinQuality is reached. PNG is left as is.
type AdaptiveCompressStep struct {
	Registry        core.Registry
	TargetSizeBytes int64
	MinQuality      int
	MaxQuality      int
	StepSize        int
}

func (s *AdaptiveCompressStep) Name() string { return "adaptive_compress" }

func (s *AdaptiveCompressStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.TargetSizeBytes <= 0 || img.Format == core.FormatPNG {
		return img, nil
	}
	if len(img.Data) > 0 && int64(len(img.Data)) <= s.TargetSizeBytes {
		return img, nil
	}
	enc, ok := s.Registry.EncoderFor(img.Format)
	if !ok {
		return img, nil
	}

	maxQ, minQ, step := s.MaxQuality, s.MinQuality, s.StepSize
	if maxQ <= 0 || maxQ > 100 {
		maxQ = 95
	}
	if minQ <= 0 || minQ > maxQ {
		minQ = 1
	}
	if step <= 0 {
		step = 5
	}

	var (
		best    []byte
		quality int
	)
	for q := maxQ; q >= minQ; q -= step {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
		}
		data, err := enc.Encode(ctx, img, core.EncodeOptions{Quality: q})
		if err != nil {
			return nil, err
		}
		best, quality = data, q
		if int64(len(data)) <= s.TargetSizeBytes {
			break
		}
	}

	out := *img
	out.Data = best
	out.Quality = quality
	out.Meta.SizeBytes = int64(len(best))
	return &out, nil
}

// ── Store ─────────────────────────────────────────────────────────────────────

// StoreStep persists the encoded bytes under Prefix/<ulid>.<ext>.
type StoreStep struct {
	Storage core.StorageAdapter
	Bucket  string
	Prefix  string
	NewID   func() string // defaults to a fresh ULID
}

func (s *StoreStep) Name() string { return "store" }

func (s *StoreStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Storage == nil {
		return nil, apperrors.New(apperrors.CategoryStorage, s.Name(), apperrors.ErrStorageUnavailable)
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryStorage, s.Name(), apperrors.ErrEmptyInput)
	}
	id := ulid.Make().String()
	if s.NewID != nil {
		id = s.NewID()
	}
	key := core.StorageKey{Bucket: s.Bucket, Path: path.Join(s.Prefix, id+"."+Extension(img.Format))}
	meta := map[string]string{
		"content-type": utils.ContentType(string(img.Format)),
		"width":        strconv.Itoa(img.Meta.Width),
		"height":       strconv.Itoa(img.Meta.Height),
	}
	if err := s.Storage.Put(ctx, key, bytes.NewReader(img.Data), meta); err != nil {
		return nil, err
	}

	out := *img
	out.Stored = &key
	return &out, nil
}

// Extension returns the conventional file extension for f.
func Extension(f core.Format) string {
	switch f {
	case core.FormatJPEG:
		return "jpg"
	case core.FormatUnknown, "":
		return "bin"
	}
	return string(f)
}
