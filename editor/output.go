package editor

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/Skryldev/mockup-studio/compositor"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/pipeline"
	"github.com/Skryldev/mockup-studio/transform"
)

// MaxMultiplier bounds the export resolution multiplier.
const MaxMultiplier = 8

// ExportOptions overrides the configured export settings. Zero values and nil
// pointers fall back to the configuration.
type ExportOptions struct {
	Format     string `json:"format,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
	Quality    int    `json:"quality,omitempty"`
	MaxWidth   int    `json:"maxWidth,omitempty"`
	Enhance    *bool  `json:"enhance,omitempty"`
	Store      *bool  `json:"store,omitempty"`
}

// frame is what a render needs, copied out of the model.
type frame struct {
	base      *core.Asset
	baseErr   error
	overlay   *core.Asset
	transform transform.State
	guide     *compositor.PrintArea
	suppress  bool
}

func (e *Editor) capture() (frame, error) {
	var f frame
	err := e.do(func(m *model) {
		f.base, _ = m.base.Ready()
		f.baseErr = m.base.Err()
		f.overlay, _ = m.overlay.Ready()
		f.transform = m.transform
		f.guide = m.guide
		f.suppress = m.generating
	})
	return f, err
}

func (f frame) check(op string) error {
	if f.base != nil {
		return nil
	}
	if f.baseErr != nil {
		return apperrors.New(apperrors.CategoryRender, op,
			fmt.Errorf("%w: %s", apperrors.ErrBaseUnavailable, apperrors.Message(f.baseErr)))
	}
	return apperrors.New(apperrors.CategoryRender, op, apperrors.ErrBaseUnavailable)
}

// Render draws the interactive preview at the base image's resolution. The
// design is hidden while an edit is running. A failed design load degrades
// to a base-only frame; a missing or failed base is an error.
func (e *Editor) Render() (*image.RGBA, error) {
	f, err := e.capture()
	if err != nil {
		return nil, err
	}
	if err := f.check("editor.render"); err != nil {
		return nil, err
	}
	opts := compositor.Options{Suppressed: f.suppress, Shadow: e.cfg.Preview.Shadow}
	if e.cfg.Preview.Guide {
		opts.Guide = f.guide
	}
	return compositor.Snapshot(f.base, f.overlay, f.transform, 1, opts)
}

// Export renders the mockup at a resolution multiple and runs it through the
// export pipeline. The result holds the encoded bytes and, when stored, the
// storage key.
func (e *Editor) Export(ctx context.Context, opts ExportOptions) (*core.ProcessingResult, error) {
	f, err := e.capture()
	if err != nil {
		return nil, err
	}
	if f.suppress {
		return nil, apperrors.New(apperrors.CategoryInput, "editor.export", apperrors.ErrGenerating)
	}
	if err := f.check("editor.export"); err != nil {
		return nil, err
	}

	mult := opts.Multiplier
	if mult == 0 {
		mult = e.cfg.Export.Multiplier
	}
	if mult < 1 || mult > MaxMultiplier {
		return nil, apperrors.New(apperrors.CategoryInput, "editor.export",
			fmt.Errorf("multiplier %d: %w", mult, apperrors.ErrInvalidValue))
	}
	format := strings.TrimSpace(opts.Format)
	if format == "" {
		format = e.cfg.Export.Format
	}
	if format == "" {
		format = e.cfg.DefaultFormat
	}
	enhance := e.cfg.Export.Enhance
	if opts.Enhance != nil {
		enhance = *opts.Enhance
	}
	store := e.cfg.Export.Store
	if opts.Store != nil {
		store = *opts.Store
	}

	p := pipeline.New(&pipeline.FormatStep{Format: core.ParseFormat(format)})
	if enhance {
		if e.editor == nil {
			return nil, errNoService("editor.export")
		}
		p.Use(&pipeline.EnhanceStep{Editor: e.editor})
	}
	if opts.MaxWidth > 0 {
		p.Use(&pipeline.ResizeStep{Width: opts.MaxWidth, Shrink: true})
	}
	if opts.Quality != 0 {
		p.Use(&pipeline.QualityStep{Quality: opts.Quality})
	}
	p.Use(&pipeline.EncodeStep{
		Registry:    e.reg,
		BaseOptions: core.EncodeOptions{Quality: e.cfg.DefaultQuality, StripEXIF: true},
	})
	if ac := e.cfg.AdaptiveCompression; ac.Enabled {
		p.Use(&pipeline.AdaptiveCompressStep{
			Registry:        e.reg,
			TargetSizeBytes: ac.TargetSizeBytes,
			MinQuality:      ac.MinQuality,
			MaxQuality:      ac.MaxQuality,
			StepSize:        ac.StepSize,
		})
	}
	if store {
		if e.storage == nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "editor.export", apperrors.ErrStorageUnavailable)
		}
		p.Use(&pipeline.StoreStep{Storage: e.storage, Prefix: e.cfg.Export.KeyPrefix})
	}
	p.AddHook(e.hooks...).WithRetry(e.cfg.MaxRetries, e.cfg.RetryDelay)
	e.logger.Debug("editor.export.start", "session", e.id, "multiplier", mult, "steps", p.Steps())

	flat, err := compositor.Snapshot(f.base, f.overlay, f.transform, mult,
		compositor.Options{Shadow: e.cfg.Preview.Shadow})
	if err != nil {
		return nil, err
	}
	res, err := p.Process(ctx, core.FromImage(flat))
	if err != nil {
		e.logger.Warn("editor.export.failed", "session", e.id, "error", err)
		return nil, err
	}
	fields := []interface{}{
		"session", e.id,
		"format", string(res.Primary.Format),
		"width", res.Primary.Meta.Width,
		"height", res.Primary.Meta.Height,
		"bytes", len(res.Primary.Data),
	}
	if res.Key != nil {
		fields = append(fields, "key", res.Key.Path)
	}
	e.logger.Info("editor.export.done", fields...)
	return res, nil
}

// OverlayPNG encodes the design on its own, without the garment.
func (e *Editor) OverlayPNG(ctx context.Context) ([]byte, error) {
	f, err := e.capture()
	if err != nil {
		return nil, err
	}
	if f.overlay == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "editor.overlay", apperrors.ErrOverlayUnavailable)
	}
	enc, ok := e.reg.EncoderFor(core.FormatPNG)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryConfig, "editor.overlay",
			fmt.Errorf("%w: png", apperrors.ErrUnsupportedFormat))
	}
	img := core.FromImage(f.overlay.Image)
	img.Format = core.FormatPNG
	return enc.Encode(ctx, img, core.EncodeOptions{StripEXIF: true})
}
