package editor

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/Skryldev/mockup-studio/catalog"
	"github.com/Skryldev/mockup-studio/compositor"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/service"
)

// GenerateRequest describes a new garment photo.
type GenerateRequest struct {
	Garment string            `json:"garment"`
	Color   string            `json:"color"`
	Prompt  string            `json:"prompt"`
	Size    service.ImageSize `json:"size"`
}

// RemoveBackground sends the design to the edit service, turns its
// near-white pixels transparent and installs the result as the new design.
// It returns once the request is queued; watch State().Generating.
func (e *Editor) RemoveBackground() error {
	return e.edit("remove_background", func(m *model) error {
		if e.editor == nil {
			return errNoService("editor.remove_background")
		}
		ov, ok := m.overlay.Ready()
		if !ok {
			return apperrors.New(apperrors.CategoryInput, "editor.remove_background", apperrors.ErrOverlayUnavailable)
		}
		ticket := m.overlay.Ticket()

		return e.async(m, "remove_background", func(ctx context.Context) (func(*model), error) {
			out, err := e.editor.Edit(ctx, ov.Image, service.RemoveBackgroundInstruction,
				service.AspectRatio(ov.Width(), ov.Height()))
			if err != nil {
				return nil, err
			}
			asset := core.NewAsset("design:"+ulid.Make().String(), service.Transparentize(out))
			return func(m *model) {
				if !m.overlay.Current(ticket) {
					e.logger.Debug("editor.edit.stale", "session", e.id, "op", "remove_background")
					return
				}
				m.overlay.Replace(asset)
				m.backup = nil
			}, nil
		}, func(m *model, err error) {
			m.errMsg = "background removal failed: " + apperrors.Message(err)
		})
	})
}

// Blend flattens the current mockup, asks the edit service to print the
// design into the fabric and makes the result the new base with no design.
// The prior state is kept as a backup for Undo. If the call fails the
// backup is discarded and nothing else changes.
func (e *Editor) Blend() error {
	return e.edit("blend", func(m *model) error {
		if e.editor == nil {
			return errNoService("editor.blend")
		}
		base, ok := m.base.Ready()
		if !ok {
			return apperrors.New(apperrors.CategoryInput, "editor.blend", apperrors.ErrBaseUnavailable)
		}
		ov, ok := m.overlay.Ready()
		if !ok {
			return apperrors.New(apperrors.CategoryInput, "editor.blend", apperrors.ErrOverlayUnavailable)
		}
		bt, ot := m.base.Ticket(), m.overlay.Ticket()
		st := m.transform
		m.backup = &backup{transform: st, base: base, overlay: ov, guide: m.guide}
		shadow := e.cfg.Preview.Shadow

		err := e.async(m, "blend", func(ctx context.Context) (func(*model), error) {
			flat, err := compositor.Snapshot(base, ov, st, 1, compositor.Options{Shadow: shadow})
			if err != nil {
				return nil, err
			}
			out, err := e.editor.Edit(ctx, flat, service.FabricBlendInstruction,
				service.AspectRatio(base.Width(), base.Height()))
			if err != nil {
				return nil, err
			}
			asset := core.NewAsset("blend:"+ulid.Make().String(), out)
			return func(m *model) {
				if !m.base.Current(bt) || !m.overlay.Current(ot) {
					e.logger.Debug("editor.edit.stale", "session", e.id, "op", "blend")
					return
				}
				m.base.Replace(asset)
				m.overlay.Clear()
				m.guide = nil
				m.session = gesture.Session{}
			}, nil
		}, func(m *model, err error) {
			m.backup = nil
			m.errMsg = "AI blend failed: " + apperrors.Message(err)
		})
		if err != nil {
			m.backup = nil
		}
		return err
	})
}

// Generate replaces the base with a freshly generated garment photo.
func (e *Editor) Generate(req GenerateRequest) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		_ = e.do(func(m *model) {
			m.errMsg = "enter a design description"
			m.touch()
		})
		return apperrors.New(apperrors.CategoryInput, "editor.generate", apperrors.ErrEmptyInput)
	}
	garment, color := strings.TrimSpace(req.Garment), strings.TrimSpace(req.Color)
	if garment == "" {
		garment = catalog.GarmentTypes[0]
	}
	if color == "" {
		color = catalog.Colors[0].Name
	}
	size := service.ParseImageSize(string(req.Size))

	return e.edit("generate", func(m *model) error {
		if e.generator == nil {
			return errNoService("editor.generate")
		}
		bt := m.base.Ticket()

		return e.async(m, "generate", func(ctx context.Context) (func(*model), error) {
			img, err := e.generator.Generate(ctx, service.GeneratePrompt(garment, color, prompt), "1:1", size)
			if err != nil {
				return nil, err
			}
			asset := core.NewAsset("mockup:"+ulid.Make().String(), img)
			return func(m *model) {
				if !m.base.Current(bt) {
					e.logger.Debug("editor.edit.stale", "session", e.id, "op", "generate")
					return
				}
				m.base.Replace(asset)
				m.guide = nil
				m.backup = nil
			}, nil
		}, func(m *model, err error) {
			m.errMsg = "mockup generation failed: " + apperrors.Message(err)
		})
	})
}

// ChangeBackdrop asks the edit service to repaint everything around the
// garment in one of the catalog backdrop colours. The garment keeps its place
// so the print-area guide stays.
func (e *Editor) ChangeBackdrop(colour string) error {
	sw, ok := catalog.Backdrop(colour)
	if !ok {
		return apperrors.New(apperrors.CategoryInput, "editor.backdrop",
			fmt.Errorf("backdrop %q: %w", colour, apperrors.ErrInvalidValue))
	}
	return e.restyleBase("backdrop", service.BackdropInstruction(sw.Name), true,
		"backdrop change failed: ")
}

// GenerateBackground places the garment in a generated scene of the given
// mood, e.g. one of catalog.Moods.
func (e *Editor) GenerateBackground(mood string) error {
	mood = strings.TrimSpace(mood)
	if mood == "" {
		return apperrors.New(apperrors.CategoryInput, "editor.background", apperrors.ErrEmptyInput)
	}
	return e.restyleBase("background", service.BackgroundInstruction(mood), false,
		"background generation failed: ")
}

// restyleBase sends the base alone through the edit service and installs the
// result as the new base unless the base changed meanwhile.
func (e *Editor) restyleBase(op, instruction string, keepGuide bool, failMsg string) error {
	return e.edit(op, func(m *model) error {
		if e.editor == nil {
			return errNoService("editor." + op)
		}
		base, ok := m.base.Ready()
		if !ok {
			return apperrors.New(apperrors.CategoryInput, "editor."+op, apperrors.ErrBaseUnavailable)
		}
		bt := m.base.Ticket()

		return e.async(m, op, func(ctx context.Context) (func(*model), error) {
			out, err := e.editor.Edit(ctx, base.Image, instruction,
				service.AspectRatio(base.Width(), base.Height()))
			if err != nil {
				return nil, err
			}
			asset := core.NewAsset(op+":"+ulid.Make().String(), out)
			return func(m *model) {
				if !m.base.Current(bt) {
					e.logger.Debug("editor.edit.stale", "session", e.id, "op", op)
					return
				}
				m.base.Replace(asset)
				if !keepGuide {
					m.guide = nil
				}
				m.backup = nil
			}, nil
		}, func(m *model, err error) {
			m.errMsg = failMsg + apperrors.Message(err)
		})
	})
}

// Undo restores the state saved before the last blend.
func (e *Editor) Undo() error {
	return e.call(func(m *model) error {
		if m.generating {
			return apperrors.New(apperrors.CategoryInput, "editor.undo", apperrors.ErrGenerating)
		}
		b := m.backup
		if b == nil {
			return apperrors.New(apperrors.CategoryInput, "editor.undo", apperrors.ErrNoBackup)
		}
		m.transform = b.transform
		m.base.Replace(b.base)
		m.overlay.Replace(b.overlay)
		m.guide = b.guide
		m.session = gesture.Session{}
		m.backup = nil
		m.errMsg = ""
		m.touch()
		e.logger.Info("editor.undo", "session", e.id)
		return nil
	})
}

// edit runs start on the session goroutine unless another edit is pending.
// start queues the background work; if it fails nothing is left running.
func (e *Editor) edit(op string, start func(m *model) error) error {
	return e.call(func(m *model) error {
		if m.generating {
			return apperrors.New(apperrors.CategoryInput, "editor."+op, apperrors.ErrGenerating)
		}
		m.generating, m.errMsg = true, ""
		if err := start(m); err != nil {
			m.generating = false
			return err
		}
		m.touch()
		e.logger.Info("editor.edit.start", "session", e.id, "op", op)
		return nil
	})
}

// async runs work on the pool. Its commit, or fail on error, is applied on
// the session goroutine and the generating flag is cleared either way.
func (e *Editor) async(m *model, op string, work func(ctx context.Context) (func(*model), error), fail func(*model, error)) error {
	m.pending++
	err := e.pool.Submit(core.Job{
		ID:  op + ":" + e.id,
		Ctx: e.ctx,
		Run: func(ctx context.Context) (err error) {
			var commit func(*model)
			defer func() {
				if r := recover(); r != nil {
					commit, err = nil, apperrors.New(apperrors.CategoryService, "editor."+op, fmt.Errorf("panic: %v", r))
				}
				e.post(func(m *model) {
					defer e.settle(m)
					m.generating = false
					m.touch()
					if err != nil {
						fail(m, err)
						e.logger.Warn("editor.edit.failed", "session", e.id, "op", op, "error", err)
						return
					}
					commit(m)
					e.logger.Info("editor.edit.done", "session", e.id, "op", op)
				})
			}()
			commit, err = work(ctx)
			return err
		},
	})
	if err != nil {
		m.pending--
	}
	return err
}

func errNoService(op string) error {
	return apperrors.New(apperrors.CategoryConfig, op, fmt.Errorf("no image service configured"))
}
