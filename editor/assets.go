package editor

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/Skryldev/mockup-studio/catalog"
	"github.com/Skryldev/mockup-studio/compositor"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/loader"
	"github.com/Skryldev/mockup-studio/service"
)

// LoadOption adjusts how a new base image is installed.
type LoadOption func(*loadOptions)

type loadOptions struct {
	enhance bool
}

// WithEnhance sends the loaded base through the edit service's studio pass.
// The image is shown as loaded meanwhile and kept if the pass fails or no
// service is configured.
func WithEnhance() LoadOption { return func(o *loadOptions) { o.enhance = true } }

// SetBase starts loading a new base image. The previous base is dropped at
// once and any load still in flight for it is discarded when it lands.
func (e *Editor) SetBase(src core.Source, opts ...LoadOption) error {
	var lo loadOptions
	for _, o := range opts {
		o(&lo)
	}
	return e.load(baseSlot, src, nil, lo)
}

// SetOverlay starts loading a new design image.
func (e *Editor) SetOverlay(src core.Source) error {
	return e.load(overlaySlot, src, nil, loadOptions{})
}

// UseMockup switches the base to a catalog mockup and shows its print area.
func (e *Editor) UseMockup(id string) error {
	mk, ok := catalog.Lookup(id)
	if !ok {
		return apperrors.New(apperrors.CategoryInput, "editor.mockup",
			fmt.Errorf("mockup %q: %w", id, apperrors.ErrNotFound))
	}
	return e.load(baseSlot, core.Source{URI: mk.URL, Name: mk.Name, Size: -1}, mk.PrintArea, loadOptions{})
}

// ClearOverlay removes the design.
func (e *Editor) ClearOverlay() error {
	return e.do(func(m *model) {
		m.overlay.Clear()
		m.backup = nil
		m.session = gesture.Session{}
		m.touch()
	})
}

func (e *Editor) load(which slotKind, src core.Source, guide *compositor.PrintArea, lo loadOptions) error {
	if src.Identity() == "" {
		if src.Reader == nil {
			return apperrors.New(apperrors.CategoryInput, "editor.load", apperrors.ErrEmptyInput)
		}
		src.Name = "upload:" + ulid.Make().String()
	}

	return e.call(func(m *model) error {
		slot := m.slot(which)
		ticket := slot.Begin(src.Identity())
		m.backup = nil
		if which == baseSlot {
			m.guide = guide
		} else {
			m.session = gesture.Session{}
		}
		m.touch()

		m.pending++
		err := e.loader.LoadAsync(e.ctx, e.pool, src, func(a *core.Asset, err error) {
			e.post(func(m *model) {
				defer e.settle(m)
				if e.resolve(m, which, ticket, a, err) && lo.enhance {
					e.studioPass(m, a)
				}
			})
		})
		if err != nil {
			m.pending--
			slot.Resolve(ticket, nil, err)
			m.errMsg = fmt.Sprintf("could not load %s image: %s", which.noun(), apperrors.Message(err))
			return err
		}
		e.logger.Debug("editor.load.start", "session", e.id, "slot", string(which), "identity", label(ticket.Identity))
		return nil
	})
}

// resolve commits a load outcome and reports whether a decoded image was
// installed.
func (e *Editor) resolve(m *model, which slotKind, t loader.Ticket, a *core.Asset, err error) bool {
	if !m.slot(which).Resolve(t, a, err) {
		e.logger.Debug("editor.load.stale", "session", e.id, "slot", string(which),
			"identity", label(t.Identity), "error", apperrors.ErrStaleLoad)
		return false
	}
	m.touch()
	if err != nil {
		m.errMsg = fmt.Sprintf("could not load %s image: %s", which.noun(), apperrors.Message(err))
		e.logger.Warn("editor.load.failed", "session", e.id, "slot", string(which), "error", err)
		return false
	}
	e.logger.Info("editor.load.done", "session", e.id, "slot", string(which),
		"width", a.Width(), "height", a.Height())
	return true
}

// studioPass replaces a freshly loaded base with its studio version. The
// loaded image stays when the pass is skipped, fails or is overtaken.
func (e *Editor) studioPass(m *model, raw *core.Asset) {
	if e.editor == nil || m.generating {
		e.logger.Debug("editor.studio_pass.skipped", "session", e.id, "service", e.editor != nil)
		return
	}
	bt := m.base.Ticket()
	m.generating = true
	err := e.async(m, "studio_pass", func(ctx context.Context) (func(*model), error) {
		out, err := e.editor.Edit(ctx, raw.Image, service.StudioUploadInstruction, "1:1")
		if err != nil {
			return nil, err
		}
		asset := core.NewAsset("studio:"+ulid.Make().String(), out)
		return func(m *model) {
			if !m.base.Current(bt) {
				e.logger.Debug("editor.edit.stale", "session", e.id, "op", "studio_pass")
				return
			}
			m.base.Replace(asset)
		}, nil
	}, func(m *model, err error) {
		e.logger.Info("editor.studio_pass.fallback", "session", e.id, "identity", label(raw.ID))
	})
	if err != nil {
		m.generating = false
		e.logger.Warn("editor.studio_pass.failed", "session", e.id, "error", err)
	}
}
