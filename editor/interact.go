package editor

import (
	"fmt"
	"math"

	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/panel"
	"github.com/Skryldev/mockup-studio/transform"
)

// ── Canvas gestures ───────────────────────────────────────────────────────────

// Pointer feeds a canvas pointer event to the gesture controller and reports
// whether the transform changed. A pointer-down is ignored while an edit is
// running or when there is no design to move.
func (e *Editor) Pointer(ev gesture.Event) (bool, error) {
	var changed bool
	err := e.do(func(m *model) {
		if ev.Kind == gesture.Down {
			if _, ok := m.overlay.Ready(); !ok || m.generating {
				return
			}
		}
		next, st, moved := gesture.Step(e.gesture, m.session, m.transform, ev, m.view.Canvas)
		if moved || next.Mode() != m.session.Mode() {
			m.touch()
		}
		m.session, m.transform = next, st
		changed = moved
	})
	return changed, err
}

// ── Panels ────────────────────────────────────────────────────────────────────

// PanelPointer drags the desktop control panel.
func (e *Editor) PanelPointer(ev gesture.Event) (bool, error) {
	var changed bool
	err := e.do(func(m *model) {
		changed = m.panel.Handle(ev, m.view.Viewport)
		if changed {
			m.touch()
		}
	})
	return changed, err
}

// DockPointer drags or pinch-scales the mobile dock. The viewport must be set
// first.
func (e *Editor) DockPointer(ev gesture.Event) (bool, error) {
	var changed bool
	err := e.call(func(m *model) error {
		if m.dock == nil {
			return apperrors.New(apperrors.CategoryGesture, "editor.dock",
				fmt.Errorf("viewport not set: %w", apperrors.ErrInvalidDimensions))
		}
		wasPinching := m.dock.Pinching()
		changed = m.dock.Handle(ev, m.view.Viewport)
		if changed || wasPinching != m.dock.Pinching() {
			m.touch()
		}
		return nil
	})
	return changed, err
}

// SetView records the on-screen sizes. The dock is placed on the first
// non-empty viewport; later resizes only pull the panels back on screen.
func (e *Editor) SetView(v View) error {
	for _, s := range []gesture.Size{v.Canvas, v.Viewport} {
		if !finite(s.Width) || !finite(s.Height) || s.Width < 0 || s.Height < 0 {
			return apperrors.New(apperrors.CategoryInput, "editor.view",
				fmt.Errorf("size %vx%v: %w", s.Width, s.Height, apperrors.ErrInvalidDimensions))
		}
	}
	return e.do(func(m *model) {
		if v != m.view {
			m.view = v
			m.touch()
		}
		vp := v.Viewport
		if vp.Width == 0 || vp.Height == 0 {
			return
		}
		if m.panel.Fit(vp) {
			m.touch()
		}
		if m.dock == nil {
			m.dock = panel.NewDock(e.cfg.Dock, vp)
			m.touch()
		} else if m.dock.Fit(vp) {
			m.touch()
		}
	})
}

// ── Discrete controls ─────────────────────────────────────────────────────────

// SetField applies a slider value.
func (e *Editor) SetField(f transform.Field, v float64) error {
	return e.call(func(m *model) error {
		next, err := m.transform.Set(f, v, e.limits)
		if err != nil {
			return err
		}
		e.commit(m, next)
		return nil
	})
}

// SetFlip sets the horizontal mirror.
func (e *Editor) SetFlip(flip bool) error {
	return e.do(func(m *model) { e.commit(m, m.transform.WithFlip(flip)) })
}

// ToggleFlip inverts the horizontal mirror.
func (e *Editor) ToggleFlip() error {
	return e.do(func(m *model) { e.commit(m, m.transform.ToggleFlip()) })
}

// SetTransform replaces the whole transform. Values are clamped; non-finite
// ones are rejected.
func (e *Editor) SetTransform(st transform.State) error {
	for _, v := range []float64{st.Position.X, st.Position.Y, st.Scale, st.Rotation, st.Opacity} {
		if !finite(v) {
			return apperrors.New(apperrors.CategoryInput, "editor.transform", apperrors.ErrInvalidValue)
		}
	}
	return e.do(func(m *model) { e.commit(m, st.Clamp(e.limits)) })
}

// TransformPatch names the transform fields to change; nil fields keep
// their value.
type TransformPatch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	FlipX    *bool    `json:"flipX,omitempty"`
}

// PatchTransform applies every field of p as one change. An invalid value
// rejects the whole patch.
func (e *Editor) PatchTransform(p TransformPatch) error {
	return e.call(func(m *model) error {
		next := m.transform
		for _, fv := range []struct {
			f transform.Field
			v *float64
		}{
			{transform.FieldX, p.X},
			{transform.FieldY, p.Y},
			{transform.FieldScale, p.Scale},
			{transform.FieldRotation, p.Rotation},
			{transform.FieldOpacity, p.Opacity},
		} {
			if fv.v == nil {
				continue
			}
			var err error
			if next, err = next.Set(fv.f, *fv.v, e.limits); err != nil {
				return err
			}
		}
		if p.FlipX != nil {
			next = next.WithFlip(*p.FlipX)
		}
		e.commit(m, next)
		return nil
	})
}

func (e *Editor) commit(m *model, next transform.State) {
	if next != m.transform {
		m.transform = next
		m.touch()
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
