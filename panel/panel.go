// Package panel positions the floating control surfaces: the draggable
// desktop panel and the mobile dock, which also pinch-scales. Positions are
// top-left corners in viewport pixels and are kept inside a safe margin.
package panel

import (
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/transform"
)

// Point and Size reuse the gesture coordinate types.
type (
	Point = gesture.Point
	Size  = gesture.Size
)

type pointer struct {
	id int
	at Point
}

// Panel is the desktop control panel. One pointer drags it; further pointers
// are ignored. Not safe for concurrent use.
type Panel struct {
	pos       Point
	footprint Size // area that must stay on screen
	margin    float64
	isControl func(string) bool

	dragging bool
	dragID   int
	offset   Point
}

// NewPanel places the panel at its configured start.
func NewPanel(cfg config.PanelConfig) *Panel {
	return &Panel{
		pos:       Point{X: cfg.InitialX, Y: cfg.InitialY},
		footprint: Size{Width: cfg.Width, Height: cfg.Grip},
		margin:    cfg.Margin,
		isControl: gesture.ControlPredicate(gesture.DefaultControls...),
	}
}

// Position returns the top-left corner.
func (p *Panel) Position() Point { return p.pos }

// Dragging reports whether a drag is in progress.
func (p *Panel) Dragging() bool { return p.dragging }

// Handle applies a pointer event and reports whether the position changed.
func (p *Panel) Handle(ev gesture.Event, vp Size) bool {
	switch ev.Kind {
	case gesture.Down:
		if p.dragging || p.isControl(ev.Target) {
			return false
		}
		p.dragging, p.dragID = true, ev.Pointer
		p.offset = Point{X: ev.X - p.pos.X, Y: ev.Y - p.pos.Y}
	case gesture.Move:
		if !p.dragging || ev.Pointer != p.dragID {
			return false
		}
		return p.moveTo(Point{X: ev.X - p.offset.X, Y: ev.Y - p.offset.Y}, vp)
	case gesture.Up:
		if ev.Pointer == p.dragID {
			p.dragging = false
		}
	case gesture.Cancel:
		p.dragging = false
	}
	return false
}

// Fit re-clamps the position, e.g. after a viewport resize.
func (p *Panel) Fit(vp Size) bool { return p.moveTo(p.pos, vp) }

func (p *Panel) moveTo(to Point, vp Size) bool {
	next := clampInto(to, p.footprint, p.margin, vp)
	if next == p.pos {
		return false
	}
	p.pos = next
	return true
}

// clampInto keeps a footprint of size fp at pos inside vp minus margin. When
// the viewport is too small the top-left margin wins.
func clampInto(pos Point, fp Size, margin float64, vp Size) Point {
	return Point{
		X: transform.Clamp(pos.X, margin, vp.Width-fp.Width-margin),
		Y: transform.Clamp(pos.Y, margin, vp.Height-fp.Height-margin),
	}
}
