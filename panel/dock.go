package panel

import (
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/gesture"
)

// Dock is the mobile control dock. One pointer drags it, two pointers pinch
// its scale. Translation is suspended while pinching.
type Dock struct {
	pos       Point
	size      Size // unscaled footprint
	margin    float64
	isControl func(string) bool

	scale    float64
	minScale float64
	maxScale float64
	pointers []pointer
	offset   Point
	pinching bool
	pinch    gesture.Pinch
}

// NewDock places the dock at the bottom-centre of vp.
func NewDock(cfg config.DockConfig, vp Size) *Dock {
	d := &Dock{
		size:      Size{Width: cfg.Width, Height: cfg.Height},
		margin:    cfg.Margin,
		isControl: gesture.ControlPredicate(gesture.DefaultControls...),
		scale:     cfg.InitialScale,
		minScale:  cfg.MinScale,
		maxScale:  cfg.MaxScale,
	}
	fp := d.footprint()
	d.pos = clampInto(Point{X: (vp.Width - fp.Width) / 2, Y: vp.Height - fp.Height - d.margin}, fp, d.margin, vp)
	return d
}

// Position returns the top-left corner.
func (d *Dock) Position() Point { return d.pos }

// Scale returns the current dock scale.
func (d *Dock) Scale() float64 { return d.scale }

// Pinching reports whether a two-pointer scale is in progress.
func (d *Dock) Pinching() bool { return d.pinching }

func (d *Dock) footprint() Size {
	return Size{Width: d.size.Width * d.scale, Height: d.size.Height * d.scale}
}

func (d *Dock) index(id int) int {
	for i, p := range d.pointers {
		if p.id == id {
			return i
		}
	}
	return -1
}

// Handle applies a pointer event and reports whether position or scale changed.
func (d *Dock) Handle(ev gesture.Event, vp Size) bool {
	switch ev.Kind {
	case gesture.Down:
		if d.isControl(ev.Target) || d.index(ev.Pointer) >= 0 {
			return false
		}
		d.pointers = append(d.pointers, pointer{id: ev.Pointer, at: ev.At()})
		if len(d.pointers) <= 2 {
			d.rearm()
		}
		return false

	case gesture.Move:
		i := d.index(ev.Pointer)
		if i < 0 {
			return false
		}
		d.pointers[i].at = ev.At()
		if d.pinching {
			if i > 1 {
				return false
			}
			scale, _, ok := d.pinch.Update(d.pointers[0].at, d.pointers[1].at)
			if !ok || scale == d.scale {
				return false
			}
			d.scale = scale
			d.pos = clampInto(d.pos, d.footprint(), d.margin, vp)
			return true
		}
		if i != 0 {
			return false
		}
		next := clampInto(Point{X: ev.X - d.offset.X, Y: ev.Y - d.offset.Y}, d.footprint(), d.margin, vp)
		if next == d.pos {
			return false
		}
		d.pos = next
		return true

	case gesture.Up:
		i := d.index(ev.Pointer)
		if i < 0 {
			return false
		}
		d.pointers = append(d.pointers[:i], d.pointers[i+1:]...)
		if i <= 1 {
			d.rearm()
		}

	case gesture.Cancel:
		d.pointers = nil
		d.pinching = false
	}
	return false
}

// Fit re-clamps the position, e.g. after a viewport resize.
func (d *Dock) Fit(vp Size) bool {
	next := clampInto(d.pos, d.footprint(), d.margin, vp)
	changed := next != d.pos
	d.pos = next
	return changed
}

func (d *Dock) rearm() {
	switch len(d.pointers) {
	case 0:
		d.pinching = false
	case 1:
		d.pinching = false
		at := d.pointers[0].at
		d.offset = Point{X: at.X - d.pos.X, Y: at.Y - d.pos.Y}
	default:
		d.pinching = true
		d.pinch = gesture.NewPinch(d.pointers[0].at, d.pointers[1].at, d.scale, 0, d.minScale, d.maxScale, false)
	}
}
