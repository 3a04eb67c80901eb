package gesture

import (
	"github.com/Skryldev/mockup-studio/transform"
)

// Mode is the controller state.
type Mode int

const (
	Idle Mode = iota
	Dragging
	Pinching
)

func (m Mode) String() string {
	switch m {
	case Dragging:
		return "dragging"
	case Pinching:
		return "pinching"
	}
	return "idle"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Config parameterises Step.
type Config struct {
	Limits transform.Limits
	// IsControl reports whether a pointer-down target is an interactive
	// control. Such pointers are never tracked. Nil uses DefaultControls.
	IsControl func(target string) bool
}

// DefaultConfig uses the default scale range and control set.
func DefaultConfig() Config {
	return Config{Limits: transform.DefaultLimits(), IsControl: ControlPredicate(DefaultControls...)}
}

type tracked struct {
	id int
	at Point
}

// Session is the per-gesture scratch state. The zero value is Idle.
// Sessions are values; Step never mutates its argument.
type Session struct {
	mode     Mode
	pointers []tracked // in arrival order
	last     Point     // drag anchor
	pinch    Pinch
}

// Mode reports the current state.
func (s Session) Mode() Mode { return s.mode }

// Active reports how many pointers are tracked.
func (s Session) Active() int { return len(s.pointers) }

func (s Session) index(id int) int {
	for i, p := range s.pointers {
		if p.id == id {
			return i
		}
	}
	return -1
}

func (s Session) clone() Session {
	s.pointers = append([]tracked(nil), s.pointers...)
	return s
}

// rearm derives the mode from the tracked pointers, snapshotting st as the
// gesture start.
func (s Session) rearm(cfg Config, st transform.State) Session {
	switch len(s.pointers) {
	case 0:
		return Session{}
	case 1:
		s.mode = Dragging
		s.last = s.pointers[0].at
	default:
		s.mode = Pinching
		s.pinch = NewPinch(s.pointers[0].at, s.pointers[1].at,
			st.Scale, st.Rotation, cfg.Limits.MinScale, cfg.Limits.MaxScale, true)
	}
	return s
}

// Step applies ev to the session. view is the on-screen size of the rendered
// surface, used to normalise drag deltas. The returned State always satisfies
// the clamping invariants; changed reports whether it differs from st.
//
// Transitions:
//
//	idle     -> dragging  first pointer down (not on a control)
//	dragging -> pinching  second pointer down
//	pinching -> dragging  one of the first two pointers lifted, one left
//	any      -> idle      all pointers lifted, or cancel
func Step(cfg Config, s Session, st transform.State, ev Event, view Size) (next Session, out transform.State, changed bool) {
	isControl := cfg.IsControl
	if isControl == nil {
		isControl = ControlPredicate(DefaultControls...)
	}

	switch ev.Kind {
	case Cancel:
		return Session{}, st, false

	case Down:
		if isControl(ev.Target) || s.index(ev.Pointer) >= 0 {
			return s, st, false
		}
		next = s.clone()
		next.pointers = append(next.pointers, tracked{id: ev.Pointer, at: ev.At()})
		if len(next.pointers) <= 2 {
			next = next.rearm(cfg, st)
		}
		return next, st, false

	case Up:
		i := s.index(ev.Pointer)
		if i < 0 {
			return s, st, false
		}
		next = s.clone()
		next.pointers = append(next.pointers[:i], next.pointers[i+1:]...)
		if i <= 1 {
			next = next.rearm(cfg, st)
		}
		return next, st, false

	case Move:
		i := s.index(ev.Pointer)
		if i < 0 {
			return s, st, false
		}
		next = s.clone()
		next.pointers[i].at = ev.At()
		return move(cfg, next, st, i, ev.At(), view)
	}
	return s, st, false
}

func move(cfg Config, s Session, st transform.State, i int, at Point, view Size) (Session, transform.State, bool) {
	switch s.mode {
	case Dragging:
		if i != 0 {
			return s, st, false
		}
		dx, dy := at.X-s.last.X, at.Y-s.last.Y
		s.last = at
		if view.Width <= 0 || view.Height <= 0 {
			return s, st, false
		}
		out := st.Translate(transform.Vec{X: dx / view.Width, Y: dy / view.Height})
		return s, out, out != st

	case Pinching:
		if i > 1 {
			return s, st, false
		}
		scale, rot, ok := s.pinch.Update(s.pointers[0].at, s.pointers[1].at)
		if !ok {
			return s, st, false
		}
		out := st.WithScale(scale, cfg.Limits).WithRotation(rot)
		return s, out, out != st
	}
	return s, st, false
}
