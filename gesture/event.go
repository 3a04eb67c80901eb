// Package gesture turns raw pointer input into overlay transform updates.
//
// One pointer drags the overlay; two pointers pinch to scale and twist to
// rotate. Further pointers are tracked but ignored. Step is a pure function
// so the same transition table can be driven from HTTP, a socket stream or
// a test.
package gesture

import (
	"fmt"
	"strings"
)

// Point is a position in on-screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the on-screen size of the rendered surface.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Kind is the pointer event type.
type Kind int

const (
	Down Kind = iota
	Move
	Up
	Cancel
)

var kindNames = [...]string{"down", "move", "up", "cancel"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range kindNames {
		if n == s {
			*k = Kind(i)
			return nil
		}
	}
	// Accept DOM event names as well.
	switch s {
	case "pointerdown", "touchstart", "mousedown":
		*k = Down
	case "pointermove", "touchmove", "mousemove":
		*k = Move
	case "pointerup", "touchend", "mouseup":
		*k = Up
	case "pointercancel", "touchcancel":
		*k = Cancel
	default:
		return fmt.Errorf("gesture: unknown event kind %q", s)
	}
	return nil
}

// Event is one pointer transition. Target names the element kind that was
// hit on pointer-down ("button", "input", ...); empty means the canvas.
type Event struct {
	Kind    Kind    `json:"kind"`
	Pointer int     `json:"pointer"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Target  string  `json:"target,omitempty"`
}

// At returns the event position.
func (e Event) At() Point { return Point{e.X, e.Y} }

// DefaultControls are element kinds that never start a gesture.
var DefaultControls = []string{"button", "input", "select", "textarea", "label"}

// ControlPredicate builds a predicate matching the given element kinds,
// case-insensitively.
func ControlPredicate(kinds ...string) func(string) bool {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[strings.ToLower(k)] = struct{}{}
	}
	return func(target string) bool {
		_, ok := set[strings.ToLower(target)]
		return ok
	}
}
