package editor

import (
	"strings"

	"github.com/Skryldev/mockup-studio/compositor"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/loader"
	"github.com/Skryldev/mockup-studio/transform"
)

// View holds the on-screen sizes the interaction math depends on.
type View struct {
	// Canvas is the displayed size of the rendered mockup. Drag deltas are
	// divided by it.
	Canvas gesture.Size `json:"canvas"`
	// Viewport bounds the floating panel and dock.
	Viewport gesture.Size `json:"viewport"`
}

// AssetInfo describes one image slot.
type AssetInfo struct {
	ID     string          `json:"id,omitempty"`
	State  core.AssetState `json:"state"`
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// DockState is the mobile dock placement.
type DockState struct {
	Position gesture.Point `json:"position"`
	Scale    float64       `json:"scale"`
	Pinching bool          `json:"pinching"`
}

// State is a point-in-time copy of a session.
type State struct {
	ID         string                `json:"id"`
	Revision   uint64                `json:"revision"`
	Transform  transform.State       `json:"transform"`
	Base       AssetInfo             `json:"base"`
	Overlay    AssetInfo             `json:"overlay"`
	Guide      *compositor.PrintArea `json:"guide,omitempty"`
	Generating bool                  `json:"generating"`
	CanUndo    bool                  `json:"canUndo"`
	Error      string                `json:"error,omitempty"`
	Gesture    gesture.Mode          `json:"gesture"`
	View       View                  `json:"view"`
	Panel      gesture.Point         `json:"panel"`
	Dock       *DockState            `json:"dock,omitempty"`
}

func (e *Editor) snapshot(m *model) State {
	st := State{
		ID:         e.id,
		Revision:   m.revision,
		Transform:  m.transform,
		Base:       describe(&m.base),
		Overlay:    describe(&m.overlay),
		Generating: m.generating,
		CanUndo:    m.backup != nil,
		Error:      m.errMsg,
		Gesture:    m.session.Mode(),
		View:       m.view,
		Panel:      m.panel.Position(),
	}
	if m.guide != nil {
		g := *m.guide
		st.Guide = &g
	}
	if m.dock != nil {
		st.Dock = &DockState{Position: m.dock.Position(), Scale: m.dock.Scale(), Pinching: m.dock.Pinching()}
	}
	return st
}

func describe(s *loader.Slot) AssetInfo {
	info := AssetInfo{ID: label(s.Identity()), State: s.State()}
	if a, ok := s.Ready(); ok {
		info.Width, info.Height = a.Width(), a.Height()
	}
	if err := s.Err(); err != nil {
		info.Error = apperrors.Message(err)
	}
	return info
}

// label keeps inline data URIs out of snapshots.
func label(id string) string {
	const max = 96
	if strings.HasPrefix(id, "data:") {
		if i := strings.IndexByte(id, ','); i > 0 {
			return id[:i+1] + "..."
		}
	}
	if len(id) > max {
		return id[:max] + "..."
	}
	return id
}
