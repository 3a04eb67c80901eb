package loader

import "github.com/Skryldev/mockup-studio/core"

// Ticket identifies one requested load. A ticket goes stale as soon as its
// slot begins another load or is replaced or cleared.
type Ticket struct {
	Gen      uint64
	Identity string
}

// Slot holds one image (base or overlay) and discards load results that
// arrive for a superseded request. A Slot is owned by a single goroutine.
type Slot struct {
	gen      uint64
	identity string
	state    core.AssetState
	asset    *core.Asset
	err      error
}

// Begin marks the slot as loading identity. The previous asset is dropped so
// it is never drawn against the new source.
func (s *Slot) Begin(identity string) Ticket {
	s.gen++
	s.identity = identity
	s.state, s.asset, s.err = core.AssetLoading, nil, nil
	return Ticket{Gen: s.gen, Identity: identity}
}

// Resolve commits a load outcome. It reports false and changes nothing when t
// no longer matches the current request.
func (s *Slot) Resolve(t Ticket, a *core.Asset, err error) bool {
	if !s.Current(t) {
		return false
	}
	if err != nil {
		s.state, s.asset, s.err = core.AssetFailed, nil, err
		return true
	}
	s.state, s.asset, s.err = core.AssetReady, a, nil
	return true
}

// Current reports whether t is the latest request.
func (s *Slot) Current(t Ticket) bool {
	return t.Gen == s.gen && t.Identity == s.identity
}

// Replace installs an already decoded asset and invalidates any in-flight load.
func (s *Slot) Replace(a *core.Asset) {
	if a == nil {
		s.Clear()
		return
	}
	s.gen++
	s.identity = a.ID
	s.state, s.asset, s.err = core.AssetReady, a, nil
}

// Clear empties the slot and invalidates any in-flight load.
func (s *Slot) Clear() {
	s.gen++
	s.identity = ""
	s.state, s.asset, s.err = core.AssetAbsent, nil, nil
}

// Ready returns the asset when the slot holds a decoded image.
func (s *Slot) Ready() (*core.Asset, bool) {
	if s.state != core.AssetReady || s.asset == nil {
		return nil, false
	}
	return s.asset, true
}

// State returns the lifecycle state.
func (s *Slot) State() core.AssetState { return s.state }

// Identity returns the identity of the current request or asset.
func (s *Slot) Identity() string { return s.identity }

// Err returns the failure of the last resolved load.
func (s *Slot) Err() error { return s.err }

// Ticket returns a ticket for whatever the slot holds now, so work derived
// from the current asset can later check it was not superseded.
func (s *Slot) Ticket() Ticket { return Ticket{Gen: s.gen, Identity: s.identity} }
