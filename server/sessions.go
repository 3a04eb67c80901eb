package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/Skryldev/mockup-studio/editor"
)

// ErrTooManySessions is returned by Create once the session limit is reached.
var ErrTooManySessions = errors.New("too many open sessions")

// Factory builds the editor for a new session id.
type Factory func(id string) (*editor.Editor, error)

// Sessions holds the open editors by id.
type Sessions struct {
	mu        sync.RWMutex
	max       int // 0 = unlimited
	newEditor Factory
	items     map[string]*editor.Editor
}

// NewSessions returns an empty registry.
func NewSessions(max int, f Factory) *Sessions {
	return &Sessions{max: max, newEditor: f, items: make(map[string]*editor.Editor)}
}

// Create opens a new session.
func (s *Sessions) Create() (*editor.Editor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.items) >= s.max {
		return nil, ErrTooManySessions
	}
	id := ulid.Make().String()
	ed, err := s.newEditor(id)
	if err != nil {
		return nil, err
	}
	s.items[id] = ed
	return ed, nil
}

// Get returns the session with the given id.
func (s *Sessions) Get(id string) (*editor.Editor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ed, ok := s.items[id]
	return ed, ok
}

// Delete closes and forgets a session. It reports whether it existed.
func (s *Sessions) Delete(id string) bool {
	s.mu.Lock()
	ed, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()
	if ok {
		ed.Close()
	}
	return ok
}

// IDs lists the open sessions in creation order.
func (s *Sessions) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len is the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// CloseAll closes every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*editor.Editor)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ed := range items {
		wg.Add(1)
		go func(ed *editor.Editor) {
			defer wg.Done()
			ed.Close()
		}(ed)
	}
	wg.Wait()
}
