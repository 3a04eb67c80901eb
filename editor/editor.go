// Package editor is the single mutation point of a mockup session. It owns
// the overlay transform, the base and overlay slots, the generating flag, the
// backup slot and the floating panels.
//
// Every state change runs on one goroutine. Image loads and service calls
// run on a worker pool and hand their results back to that goroutine, where
// they are committed or discarded as stale.
package editor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/Skryldev/mockup-studio/compositor"
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/loader"
	"github.com/Skryldev/mockup-studio/panel"
	"github.com/Skryldev/mockup-studio/service"
	"github.com/Skryldev/mockup-studio/transform"
)

// AssetLoader loads a source in the background. *loader.Loader satisfies it.
type AssetLoader interface {
	LoadAsync(ctx context.Context, pool *core.Pool, src core.Source, done func(*core.Asset, error)) error
}

// Options wires an Editor to its collaborators.
type Options struct {
	Config    config.Config
	Registry  core.Registry
	Loader    AssetLoader
	Editor    service.ImageEditor // optional; edits fail without it
	Generator service.Generator   // optional
	Storage   core.StorageAdapter // optional export sink
	Hooks     []core.Hook         // export pipeline observers
	Logger    core.Logger

	// Pool runs loads and edits. When nil the Editor starts its own pool and
	// stops it on Close.
	Pool *core.Pool

	// ID names the session. Defaults to a fresh ULID.
	ID string
}

// Editor is one mockup session. All methods are safe for concurrent use.
type Editor struct {
	id      string
	cfg     config.Config
	limits  transform.Limits
	gesture gesture.Config

	reg       core.Registry
	loader    AssetLoader
	editor    service.ImageEditor
	generator service.Generator
	storage   core.StorageAdapter
	hooks     []core.Hook
	logger    core.Logger

	pool    *core.Pool
	ownPool bool

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func(*model)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type slotKind string

const (
	baseSlot    slotKind = "base"
	overlaySlot slotKind = "overlay"
)

// noun is the user-facing name of the slot.
func (k slotKind) noun() string {
	if k == overlaySlot {
		return "design"
	}
	return "base"
}

type backup struct {
	transform transform.State
	base      *core.Asset
	overlay   *core.Asset
	guide     *compositor.PrintArea
}

type subscriber struct {
	id int
	fn func(State)
}

// model is owned by the run goroutine.
type model struct {
	transform  transform.State
	base       loader.Slot
	overlay    loader.Slot
	guide      *compositor.PrintArea
	generating bool
	backup     *backup
	errMsg     string
	session    gesture.Session
	view       View
	panel      *panel.Panel
	dock       *panel.Dock

	revision uint64
	pending  int
	idle     []chan struct{}
	subs     []subscriber
	nextSub  int
}

func (m *model) touch() { m.revision++ }

func (m *model) slot(k slotKind) *loader.Slot {
	if k == overlaySlot {
		return &m.overlay
	}
	return &m.base
}

// New validates the configuration and starts the session.
func New(opts Options) (*Editor, error) {
	cfg := opts.Config
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "editor.new", err)
	}
	if opts.Registry == nil || opts.Loader == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "editor.new",
			fmt.Errorf("registry and loader are required"))
	}

	e := &Editor{
		id:        opts.ID,
		cfg:       cfg,
		limits:    transform.LimitsFrom(cfg.Transform),
		reg:       opts.Registry,
		loader:    opts.Loader,
		editor:    opts.Editor,
		generator: opts.Generator,
		storage:   opts.Storage,
		hooks:     opts.Hooks,
		logger:    opts.Logger,
		pool:      opts.Pool,
		ops:       make(chan func(*model)),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if e.id == "" {
		e.id = ulid.Make().String()
	}
	if e.logger == nil {
		e.logger = core.NopLogger{}
	}
	e.gesture = gesture.Config{
		Limits:    e.limits,
		IsControl: gesture.ControlPredicate(gesture.DefaultControls...),
	}
	if e.pool == nil {
		e.pool = core.NewPool(cfg)
		e.pool.SetLogger(e.logger)
		e.pool.Start()
		e.ownPool = true
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	m := &model{
		transform: transform.Initial(cfg.Transform),
		panel:     panel.NewPanel(cfg.Panel),
	}
	go e.run(m)
	e.logger.Debug("editor.start", "session", e.id)
	return e, nil
}

// ID returns the session identifier.
func (e *Editor) ID() string { return e.id }

// Close cancels in-flight work and stops the session. Results that arrive
// afterwards are dropped. It is idempotent.
func (e *Editor) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		close(e.quit)
		<-e.done
		if e.ownPool {
			e.pool.Stop()
		}
		e.logger.Debug("editor.close", "session", e.id)
	})
}

// ── actor loop ────────────────────────────────────────────────────────────────

func (e *Editor) run(m *model) {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case op := <-e.ops:
			before := m.revision
			e.apply(m, op)
			if m.revision != before {
				e.apply(m, e.publish)
			}
		}
	}
}

func (e *Editor) apply(m *model, op func(*model)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("editor.op.panic", "session", e.id, "panic", r)
		}
	}()
	op(m)
}

// publish calls subscribers on the run goroutine. They must not call back
// into the Editor.
func (e *Editor) publish(m *model) {
	if len(m.subs) == 0 {
		return
	}
	st := e.snapshot(m)
	for _, s := range m.subs {
		s.fn(st)
	}
}

// do runs fn on the run goroutine and waits for it.
func (e *Editor) do(fn func(*model)) error {
	finished := make(chan struct{})
	op := func(m *model) {
		defer close(finished)
		fn(m)
	}
	select {
	case e.ops <- op:
	case <-e.quit:
		return apperrors.New(apperrors.CategoryInput, "editor", apperrors.ErrClosed)
	}
	<-finished
	return nil
}

// call is do for operations that report their own error.
func (e *Editor) call(fn func(*model) error) error {
	var err error
	if derr := e.do(func(m *model) { err = fn(m) }); derr != nil {
		return derr
	}
	return err
}

// post hands a background result to the run goroutine without waiting for it
// to run. It is dropped once the Editor is closed.
func (e *Editor) post(fn func(*model)) {
	select {
	case e.ops <- fn:
	case <-e.quit:
	}
}

// settle marks one background task as finished.
func (e *Editor) settle(m *model) {
	m.pending--
	if m.pending > 0 {
		return
	}
	m.pending = 0
	for _, ch := range m.idle {
		close(ch)
	}
	m.idle = nil
}

// Idle blocks until no load or edit is in flight.
func (e *Editor) Idle(ctx context.Context) error {
	var wait chan struct{}
	if err := e.do(func(m *model) {
		if m.pending > 0 {
			wait = make(chan struct{})
			m.idle = append(m.idle, wait)
		}
	}); err != nil {
		return err
	}
	if wait == nil {
		return nil
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return apperrors.New(apperrors.CategoryInput, "editor", apperrors.ErrClosed)
	}
}

// Subscribe registers fn to receive a State after every change. fn runs on
// the session goroutine and must not call Editor methods. The returned
// function unregisters it.
func (e *Editor) Subscribe(fn func(State)) (cancel func()) {
	id := -1
	_ = e.do(func(m *model) {
		m.nextSub++
		id = m.nextSub
		m.subs = append(m.subs, subscriber{id: id, fn: fn})
	})
	return func() {
		if id < 0 {
			return
		}
		_ = e.do(func(m *model) {
			i := sort.Search(len(m.subs), func(i int) bool { return m.subs[i].id >= id })
			if i < len(m.subs) && m.subs[i].id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
			}
		})
	}
}

// State returns a snapshot of the session.
func (e *Editor) State() (State, error) {
	var st State
	err := e.do(func(m *model) { st = e.snapshot(m) })
	return st, err
}

// ClearError dismisses the user-visible error message.
func (e *Editor) ClearError() error {
	return e.do(func(m *model) {
		if m.errMsg != "" {
			m.errMsg = ""
			m.touch()
		}
	})
}
