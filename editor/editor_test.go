package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Skryldev/mockup-studio/adapters/encoder"
	"github.com/Skryldev/mockup-studio/catalog"
	"github.com/Skryldev/mockup-studio/compositor"
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/service"
	"github.com/Skryldev/mockup-studio/transform"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeLoader struct {
	mu     sync.Mutex
	assets map[string]*core.Asset
	errs   map[string]error
	gates  map[string]chan struct{}
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		assets: map[string]*core.Asset{},
		errs:   map[string]error{},
		gates:  map[string]chan struct{}{},
	}
}

func (f *fakeLoader) add(id string, img image.Image) *core.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := core.NewAsset(id, img)
	f.assets[id] = a
	return a
}

func (f *fakeLoader) fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

func (f *fakeLoader) hold(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakeLoader) LoadAsync(_ context.Context, _ *core.Pool, src core.Source, done func(*core.Asset, error)) error {
	id := src.Identity()
	f.mu.Lock()
	a, err, gate := f.assets[id], f.errs[id], f.gates[id]
	f.mu.Unlock()
	if a == nil && err == nil {
		err = apperrors.New(apperrors.CategoryLoad, "fake.load", apperrors.ErrNotFound)
	}
	go func() {
		if gate != nil {
			<-gate
		}
		done(a, err)
	}()
	return nil
}

type fakeService struct {
	mu           sync.Mutex
	gate         chan struct{}
	out          image.Image
	err          error
	instructions []string
	aspects      []string
	prompts      []string
}

func (f *fakeService) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeService) Edit(ctx context.Context, _ image.Image, instruction, aspect string) (image.Image, error) {
	f.mu.Lock()
	f.instructions = append(f.instructions, instruction)
	f.aspects = append(f.aspects, aspect)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.out, f.err
}

func (f *fakeService) Generate(ctx context.Context, prompt, aspect string, _ service.ImageSize) (image.Image, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.aspects = append(f.aspects, aspect)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.out, f.err
}

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	blue = color.RGBA{0, 0, 255, 255}
	red  = color.RGBA{255, 0, 0, 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

type fixture struct {
	ed      *Editor
	loader  *fakeLoader
	service *fakeService
	base    *core.Asset
	overlay *core.Asset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := core.NewRegistry()
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(90))

	fl := newFakeLoader()
	fs := &fakeService{out: solid(40, 40, red)}
	ed, err := New(Options{
		Config:    config.Default(),
		Registry:  reg,
		Loader:    fl,
		Editor:    fs,
		Generator: fs,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ed.Close)
	return &fixture{
		ed:      ed,
		loader:  fl,
		service: fs,
		base:    fl.add("base.png", solid(100, 80, blue)),
		overlay: fl.add("design.png", solid(32, 18, red)),
	}
}

// ready loads both images and waits for them.
func (f *fixture) ready(t *testing.T) {
	t.Helper()
	must(t, f.ed.SetBase(core.Source{URI: "base.png"}))
	must(t, f.ed.SetOverlay(core.Source{URI: "design.png"}))
	idle(t, f.ed)
}

func idle(t *testing.T, ed *Editor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ed.Idle(ctx); err != nil {
		t.Fatalf("Idle: %v", err)
	}
}

func state(t *testing.T, ed *Editor) State {
	t.Helper()
	st, err := ed.State()
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// ── loads ─────────────────────────────────────────────────────────────────────

func TestStaleLoadIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.loader.add("a.png", solid(30, 30, red))
	f.loader.add("b.png", solid(50, 20, blue))
	release := f.loader.hold("a.png")

	must(t, f.ed.SetBase(core.Source{URI: "a.png"}))
	must(t, f.ed.SetBase(core.Source{URI: "b.png"}))
	// Let b land first, then the slow a.
	time.Sleep(20 * time.Millisecond)
	close(release)
	idle(t, f.ed)

	st := state(t, f.ed)
	if st.Base.ID != "b.png" || st.Base.Width != 50 || st.Base.State != core.AssetReady {
		t.Errorf("base = %+v, want b.png 50px ready", st.Base)
	}
}

func TestOverlayFailureRendersBaseOnly(t *testing.T) {
	f := newFixture(t)
	f.loader.fail("broken.png", apperrors.New(apperrors.CategoryDecode, "fake", apperrors.ErrUnsupportedFormat))
	must(t, f.ed.SetBase(core.Source{URI: "base.png"}))
	must(t, f.ed.SetOverlay(core.Source{URI: "broken.png"}))
	idle(t, f.ed)

	st := state(t, f.ed)
	if st.Overlay.State != core.AssetFailed {
		t.Errorf("overlay state = %v, want failed", st.Overlay.State)
	}
	if !strings.HasPrefix(st.Error, "could not load design image") {
		t.Errorf("error = %q", st.Error)
	}
	got, err := f.ed.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want, _ := compositor.Snapshot(f.base, nil, st.Transform, 1, compositor.Options{Shadow: true})
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Error("render with a failed design should equal the base-only frame")
	}
}

func TestRenderNeedsBase(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ed.Render(); !errors.Is(err, apperrors.ErrBaseUnavailable) {
		t.Errorf("no base: err = %v", err)
	}

	f.loader.fail("bad.png", errors.New("connection reset"))
	must(t, f.ed.SetBase(core.Source{URI: "bad.png"}))
	idle(t, f.ed)
	_, err := f.ed.Render()
	if !errors.Is(err, apperrors.ErrBaseUnavailable) || !apperrors.IsCategory(err, apperrors.CategoryRender) {
		t.Fatalf("failed base: err = %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error should carry the load failure: %v", err)
	}
}

func TestEmptySourceRejected(t *testing.T) {
	f := newFixture(t)
	if err := f.ed.SetBase(core.Source{}); !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

func TestUseMockup(t *testing.T) {
	f := newFixture(t)
	if err := f.ed.UseMockup("no-such"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown mockup: err = %v", err)
	}
	must(t, f.ed.UseMockup("short-white"))
	st := state(t, f.ed)
	if st.Guide == nil || st.Guide.Width != 360 {
		t.Errorf("guide = %+v, want chest print area", st.Guide)
	}
	if st.Base.State != core.AssetLoading && st.Base.State != core.AssetFailed {
		t.Errorf("base state = %v", st.Base.State)
	}
}

// ── interaction ───────────────────────────────────────────────────────────────

func TestPointerNeedsOverlay(t *testing.T) {
	f := newFixture(t)
	must(t, f.ed.SetBase(core.Source{URI: "base.png"}))
	idle(t, f.ed)
	must(t, f.ed.SetView(View{Canvas: gesture.Size{Width: 100, Height: 100}}))

	f.ed.Pointer(gesture.Event{Kind: gesture.Down, Pointer: 1})
	if st := state(t, f.ed); st.Gesture != gesture.Idle {
		t.Fatalf("gesture armed without a design: %v", st.Gesture)
	}

	must(t, f.ed.SetOverlay(core.Source{URI: "design.png"}))
	idle(t, f.ed)
	f.ed.Pointer(gesture.Event{Kind: gesture.Down, Pointer: 1})
	changed, err := f.ed.Pointer(gesture.Event{Kind: gesture.Move, Pointer: 1, X: 10})
	if err != nil || !changed {
		t.Fatalf("drag: changed=%v err=%v", changed, err)
	}
	if st := state(t, f.ed); math.Abs(st.Transform.Position.X-0.6) > 1e-9 || st.Gesture != gesture.Dragging {
		t.Errorf("after drag: %+v mode %v", st.Transform.Position, st.Gesture)
	}
	f.ed.Pointer(gesture.Event{Kind: gesture.Up, Pointer: 1})
	if st := state(t, f.ed); st.Gesture != gesture.Idle {
		t.Errorf("release: mode %v", st.Gesture)
	}
}

func TestSetFieldClampsAndRejects(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		field transform.Field
		value float64
		check func(transform.State) bool
	}{
		{transform.FieldScale, 5, func(s transform.State) bool { return s.Scale == 0.8 }},
		{transform.FieldRotation, 370, func(s transform.State) bool { return math.Abs(s.Rotation-10) < 1e-9 }},
		{transform.FieldOpacity, -1, func(s transform.State) bool { return s.Opacity == 0 }},
		{transform.FieldX, 2, func(s transform.State) bool { return s.Position.X == 1 }},
	}
	for _, tc := range cases {
		must(t, f.ed.SetField(tc.field, tc.value))
		if st := state(t, f.ed); !tc.check(st.Transform) {
			t.Errorf("%s=%v: got %+v", tc.field, tc.value, st.Transform)
		}
	}

	before := state(t, f.ed).Transform
	if err := f.ed.SetField(transform.FieldScale, math.NaN()); !errors.Is(err, apperrors.ErrInvalidValue) {
		t.Errorf("NaN: err = %v", err)
	}
	if err := f.ed.SetTransform(transform.State{Scale: math.Inf(1)}); !errors.Is(err, apperrors.ErrInvalidValue) {
		t.Errorf("Inf: err = %v", err)
	}
	if st := state(t, f.ed); st.Transform != before {
		t.Errorf("rejected values changed the transform: %+v", st.Transform)
	}

	must(t, f.ed.ToggleFlip())
	if !state(t, f.ed).Transform.FlipX {
		t.Error("ToggleFlip did not flip")
	}
	must(t, f.ed.SetFlip(false))
	if state(t, f.ed).Transform.FlipX {
		t.Error("SetFlip(false) left the flip on")
	}
}

func TestPanelAndDock(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ed.DockPointer(gesture.Event{Kind: gesture.Down, Pointer: 1}); !errors.Is(err, apperrors.ErrInvalidDimensions) {
		t.Errorf("dock before viewport: err = %v", err)
	}
	must(t, f.ed.SetView(View{Viewport: gesture.Size{Width: 400, Height: 900}}))
	st := state(t, f.ed)
	if st.Dock == nil || st.Dock.Scale != 0.85 {
		t.Fatalf("dock = %+v", st.Dock)
	}

	start := st.Panel
	f.ed.PanelPointer(gesture.Event{Kind: gesture.Down, Pointer: 1, X: start.X + 5, Y: start.Y + 5})
	moved, _ := f.ed.PanelPointer(gesture.Event{Kind: gesture.Move, Pointer: 1, X: start.X + 25, Y: start.Y + 5})
	if !moved || state(t, f.ed).Panel.X != start.X+20 {
		t.Errorf("panel drag: moved=%v panel=%+v", moved, state(t, f.ed).Panel)
	}

	if err := f.ed.SetView(View{Canvas: gesture.Size{Width: -1}}); !errors.Is(err, apperrors.ErrInvalidDimensions) {
		t.Errorf("negative size: err = %v", err)
	}
}

// ── edits ─────────────────────────────────────────────────────────────────────

func TestRemoveBackground(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	f.service.out = solid(20, 10, color.RGBA{250, 250, 250, 255})

	must(t, f.ed.RemoveBackground())
	idle(t, f.ed)

	st := state(t, f.ed)
	if !strings.HasPrefix(st.Overlay.ID, "design:") || st.Generating {
		t.Fatalf("overlay = %+v generating=%v", st.Overlay, st.Generating)
	}
	if f.service.instructions[0] != service.RemoveBackgroundInstruction || f.service.aspects[0] != "16:9" {
		t.Errorf("request = %q %q", f.service.instructions[0], f.service.aspects[0])
	}
	data, err := f.ed.OverlayPNG(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, a := img.At(5, 5).RGBA(); a != 0 {
		t.Errorf("near-white pixel alpha = %d, want transparent", a)
	}
}

func TestGeneratingSuppressesOverlay(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	f.service.gate = make(chan struct{})

	must(t, f.ed.RemoveBackground())
	st := state(t, f.ed)
	if !st.Generating {
		t.Fatal("expected generating")
	}

	got, err := f.ed.Render()
	if err != nil {
		t.Fatal(err)
	}
	want, _ := compositor.Snapshot(f.base, nil, st.Transform, 1, compositor.Options{})
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Error("overlay drawn while generating")
	}

	if err := f.ed.Blend(); !errors.Is(err, apperrors.ErrGenerating) {
		t.Errorf("second edit: err = %v, want ErrGenerating", err)
	}
	if _, err := f.ed.Export(context.Background(), ExportOptions{}); !errors.Is(err, apperrors.ErrGenerating) {
		t.Errorf("export while generating: err = %v", err)
	}
	f.ed.Pointer(gesture.Event{Kind: gesture.Down, Pointer: 1})
	if st := state(t, f.ed); st.Gesture != gesture.Idle {
		t.Errorf("gesture armed while generating")
	}

	close(f.service.gate)
	idle(t, f.ed)
	if state(t, f.ed).Generating {
		t.Error("generating flag stuck")
	}
}

func TestBlendAndUndo(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	must(t, f.ed.SetField(transform.FieldRotation, 45))
	before := state(t, f.ed)

	must(t, f.ed.Blend())
	idle(t, f.ed)

	st := state(t, f.ed)
	if !strings.HasPrefix(st.Base.ID, "blend:") || st.Overlay.State != core.AssetAbsent || !st.CanUndo {
		t.Fatalf("after blend: base=%+v overlay=%+v canUndo=%v", st.Base, st.Overlay, st.CanUndo)
	}
	if f.service.instructions[0] != service.FabricBlendInstruction || f.service.aspects[0] != "5:4" {
		t.Errorf("request = %q %q", f.service.instructions[0], f.service.aspects[0])
	}

	must(t, f.ed.Undo())
	st = state(t, f.ed)
	if st.Base.ID != "base.png" || st.Overlay.ID != "design.png" || st.Transform != before.Transform || st.CanUndo {
		t.Errorf("after undo: %+v", st)
	}
	if err := f.ed.Undo(); !errors.Is(err, apperrors.ErrNoBackup) {
		t.Errorf("second undo: err = %v", err)
	}
}

func TestBlendFailureDropsBackup(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	f.service.err = apperrors.New(apperrors.CategoryService, "fake", errors.New("quota exceeded"))

	must(t, f.ed.Blend())
	idle(t, f.ed)

	st := state(t, f.ed)
	if st.CanUndo || st.Generating {
		t.Errorf("canUndo=%v generating=%v", st.CanUndo, st.Generating)
	}
	if st.Error != "AI blend failed: quota exceeded" {
		t.Errorf("error = %q", st.Error)
	}
	if st.Base.ID != "base.png" || st.Overlay.ID != "design.png" {
		t.Errorf("state changed on failure: %+v %+v", st.Base, st.Overlay)
	}
	must(t, f.ed.ClearError())
	if state(t, f.ed).Error != "" {
		t.Error("ClearError left the message")
	}
}

func TestNewBaseDropsBackup(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	must(t, f.ed.Blend())
	idle(t, f.ed)
	must(t, f.ed.SetBase(core.Source{URI: "base.png"}))
	if state(t, f.ed).CanUndo {
		t.Error("changing the base should discard the backup")
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	if err := f.ed.Generate(GenerateRequest{Prompt: "  "}); !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Fatalf("empty prompt: err = %v", err)
	}
	if st := state(t, f.ed); st.Error != "enter a design description" {
		t.Errorf("error = %q", st.Error)
	}

	must(t, f.ed.Generate(GenerateRequest{Prompt: "a tiger", Size: "2k"}))
	idle(t, f.ed)
	st := state(t, f.ed)
	if !strings.HasPrefix(st.Base.ID, "mockup:") || st.Error != "" {
		t.Errorf("after generate: base=%+v error=%q", st.Base, st.Error)
	}
	if want := service.GeneratePrompt("T-Shirt", "Black", "a tiger"); f.service.prompts[0] != want {
		t.Errorf("prompt = %q, want %q", f.service.prompts[0], want)
	}
	if f.service.aspects[0] != "1:1" {
		t.Errorf("aspect = %q", f.service.aspects[0])
	}
}

func TestEditsWithoutService(t *testing.T) {
	reg := core.NewRegistry()
	ed, err := New(Options{Config: config.Default(), Registry: reg, Loader: newFakeLoader()})
	if err != nil {
		t.Fatal(err)
	}
	defer ed.Close()
	if err := ed.Generate(GenerateRequest{Prompt: "x"}); !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Errorf("err = %v, want config error", err)
	}
	if st, _ := ed.State(); st.Generating {
		t.Error("failed start left generating set")
	}
}

// ── base restyling ────────────────────────────────────────────────────────────

// generating polls until an edit is pending.
func generating(t *testing.T, ed *Editor) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !state(t, ed).Generating {
		if time.Now().After(deadline) {
			t.Fatal("edit never started")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestChangeBackdrop(t *testing.T) {
	f := newFixture(t)
	mk := catalog.Default()
	f.loader.add(mk.URL, solid(100, 80, blue))
	must(t, f.ed.UseMockup(mk.ID))
	idle(t, f.ed)

	if err := f.ed.ChangeBackdrop("Hot Pink"); !errors.Is(err, apperrors.ErrInvalidValue) {
		t.Fatalf("unknown colour: err = %v", err)
	}
	must(t, f.ed.ChangeBackdrop("warm sand"))
	idle(t, f.ed)

	st := state(t, f.ed)
	if !strings.HasPrefix(st.Base.ID, "backdrop:") || st.Generating || st.Error != "" {
		t.Fatalf("after backdrop: base=%+v generating=%v error=%q", st.Base, st.Generating, st.Error)
	}
	if st.Guide == nil {
		t.Error("backdrop change dropped the print-area guide")
	}
	if f.service.instructions[0] != service.BackdropInstruction("Warm Sand") || f.service.aspects[0] != "5:4" {
		t.Errorf("request = %q %q", f.service.instructions[0], f.service.aspects[0])
	}
}

func TestGenerateBackground(t *testing.T) {
	f := newFixture(t)
	mk := catalog.Default()
	f.loader.add(mk.URL, solid(100, 80, blue))
	must(t, f.ed.UseMockup(mk.ID))
	idle(t, f.ed)

	if err := f.ed.GenerateBackground(" "); !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Fatalf("empty mood: err = %v", err)
	}
	must(t, f.ed.GenerateBackground(catalog.Moods[2]))
	idle(t, f.ed)

	st := state(t, f.ed)
	if !strings.HasPrefix(st.Base.ID, "background:") || st.Guide != nil {
		t.Errorf("after background: base=%+v guide=%+v", st.Base, st.Guide)
	}
	if f.service.instructions[0] != service.BackgroundInstruction(catalog.Moods[2]) {
		t.Errorf("instruction = %q", f.service.instructions[0])
	}
}

func TestRestyleFailureKeepsBase(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	f.service.err = apperrors.New(apperrors.CategoryService, "fake", errors.New("quota exceeded"))

	must(t, f.ed.ChangeBackdrop("Soft Gray"))
	idle(t, f.ed)

	st := state(t, f.ed)
	if st.Base.ID != "base.png" || st.Generating {
		t.Errorf("base = %+v generating=%v", st.Base, st.Generating)
	}
	if st.Error != "backdrop change failed: quota exceeded" {
		t.Errorf("error = %q", st.Error)
	}
}

func TestRestyleOvertakenByNewBase(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	f.loader.add("other.png", solid(60, 60, red))
	f.service.gate = make(chan struct{})

	must(t, f.ed.GenerateBackground("Industrial Concrete Loft"))
	must(t, f.ed.SetBase(core.Source{URI: "other.png"}))
	close(f.service.gate)
	idle(t, f.ed)

	if st := state(t, f.ed); st.Base.ID != "other.png" || st.Generating {
		t.Errorf("base = %+v generating=%v, want the newer upload", st.Base, st.Generating)
	}
}

func TestRestyleNeedsBase(t *testing.T) {
	f := newFixture(t)
	if err := f.ed.ChangeBackdrop("Soft Gray"); !errors.Is(err, apperrors.ErrBaseUnavailable) {
		t.Errorf("err = %v, want ErrBaseUnavailable", err)
	}
	if state(t, f.ed).Generating {
		t.Error("failed start left generating set")
	}
}

func TestEnhancedUpload(t *testing.T) {
	f := newFixture(t)
	must(t, f.ed.SetBase(core.Source{URI: "base.png"}, WithEnhance()))
	idle(t, f.ed)

	st := state(t, f.ed)
	if !strings.HasPrefix(st.Base.ID, "studio:") || st.Base.State != core.AssetReady || st.Generating {
		t.Fatalf("base = %+v generating=%v", st.Base, st.Generating)
	}
	if f.service.instructions[0] != service.StudioUploadInstruction || f.service.aspects[0] != "1:1" {
		t.Errorf("request = %q %q", f.service.instructions[0], f.service.aspects[0])
	}
}

func TestEnhancedUploadFallsBackToRaw(t *testing.T) {
	f := newFixture(t)
	f.service.err = apperrors.New(apperrors.CategoryService, "fake", errors.New("busy"))

	must(t, f.ed.SetBase(core.Source{URI: "base.png"}, WithEnhance()))
	idle(t, f.ed)

	st := state(t, f.ed)
	if st.Base.ID != "base.png" || st.Base.State != core.AssetReady {
		t.Errorf("base = %+v, want the raw upload", st.Base)
	}
	if st.Error != "" || st.Generating {
		t.Errorf("error=%q generating=%v", st.Error, st.Generating)
	}
}

func TestEnhancedUploadOvertaken(t *testing.T) {
	f := newFixture(t)
	f.loader.add("other.png", solid(60, 60, red))
	f.service.gate = make(chan struct{})

	must(t, f.ed.SetBase(core.Source{URI: "base.png"}, WithEnhance()))
	generating(t, f.ed)
	if st := state(t, f.ed); st.Base.ID != "base.png" || st.Base.State != core.AssetReady {
		t.Fatalf("raw upload not shown during the studio pass: %+v", st.Base)
	}
	must(t, f.ed.SetBase(core.Source{URI: "other.png"}))
	close(f.service.gate)
	idle(t, f.ed)

	if st := state(t, f.ed); st.Base.ID != "other.png" {
		t.Errorf("base = %+v, want the newer upload", st.Base)
	}
}

func TestEnhancedUploadWithoutService(t *testing.T) {
	fl := newFakeLoader()
	fl.add("base.png", solid(10, 10, blue))
	ed, err := New(Options{Config: config.Default(), Registry: core.NewRegistry(), Loader: fl})
	if err != nil {
		t.Fatal(err)
	}
	defer ed.Close()

	must(t, ed.SetBase(core.Source{URI: "base.png"}, WithEnhance()))
	idle(t, ed)
	if st := state(t, ed); st.Base.ID != "base.png" || st.Base.State != core.AssetReady {
		t.Errorf("base = %+v", st.Base)
	}
}

// ── output ────────────────────────────────────────────────────────────────────

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.ready(t)

	res, err := f.ed.Export(context.Background(), ExportOptions{Format: "png", Multiplier: 2})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(res.Primary.Data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 200 || cfg.Height != 160 {
		t.Errorf("export size %dx%d, want 200x160", cfg.Width, cfg.Height)
	}

	cases := []struct {
		name string
		opts ExportOptions
		want error
	}{
		{"multiplier too large", ExportOptions{Multiplier: 9}, apperrors.ErrInvalidValue},
		{"bad quality", ExportOptions{Format: "jpeg", Quality: 101}, apperrors.ErrInvalidValue},
		{"unknown format", ExportOptions{Format: "tiff"}, apperrors.ErrUnsupportedFormat},
		{"no storage", ExportOptions{Store: func() *bool { b := true; return &b }()}, apperrors.ErrStorageUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.ed.Export(context.Background(), tc.opts); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOverlayPNGNeedsOverlay(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ed.OverlayPNG(context.Background()); !errors.Is(err, apperrors.ErrOverlayUnavailable) {
		t.Errorf("err = %v", err)
	}
}

// ── lifecycle ─────────────────────────────────────────────────────────────────

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	var (
		mu   sync.Mutex
		seen []uint64
	)
	cancel := f.ed.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.Revision)
		mu.Unlock()
	})
	must(t, f.ed.SetField(transform.FieldOpacity, 0.5))
	must(t, f.ed.SetField(transform.FieldOpacity, 0.5)) // no change, no publish
	cancel()
	must(t, f.ed.SetField(transform.FieldOpacity, 0.7))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Errorf("published %d states, want 1", len(seen))
	}
}

func TestPatchTransformPublishesOnce(t *testing.T) {
	f := newFixture(t)
	var (
		mu    sync.Mutex
		count int
	)
	cancel := f.ed.Subscribe(func(State) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer cancel()

	x, scale, rot := 0.3, 5.0, -90.0
	flip := true
	must(t, f.ed.PatchTransform(TransformPatch{X: &x, Scale: &scale, Rotation: &rot, FlipX: &flip}))

	st := state(t, f.ed)
	want := transform.State{Position: transform.Vec{X: 0.3, Y: 0.45}, Scale: 0.8, Rotation: 270, Opacity: 1, FlipX: true}
	if st.Transform != want {
		t.Errorf("transform = %+v, want %+v", st.Transform, want)
	}
	mu.Lock()
	if count != 1 {
		t.Errorf("published %d states, want 1", count)
	}
	mu.Unlock()

	bad := math.NaN()
	if err := f.ed.PatchTransform(TransformPatch{X: &x, Opacity: &bad}); !errors.Is(err, apperrors.ErrInvalidValue) {
		t.Errorf("NaN opacity: err = %v", err)
	}
	if got := state(t, f.ed).Transform; got != want {
		t.Errorf("rejected patch changed the transform: %+v", got)
	}
}

func TestClosed(t *testing.T) {
	f := newFixture(t)
	f.ed.Close()
	f.ed.Close()
	if _, err := f.ed.State(); !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("State after Close: err = %v", err)
	}
	if err := f.ed.SetBase(core.Source{URI: "base.png"}); !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("SetBase after Close: err = %v", err)
	}
}
