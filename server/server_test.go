package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Skryldev/mockup-studio/adapters/decoder"
	"github.com/Skryldev/mockup-studio/adapters/encoder"
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	"github.com/Skryldev/mockup-studio/editor"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/loader"
	"github.com/Skryldev/mockup-studio/utils"
)

// wireState is the subset of the session state the tests look at.
type wireState struct {
	ID        string `json:"id"`
	Transform struct {
		Scale float64 `json:"scale"`
		FlipX bool    `json:"flipX"`
	} `json:"transform"`
	Base struct {
		State  string `json:"state"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"base"`
	Overlay struct {
		State string `json:"state"`
	} `json:"overlay"`
	CanUndo  bool   `json:"canUndo"`
	Revision uint64 `json:"revision"`
}

type harness struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.WorkerCount = 2
	if mutate != nil {
		mutate(&cfg)
	}
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.DefaultQuality))
	ld := loader.New(reg, cfg)

	sessions := NewSessions(cfg.Server.MaxSessions, func(id string) (*editor.Editor, error) {
		return editor.New(editor.Options{Config: cfg, Registry: reg, Loader: ld, ID: id})
	})
	srv := New(Options{Config: cfg.Server, Registry: reg, Sessions: sessions})
	h := &harness{t: t, srv: srv, ts: httptest.NewServer(srv.Handler())}
	t.Cleanup(func() {
		h.ts.Close()
		srv.Close()
	})
	return h
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func (h *harness) do(method, path, contentType string, body []byte) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, bytes.NewReader(body))
	if err != nil {
		h.t.Fatalf("request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.ts.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) json(method, path string, v any) *http.Response {
	h.t.Helper()
	var body []byte
	if v != nil {
		var err error
		if body, err = json.Marshal(v); err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
	}
	return h.do(method, path, "application/json", body)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, strings.TrimSpace(buf.String()))
	}
}

// session creates a session on a 100x80 data URI base and waits for it.
func (h *harness) session() string {
	h.t.Helper()
	uri := utils.EncodeDataURI("image/png", pngBytes(h.t, 100, 80, color.NRGBA{0, 0, 255, 255}))
	resp := h.json(http.MethodPost, "/api/sessions", ImageRequest{URI: uri})
	expectStatus(h.t, resp, http.StatusCreated)
	st := decodeBody[wireState](h.t, resp)
	h.idle(st.ID)
	return st.ID
}

func (h *harness) idle(id string) {
	h.t.Helper()
	ed, ok := h.srv.Sessions().Get(id)
	if !ok {
		h.t.Fatalf("session %s missing", id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ed.Idle(ctx); err != nil {
		h.t.Fatalf("idle: %v", err)
	}
}

func (h *harness) state(id string) wireState {
	h.t.Helper()
	resp := h.json(http.MethodGet, "/api/sessions/"+id+"/", nil)
	expectStatus(h.t, resp, http.StatusOK)
	return decodeBody[wireState](h.t, resp)
}

func TestCatalog(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.json(http.MethodGet, "/api/catalog", nil)
	expectStatus(t, resp, http.StatusOK)
	cat := decodeBody[CatalogResponse](t, resp)
	if len(cat.Mockups) == 0 || len(cat.GarmentTypes) == 0 || len(cat.Colors) == 0 || len(cat.Moods) == 0 {
		t.Errorf("catalog incomplete: %+v", cat)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	st := h.state(id)
	if st.Base.State != "ready" || st.Base.Width != 100 || st.Base.Height != 80 {
		t.Fatalf("base = %+v, want ready 100x80", st.Base)
	}

	resp := h.do(http.MethodGet, "/api/sessions/"+id+"/preview.png", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 80 {
		t.Errorf("preview = %v, want 100x80", b)
	}

	resp = h.json(http.MethodDelete, "/api/sessions/"+id+"/", nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = h.json(http.MethodGet, "/api/sessions/"+id+"/", nil)
	expectStatus(t, resp, http.StatusNotFound)
	if body := decodeBody[errorResponse](t, resp); body.Error != apperrors.ErrNotFound.Error() {
		t.Errorf("error = %q", body.Error)
	}
}

func TestTooManySessions(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Server.MaxSessions = 1 })
	h.session()
	resp := h.json(http.MethodPost, "/api/sessions", ImageRequest{URI: "data:image/png;base64,AAAA"})
	expectStatus(t, resp, http.StatusServiceUnavailable)
}

func TestTransformPatch(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	before := h.state(id).Revision
	flip := true
	scale := 5.0
	x, rot := 0.25, 90.0
	resp := h.json(http.MethodPatch, "/api/sessions/"+id+"/transform",
		TransformPatch{X: &x, Scale: &scale, Rotation: &rot, FlipX: &flip})
	expectStatus(t, resp, http.StatusOK)
	st := decodeBody[wireState](t, resp)
	if st.Transform.Scale != config.Default().Transform.MaxScale || !st.Transform.FlipX {
		t.Errorf("transform = %+v, want clamped scale and flip", st.Transform)
	}
	if st.Revision != before+1 {
		t.Errorf("revision = %d, want %d after one patch", st.Revision, before+1)
	}

	resp = h.json(http.MethodPost, "/api/sessions/"+id+"/flip", nil)
	expectStatus(t, resp, http.StatusOK)
	if st := decodeBody[wireState](t, resp); st.Transform.FlipX {
		t.Error("flip did not toggle")
	}

	resp = h.do(http.MethodPatch, "/api/sessions/"+id+"/transform", "application/json", []byte("{"))
	expectStatus(t, resp, http.StatusBadRequest)
}

func multipartBody(t *testing.T, field, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestOverlayUpload(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	body, ct := multipartBody(t, "image", "design.png", pngBytes(t, 32, 18, color.NRGBA{255, 0, 0, 255}))
	resp := h.do(http.MethodPut, "/api/sessions/"+id+"/overlay", ct, body)
	expectStatus(t, resp, http.StatusAccepted)
	h.idle(id)

	if st := h.state(id); st.Overlay.State != "ready" {
		t.Fatalf("overlay = %q, want ready", st.Overlay.State)
	}

	resp = h.do(http.MethodGet, "/api/sessions/"+id+"/overlay.png", "", nil)
	expectStatus(t, resp, http.StatusOK)
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode overlay: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 18 {
		t.Errorf("overlay = %v, want 32x18", b)
	}

	resp = h.json(http.MethodDelete, "/api/sessions/"+id+"/overlay", nil)
	expectStatus(t, resp, http.StatusOK)
	resp = h.do(http.MethodGet, "/api/sessions/"+id+"/overlay.png", "", nil)
	expectStatus(t, resp, http.StatusConflict)
}

func TestUploadErrors(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Server.MaxUploadBytes = 512 })
	id := h.session()

	big, ct := multipartBody(t, "image", "big.bin", bytes.Repeat([]byte{1}, 4096))
	wrongField, ct2 := multipartBody(t, "file", "x.png", []byte{1})

	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        int
	}{
		{"too large", ct, big, http.StatusRequestEntityTooLarge},
		{"missing field", ct2, wrongField, http.StatusBadRequest},
		{"empty json", "application/json", []byte(`{}`), http.StatusBadRequest},
		{"mockup as overlay", "application/json", []byte(`{"mockup":"short-black"}`), http.StatusBadRequest},
		{"enhanced overlay", "application/json", []byte(`{"uri":"data:image/png;base64,AAAA","enhance":true}`), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(http.MethodPut, "/api/sessions/"+id+"/overlay", tt.contentType, tt.body)
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	resp := h.json(http.MethodPost, "/api/sessions/"+id+"/export", editor.ExportOptions{Multiplier: 2, Format: "png"})
	expectStatus(t, resp, http.StatusOK)
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "mockup-"+id+".png") {
		t.Errorf("content disposition = %q", cd)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 160 {
		t.Errorf("export = %v, want 200x160", b)
	}

	resp = h.json(http.MethodPost, "/api/sessions/"+id+"/export", editor.ExportOptions{Multiplier: 9})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestEditConflicts(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	resp := h.json(http.MethodPost, "/api/sessions/"+id+"/undo", nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = h.json(http.MethodPost, "/api/sessions/"+id+"/generate", editor.GenerateRequest{Prompt: "  "})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = h.json(http.MethodPost, "/api/sessions/"+id+"/dock/pointer", map[string]any{"kind": "down", "pointer": 1})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestPointerAndView(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	resp := h.json(http.MethodPut, "/api/sessions/"+id+"/view", editor.View{})
	expectStatus(t, resp, http.StatusOK)

	// No design yet, so the canvas ignores the press.
	resp = h.json(http.MethodPost, "/api/sessions/"+id+"/pointer", map[string]any{"kind": "down", "pointer": 1, "x": 10, "y": 10})
	expectStatus(t, resp, http.StatusOK)
	if pr := decodeBody[struct {
		Changed bool `json:"changed"`
	}](t, resp); pr.Changed {
		t.Error("pointer without design reported a change")
	}

	resp = h.json(http.MethodPost, "/api/sessions/"+id+"/pointer", map[string]any{"kind": "sideways"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrNotFound), http.StatusNotFound},
		{apperrors.ErrClosed, http.StatusNotFound},
		{ErrTooManySessions, http.StatusServiceUnavailable},
		{apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrGenerating), http.StatusConflict},
		{apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrNoBackup), http.StatusConflict},
		{apperrors.New(apperrors.CategoryRender, "op", apperrors.ErrBaseUnavailable), http.StatusConflict},
		{apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrImageTooLarge), http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{apperrors.New(apperrors.CategoryEncode, "op", apperrors.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{apperrors.New(apperrors.CategoryConfig, "op", apperrors.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{apperrors.New(apperrors.CategoryGesture, "op", apperrors.ErrInvalidDimensions), http.StatusBadRequest},
		{apperrors.New(apperrors.CategoryService, "op", errors.New("upstream")), http.StatusBadGateway},
		{apperrors.Transient("op", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractAck(t *testing.T) {
	var got []any
	ack := func(args []any, _ error) { got = args }

	fn, args := extractAck([]any{"id", ack})
	if fn == nil || len(args) != 1 {
		t.Fatalf("ack not split: %v %v", fn, args)
	}
	respond(fn, nil, apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrNotFound))
	reply, _ := got[0].(map[string]any)
	if reply["status"] != "error" || reply["error"] != apperrors.ErrNotFound.Error() {
		t.Errorf("reply = %v", reply)
	}

	if fn, args := extractAck([]any{"id"}); fn != nil || len(args) != 1 {
		t.Errorf("plain args misread as ack")
	}
}

func TestSceneRoutes(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session()

	tests := []struct {
		name string
		path string
		body SceneRequest
		want int
	}{
		{"unknown colour", "/backdrop", SceneRequest{Color: "Hot Pink"}, http.StatusBadRequest},
		{"blank mood", "/background", SceneRequest{Mood: "  "}, http.StatusBadRequest},
		{"no service", "/backdrop", SceneRequest{Color: "Warm Sand"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.json(http.MethodPost, "/api/sessions/"+id+tt.path, tt.body)
			expectStatus(t, resp, tt.want)
		})
	}

	resp := h.do(http.MethodPost, "/api/sessions/"+id+"/background", "application/json", []byte("{"))
	expectStatus(t, resp, http.StatusBadRequest)
}
