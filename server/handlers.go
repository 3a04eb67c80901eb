package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"

	"github.com/Skryldev/mockup-studio/catalog"
	"github.com/Skryldev/mockup-studio/core"
	"github.com/Skryldev/mockup-studio/editor"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
	"github.com/Skryldev/mockup-studio/pipeline"
	"github.com/Skryldev/mockup-studio/transform"
	"github.com/Skryldev/mockup-studio/utils"
)

// CatalogResponse lists the built-in choices offered to clients.
type CatalogResponse struct {
	Mockups      []catalog.Mockup `json:"mockups"`
	GarmentTypes []string         `json:"garmentTypes"`
	Colors       []catalog.Swatch `json:"colors"`
	Backgrounds  []catalog.Swatch `json:"backgrounds"`
	Moods        []string         `json:"moods"`
}

// ImageRequest selects an image by URI or catalog mockup id. Enhance asks
// for the studio pass on a new base.
type ImageRequest struct {
	URI     string `json:"uri,omitempty"`
	Mockup  string `json:"mockup,omitempty"`
	Enhance bool   `json:"enhance,omitempty"`
}

// TransformPatch sets the fields that are present.
type TransformPatch = editor.TransformPatch

// SceneRequest names a backdrop colour or a background mood.
type SceneRequest struct {
	Color string `json:"color,omitempty"`
	Mood  string `json:"mood,omitempty"`
}

// PointerResponse reports whether a pointer event changed anything.
type PointerResponse struct {
	Changed bool         `json:"changed"`
	State   editor.State `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, CatalogResponse{
		Mockups:      catalog.Mockups(),
		GarmentTypes: catalog.GarmentTypes,
		Colors:       catalog.Colors,
		Backgrounds:  catalog.Backgrounds,
		Moods:        catalog.Moods,
	})
}

// handleCreate opens a session on the default catalog mockup unless the
// body asks for another image.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if err := decodeOptional(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkURI(req.URI); err != nil {
		s.fail(w, r, err)
		return
	}
	ed, err := s.sessions.Create()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	switch {
	case req.URI != "":
		err = ed.SetBase(core.Source{URI: req.URI, Size: -1})
	case req.Mockup != "":
		err = ed.UseMockup(req.Mockup)
	default:
		err = ed.UseMockup(catalog.Default().ID)
	}
	if err != nil {
		s.sessions.Delete(ed.ID())
		s.fail(w, r, err)
		return
	}
	s.logger.Info("server.session.created", "session", ed.ID(), "open", s.sessions.Len())
	s.respondState(w, r, ed, http.StatusCreated)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, r, sessionFrom(r), http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	s.sessions.Delete(ed.ID())
	_ = s.io.To(room(ed.ID())).Emit("closed", ed.ID())
	s.logger.Info("server.session.deleted", "session", ed.ID())
	w.WriteHeader(http.StatusNoContent)
}

// handleImage accepts a multipart upload in the "image" field or a JSON
// ImageRequest.
func (s *Server) handleImage(overlay bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed := sessionFrom(r)
		src, req, err := s.imageSource(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		switch {
		case overlay && (req.Mockup != "" || req.Enhance):
			err = apperrors.New(apperrors.CategoryInput, "server.overlay",
				fmt.Errorf("mockups and enhancement apply to the base only: %w", apperrors.ErrInvalidValue))
		case req.Mockup != "":
			err = ed.UseMockup(req.Mockup)
		case overlay:
			err = ed.SetOverlay(src)
		case req.Enhance:
			err = ed.SetBase(src, editor.WithEnhance())
		default:
			err = ed.SetBase(src)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondState(w, r, ed, http.StatusAccepted)
	}
}

func (s *Server) imageSource(w http.ResponseWriter, r *http.Request) (core.Source, ImageRequest, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var req ImageRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			return core.Source{}, req, badRequest("server.image", err)
		}
		if req.URI == "" && req.Mockup == "" {
			return core.Source{}, req, apperrors.New(apperrors.CategoryInput, "server.image", apperrors.ErrEmptyInput)
		}
		if err := checkURI(req.URI); err != nil {
			return core.Source{}, req, err
		}
		return core.Source{URI: req.URI, Size: -1}, req, nil
	}

	if r.ContentLength > s.cfg.MaxUploadBytes {
		return core.Source{}, ImageRequest{}, apperrors.New(apperrors.CategoryInput, "server.upload", apperrors.ErrImageTooLarge)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, hdr, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return core.Source{}, ImageRequest{}, apperrors.New(apperrors.CategoryInput, "server.upload", apperrors.ErrImageTooLarge)
		}
		return core.Source{}, ImageRequest{}, badRequest("server.upload", err)
	}
	defer file.Close()

	var req ImageRequest
	if v := r.FormValue("enhance"); v != "" {
		if req.Enhance, err = strconv.ParseBool(v); err != nil {
			return core.Source{}, req, badRequest("server.upload", err)
		}
	}

	// The load finishes after the request, so the body is copied out here.
	data, err := utils.ReadAll(r.Context(), file, 32*1024, s.cfg.MaxUploadBytes)
	if errors.Is(err, utils.ErrLimitExceeded) {
		return core.Source{}, ImageRequest{}, apperrors.New(apperrors.CategoryInput, "server.upload", apperrors.ErrImageTooLarge)
	}
	if err != nil {
		return core.Source{}, ImageRequest{}, badRequest("server.upload", err)
	}
	if len(data) == 0 {
		return core.Source{}, ImageRequest{}, apperrors.New(apperrors.CategoryInput, "server.upload", apperrors.ErrEmptyInput)
	}
	return core.Source{
		Reader:      bytes.NewReader(data),
		Name:        "upload:" + ulid.Make().String() + "/" + hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        int64(len(data)),
	}, req, nil
}

func (s *Server) handleBackdrop(w http.ResponseWriter, r *http.Request) {
	s.handleScene(w, r, func(ed *editor.Editor, req SceneRequest) error { return ed.ChangeBackdrop(req.Color) })
}

func (s *Server) handleBackground(w http.ResponseWriter, r *http.Request) {
	s.handleScene(w, r, func(ed *editor.Editor, req SceneRequest) error { return ed.GenerateBackground(req.Mood) })
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request, start func(*editor.Editor, SceneRequest) error) {
	ed := sessionFrom(r)
	var req SceneRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, badRequest("server.scene", err))
		return
	}
	if err := start(ed, req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusAccepted)
}

func (s *Server) handleClearOverlay(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	if err := ed.ClearOverlay(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	var p TransformPatch
	if err := render.DecodeJSON(r.Body, &p); err != nil {
		s.fail(w, r, badRequest("server.transform", err))
		return
	}
	if err := ed.PatchTransform(p); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

func (s *Server) handleReplaceTransform(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	var st transform.State
	if err := render.DecodeJSON(r.Body, &st); err != nil {
		s.fail(w, r, badRequest("server.transform", err))
		return
	}
	if err := ed.SetTransform(st); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	if err := ed.ToggleFlip(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	var v editor.View
	if err := render.DecodeJSON(r.Body, &v); err != nil {
		s.fail(w, r, badRequest("server.view", err))
		return
	}
	if err := ed.SetView(v); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

type pointerTarget int

const (
	pointerCanvas pointerTarget = iota
	pointerPanel
	pointerDock
)

func (t pointerTarget) dispatch(ed *editor.Editor, ev gesture.Event) (bool, error) {
	switch t {
	case pointerPanel:
		return ed.PanelPointer(ev)
	case pointerDock:
		return ed.DockPointer(ev)
	default:
		return ed.Pointer(ev)
	}
}

func (s *Server) handlePointer(target pointerTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed := sessionFrom(r)
		var ev gesture.Event
		if err := render.DecodeJSON(r.Body, &ev); err != nil {
			s.fail(w, r, badRequest("server.pointer", err))
			return
		}
		changed, err := target.dispatch(ed, ev)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		st, err := ed.State()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		render.JSON(w, r, PointerResponse{Changed: changed, State: st})
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	img, err := ed.Render()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	enc, ok := s.reg.EncoderFor(core.FormatPNG)
	if !ok {
		s.fail(w, r, apperrors.New(apperrors.CategoryConfig, "server.preview", apperrors.ErrUnsupportedFormat))
		return
	}
	data := core.FromImage(img)
	data.Format = core.FormatPNG
	out, err := enc.Encode(r.Context(), data, core.EncodeOptions{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeImage(w, "image/png", "", out)
}

func (s *Server) handleOverlayPNG(w http.ResponseWriter, r *http.Request) {
	out, err := sessionFrom(r).OverlayPNG(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeImage(w, "image/png", "", out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	var opts editor.ExportOptions
	if err := decodeOptional(r, &opts); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := ed.Export(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Key != nil {
		w.Header().Set("X-Storage-Key", res.Key.Path)
	}
	name := fmt.Sprintf("mockup-%s.%s", ed.ID(), pipeline.Extension(res.Primary.Format))
	writeImage(w, utils.ContentType(string(res.Primary.Format)), name, res.Primary.Data)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	var req editor.GenerateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, badRequest("server.generate", err))
		return
	}
	if err := ed.Generate(req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusAccepted)
}

func (s *Server) handleEdit(start func(*editor.Editor) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed := sessionFrom(r)
		if err := start(ed); err != nil {
			s.fail(w, r, err)
			return
		}
		s.respondState(w, r, ed, http.StatusAccepted)
	}
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	if err := ed.Undo(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	ed := sessionFrom(r)
	if err := ed.ClearError(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondState(w, r, ed, http.StatusOK)
}

func (s *Server) respondState(w http.ResponseWriter, r *http.Request, ed *editor.Editor, status int) {
	st, err := ed.State()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, st)
}

func writeImage(w http.ResponseWriter, contentType, filename string, data []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-store")
	if filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("server.decode", err)
	}
	return nil
}

// checkURI keeps remote clients to web and inline images. Filesystem paths
// are only honoured for in-process callers.
func checkURI(uri string) error {
	if uri == "" || utils.IsDataURI(uri) {
		return nil
	}
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.New(apperrors.CategoryInput, "server.uri",
			fmt.Errorf("only http(s) and data URIs are accepted: %w", apperrors.ErrInvalidValue))
	}
	return nil
}

func badRequest(op string, err error) error {
	return apperrors.New(apperrors.CategoryInput, op, fmt.Errorf("%w: %v", apperrors.ErrInvalidValue, err))
}
