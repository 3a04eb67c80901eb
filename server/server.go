// Package server exposes mockup sessions over HTTP and socket.io.
//
// The REST surface under /api drives every editor operation and serves
// rendered frames. A socket.io connection can attach to a session to stream
// pointer input and receive a "state" event whenever the session changes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	"github.com/Skryldev/mockup-studio/editor"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// Options wires a Server.
type Options struct {
	Config   config.ServerConfig
	Registry core.Registry // encoders for preview frames
	Sessions *Sessions
	Logger   core.Logger
}

// Server routes HTTP and socket.io traffic to sessions.
type Server struct {
	cfg      config.ServerConfig
	reg      core.Registry
	sessions *Sessions
	logger   core.Logger
	io       *socketio.Server
	router   chi.Router
}

// New builds the router. Nothing listens until Handler is mounted.
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		reg:      opts.Registry,
		sessions: opts.Sessions,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = core.NopLogger{}
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = config.Default().Server.MaxUploadBytes
	}
	s.io = s.setupSocketIO()
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions returns the session registry.
func (s *Server) Sessions() *Sessions { return s.sessions }

// Close shuts down socket.io and every session.
func (s *Server) Close() {
	done := make(chan struct{})
	s.io.Close(func(err error) {
		if err != nil {
			s.logger.Warn("server.socketio.close", "error", err)
		}
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	s.sessions.CloseAll()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Storage-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/socket.io/", s.io.ServeHandler(nil))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Get("/catalog", s.handleCatalog)
		r.Post("/sessions", s.handleCreate)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/", s.handleState)
			r.Delete("/", s.handleDelete)

			r.Put("/base", s.handleImage(false))
			r.Put("/overlay", s.handleImage(true))
			r.Delete("/overlay", s.handleClearOverlay)

			r.Patch("/transform", s.handleTransform)
			r.Put("/transform", s.handleReplaceTransform)
			r.Post("/flip", s.handleFlip)
			r.Put("/view", s.handleView)

			r.Post("/pointer", s.handlePointer(pointerCanvas))
			r.Post("/panel/pointer", s.handlePointer(pointerPanel))
			r.Post("/dock/pointer", s.handlePointer(pointerDock))

			r.Get("/preview.png", s.handlePreview)
			r.Get("/overlay.png", s.handleOverlayPNG)
			r.Post("/export", s.handleExport)

			r.Post("/generate", s.handleGenerate)
			r.Post("/remove-background", s.handleEdit((*editor.Editor).RemoveBackground))
			r.Post("/blend", s.handleEdit((*editor.Editor).Blend))
			r.Post("/backdrop", s.handleBackdrop)
			r.Post("/background", s.handleBackground)
			r.Post("/undo", s.handleUndo)
			r.Delete("/error", s.handleClearError)
		})
	})
	return r
}

type ctxKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ed, ok := s.sessions.Get(id)
		if !ok {
			s.fail(w, r, apperrors.New(apperrors.CategoryInput, "server.session", apperrors.ErrNotFound))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ed)))
	})
}

func sessionFrom(r *http.Request) *editor.Editor {
	ed, _ := r.Context().Value(ctxKey{}).(*editor.Editor)
	return ed
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("server.request.failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	resp := errorResponse{Error: apperrors.Message(err)}
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		resp.Category = string(pe.Category)
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, apperrors.ErrClosed), errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrImageTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrGenerating),
		errors.Is(err, apperrors.ErrNoBackup),
		errors.Is(err, apperrors.ErrBaseUnavailable),
		errors.Is(err, apperrors.ErrOverlayUnavailable):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, apperrors.ErrWorkerPoolFull),
		errors.Is(err, apperrors.ErrStorageUnavailable),
		apperrors.IsCategory(err, apperrors.CategoryStorage):
		return http.StatusServiceUnavailable
	case apperrors.IsCategory(err, apperrors.CategoryInput), apperrors.IsCategory(err, apperrors.CategoryGesture):
		return http.StatusBadRequest
	case apperrors.IsCategory(err, apperrors.CategoryService), apperrors.IsRetryable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
