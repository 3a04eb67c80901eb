// Package mockupstudio assembles mockup editing sessions from their parts:
// codecs, the asset loader, the worker pool, the image-edit service and the
// export storage.
//
// A Studio is shared by every session of a process:
//
//	st, err := mockupstudio.New(ctx, mockupstudio.DefaultConfig())
//	if err != nil { ... }
//	defer st.Close()
//	ed, err := st.NewEditor("")
//	ed.UseMockup("short-black")
package mockupstudio

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Skryldev/mockup-studio/adapters/decoder"
	"github.com/Skryldev/mockup-studio/adapters/encoder"
	"github.com/Skryldev/mockup-studio/adapters/storage"
	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	"github.com/Skryldev/mockup-studio/editor"
	"github.com/Skryldev/mockup-studio/loader"
	"github.com/Skryldev/mockup-studio/service"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// NewRegistry returns a registry with the pure-Go codecs registered. WebP
// can be decoded but only the libvips backend encodes it.
func NewRegistry(cfg config.Config) *core.DefaultRegistry {
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	return reg
}

// Option customises a Studio.
type Option func(*Studio)

// WithLogger attaches a structured logger to every component.
func WithLogger(l core.Logger) Option { return func(s *Studio) { s.logger = l } }

// WithService overrides the image-edit service built from the configuration.
func WithService(ed service.ImageEditor, gen service.Generator) Option {
	return func(s *Studio) { s.imageEditor, s.generator = ed, gen }
}

// WithStorage overrides the export storage built from the configuration.
func WithStorage(a core.StorageAdapter) Option { return func(s *Studio) { s.storage = a } }

// WithHook registers an export pipeline observer.
func WithHook(h core.Hook) Option { return func(s *Studio) { s.hooks = append(s.hooks, h) } }

// WithRegistry replaces the codec registry, e.g. after registering libvips.
func WithRegistry(r core.Registry) Option { return func(s *Studio) { s.reg = r } }

// Studio holds what sessions share.
type Studio struct {
	cfg         config.Config
	reg         core.Registry
	loader      *loader.Loader
	pool        *core.Pool
	imageEditor service.ImageEditor
	generator   service.Generator
	storage     core.StorageAdapter
	hooks       []core.Hook
	logger      core.Logger
}

// New validates cfg and wires a Studio. Storage and the Gemini client are
// built from cfg unless an Option supplies them; without an API key edits
// report that no service is configured.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Studio, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	s := &Studio{cfg: cfg, logger: core.NopLogger{}}
	for _, o := range opts {
		o(s)
	}
	if s.reg == nil {
		s.reg = NewRegistry(cfg)
	}

	if s.storage == nil {
		st, err := OpenStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.storage = st
	}
	if s.imageEditor == nil && s.generator == nil && cfg.Service.APIKey != "" {
		g := service.NewGemini(cfg.Service, s.reg)
		g.SetLogger(s.logger)
		s.imageEditor, s.generator = g, g
	}

	s.loader = loader.New(s.reg, cfg)
	s.loader.SetLogger(s.logger)
	s.pool = core.NewPool(cfg)
	s.pool.SetLogger(s.logger)
	s.pool.Start()
	return s, nil
}

// OpenStorage builds the storage adapter selected by cfg.Storage. It returns
// nil for StorageNone.
func OpenStorage(ctx context.Context, cfg config.Config) (core.StorageAdapter, error) {
	switch cfg.Storage {
	case config.StorageLocal:
		return storage.NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
	case config.StorageS3:
		client, err := storage.NewAWSClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, cfg.S3.Bucket)
	case config.StorageNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("mockupstudio: unknown storage %q", cfg.Storage)
}

// NewEditor opens a session. An empty id gets a fresh one.
func (s *Studio) NewEditor(id string) (*editor.Editor, error) {
	return editor.New(editor.Options{
		Config:    s.cfg,
		Registry:  s.reg,
		Loader:    s.loader,
		Editor:    s.imageEditor,
		Generator: s.generator,
		Storage:   s.storage,
		Hooks:     s.hooks,
		Logger:    s.logger,
		Pool:      s.pool,
		ID:        id,
	})
}

// Config returns the configuration the Studio was built with.
func (s *Studio) Config() config.Config { return s.cfg }

// Registry returns the codec registry.
func (s *Studio) Registry() core.Registry { return s.reg }

// Storage returns the export storage, or nil.
func (s *Studio) Storage() core.StorageAdapter { return s.storage }

// HasService reports whether AI edits are available.
func (s *Studio) HasService() bool { return s.imageEditor != nil }

// Stats returns the worker pool counters.
func (s *Studio) Stats() (processed, errors int64) {
	return s.pool.ProcessedCount(), s.pool.ErrorCount()
}

// Close stops the worker pool. Close sessions first: work still queued is
// dropped.
func (s *Studio) Close() { s.pool.Stop() }

// ── Source constructors ────────────────────────────────────────────────────────

// FromURI creates a Source from a URL, data URI or file path.
func FromURI(uri string) core.Source { return core.Source{URI: uri, Size: -1} }

// FromReader creates a Source from an io.Reader. name identifies the upload
// so a later load can supersede it.
func FromReader(r io.Reader, name string) core.Source {
	return core.Source{Reader: r, Name: name, Size: -1}
}

// FromReaderWithMeta creates a Source with known size and content-type hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}
