// Package loader turns image sources into decoded assets. A source may be a
// data URI, an http(s) URL, a file:// URL, a filesystem path or a reader.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/utils"
)

// Loader fetches and fully decodes images. It holds no per-request state and
// is safe for concurrent use.
type Loader struct {
	reg       core.Registry
	client    *http.Client
	maxBytes  int64
	chunkSize int
	logger    core.Logger
}

// New returns a Loader that decodes through reg.
func New(reg core.Registry, cfg config.Config) *Loader {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		reg:       reg,
		client:    &http.Client{Timeout: timeout},
		maxBytes:  cfg.MaxImageBytes,
		chunkSize: cfg.ChunkSize,
		logger:    core.NopLogger{},
	}
}

// SetLogger attaches a structured logger.
func (l *Loader) SetLogger(lg core.Logger) {
	if lg != nil {
		l.logger = lg
	}
}

// SetHTTPClient replaces the client used for http(s) sources.
func (l *Loader) SetHTTPClient(c *http.Client) {
	if c != nil {
		l.client = c
	}
}

// Load reads src to completion and decodes it. The returned asset carries
// src.Identity() as its ID.
func (l *Loader) Load(ctx context.Context, src core.Source) (*core.Asset, error) {
	start := time.Now()
	rc, hint, err := l.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := utils.ReadAll(ctx, rc, l.chunkSize, l.maxBytes)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return nil, apperrors.New(apperrors.CategoryLoad, "loader.read", apperrors.ErrImageTooLarge)
		}
		return nil, apperrors.Wrap(apperrors.CategoryLoad, "loader.read", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryLoad, "loader.read", apperrors.ErrEmptyInput)
	}

	img, err := l.decode(ctx, data, hint)
	if err != nil {
		return nil, err
	}

	asset := &core.Asset{ID: src.Identity(), Image: img.Image, Meta: img.Meta}
	l.logger.Debug("loader.done",
		"source", shorten(src.Identity()),
		"format", img.Meta.Format,
		"width", asset.Width(),
		"height", asset.Height(),
		"duration", time.Since(start),
	)
	return asset, nil
}

// LoadAsync runs Load on pool and reports the outcome through done, which is
// called exactly once from a worker goroutine. If Submit fails done is not
// called.
func (l *Loader) LoadAsync(ctx context.Context, pool *core.Pool, src core.Source, done func(*core.Asset, error)) error {
	return pool.Submit(core.Job{
		ID:  "load:" + shorten(src.Identity()),
		Ctx: ctx,
		Run: func(ctx context.Context) (err error) {
			var asset *core.Asset
			defer func() {
				if r := recover(); r != nil {
					asset, err = nil, apperrors.New(apperrors.CategoryLoad, "loader.load", fmt.Errorf("panic: %v", r))
				}
				done(asset, err)
			}()
			asset, err = l.Load(ctx, src)
			return err
		},
	})
}

func (l *Loader) decode(ctx context.Context, data []byte, hint string) (*core.ImageData, error) {
	dec, format, ok := l.reg.Sniff(data, hint)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryLoad, "loader.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	img, err := dec.Decode(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryLoad, "loader.decode", err)
	}
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryLoad, "loader.decode", apperrors.ErrEmptyInput)
	}
	return img, nil
}

// open resolves src to a byte stream and an optional content-type hint.
func (l *Loader) open(ctx context.Context, src core.Source) (io.ReadCloser, string, error) {
	if src.Reader != nil {
		return io.NopCloser(src.Reader), src.ContentType, nil
	}
	uri := strings.TrimSpace(src.URI)
	switch {
	case uri == "":
		return nil, "", apperrors.New(apperrors.CategoryInput, "loader.open", apperrors.ErrEmptyInput)

	case utils.IsDataURI(uri):
		mt, payload, err := utils.ParseDataURI(uri)
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.CategoryInput, "loader.datauri", err)
		}
		return io.NopCloser(bytes.NewReader(payload)), mt, nil

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return l.fetch(ctx, uri)

	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.CategoryInput, "loader.open", err)
		}
		return openFile(u.Path)

	default:
		return openFile(uri)
	}
}

func (l *Loader) fetch(ctx context.Context, uri string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CategoryInput, "loader.fetch", err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg, image/webp, image/*")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CategoryLoad, "loader.fetch", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", apperrors.New(apperrors.CategoryLoad, "loader.fetch",
			fmt.Errorf("GET %s: %s", shorten(uri), resp.Status))
	}
	if l.maxBytes > 0 && resp.ContentLength > l.maxBytes {
		resp.Body.Close()
		return nil, "", apperrors.New(apperrors.CategoryLoad, "loader.fetch", apperrors.ErrImageTooLarge)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func openFile(path string) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperrors.New(apperrors.CategoryLoad, "loader.open",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, path))
		}
		return nil, "", apperrors.Wrap(apperrors.CategoryLoad, "loader.open", err)
	}
	return f, "", nil
}

// shorten keeps data URIs out of logs.
func shorten(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:61] + "..."
}
