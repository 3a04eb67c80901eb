package core

import (
	"sort"
	"sync"

	"github.com/Skryldev/mockup-studio/utils"
)

// ── Registry ──────────────────────────────────────────────────────────────────

// DefaultRegistry maps formats to codecs. Safe for concurrent use; the
// vips backend may be registered after the stdlib codecs.
type DefaultRegistry struct {
	mu    sync.RWMutex
	codec map[Format]codecs
}

type codecs struct {
	dec Decoder
	enc Encoder
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{codec: make(map[Format]codecs)}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	c := r.codec[f]
	c.dec = d
	r.codec[f] = c
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	c := r.codec[f]
	c.enc = e
	r.codec[f] = c
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.codec[f]
	return c.dec, c.dec != nil
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.codec[f]
	return c.enc, c.enc != nil
}

// Sniff picks a decoder from the leading bytes of data, falling back to the
// declared content type when the magic bytes are not recognised. The format
// is returned even when no decoder is registered for it.
func (r *DefaultRegistry) Sniff(data []byte, contentType string) (Decoder, Format, bool) {
	f := ParseFormat(utils.DetectFormat(data))
	if f == FormatUnknown && contentType != "" {
		f = ParseFormat(utils.FormatFromContentType(contentType))
	}
	d, ok := r.DecoderFor(f)
	return d, f, ok
}

// Formats lists the formats that can be exported, sorted.
func (r *DefaultRegistry) Formats() []Format {
	r.mu.RLock()
	out := make([]Format, 0, len(r.codec))
	for f, c := range r.codec {
		if c.enc != nil {
			out = append(out, f)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
