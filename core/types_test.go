package core

import (
	"context"
	"image"
	"io"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"jpg", FormatJPEG},
		{"JPEG", FormatJPEG},
		{"image/png", FormatPNG},
		{"webp", FormatWebP},
		{"tiff", FormatUnknown},
		{"", FormatUnknown},
	}
	for _, tt := range tests {
		if got := ParseFormat(tt.in); got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSourceIdentity(t *testing.T) {
	if got := (Source{URI: "https://x/a.png", Name: "a"}).Identity(); got != "https://x/a.png" {
		t.Errorf("identity = %q, want the URI", got)
	}
	if got := (Source{Name: "upload:1"}).Identity(); got != "upload:1" {
		t.Errorf("identity = %q, want the name", got)
	}
}

func TestAsset(t *testing.T) {
	a := NewAsset("a", image.NewRGBA(image.Rect(0, 0, 40, 20)))
	if a.Width() != 40 || a.Height() != 20 || a.Meta.Width != 40 {
		t.Errorf("size = %dx%d", a.Width(), a.Height())
	}
	if a.Aspect() != 2 {
		t.Errorf("aspect = %v, want 2", a.Aspect())
	}
	if AssetReady.String() != "ready" || AssetState(9).String() != "absent" {
		t.Errorf("state names wrong")
	}
}

type stubCodec struct{}

func (stubCodec) Decode(context.Context, io.Reader) (*ImageData, error) { return nil, nil }
func (stubCodec) CanDecode(Format) bool                                 { return true }
func (stubCodec) Encode(context.Context, *ImageData, EncodeOptions) ([]byte, error) {
	return nil, nil
}
func (stubCodec) CanEncode(Format) bool { return true }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.EncoderFor(FormatPNG); ok {
		t.Fatal("empty registry returned an encoder")
	}
	r.RegisterEncoder(FormatPNG, stubCodec{})
	r.RegisterDecoder(FormatJPEG, stubCodec{})
	if _, ok := r.EncoderFor(FormatPNG); !ok {
		t.Error("registered encoder not found")
	}
	if _, ok := r.DecoderFor(FormatPNG); ok {
		t.Error("encoder registration leaked a decoder")
	}
	if f := r.Formats(); len(f) != 1 || f[0] != FormatPNG {
		t.Errorf("formats = %v", f)
	}
}

func TestRegistrySniff(t *testing.T) {
	r := NewRegistry()
	r.RegisterDecoder(FormatJPEG, stubCodec{})

	if _, f, ok := r.Sniff([]byte{0xFF, 0xD8, 0xFF, 0xE0}, ""); !ok || f != FormatJPEG {
		t.Errorf("jpeg magic: format=%s ok=%v", f, ok)
	}
	if _, f, ok := r.Sniff([]byte("????"), "image/jpeg"); !ok || f != FormatJPEG {
		t.Errorf("content type fallback: format=%s ok=%v", f, ok)
	}
	if _, f, ok := r.Sniff([]byte{0x89, 0x50, 0x4E, 0x47}, "image/jpeg"); ok || f != FormatPNG {
		t.Errorf("magic wins over content type: format=%s ok=%v", f, ok)
	}
}
