package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/Skryldev/mockup-studio/adapters/decoder"
	"github.com/Skryldev/mockup-studio/adapters/encoder"
	"github.com/Skryldev/mockup-studio/adapters/vips"
	"github.com/Skryldev/mockup-studio/core"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 92}); err != nil {
		b.Fatal(err)
	}
	return buf.Bytes()
}

func benchDecode(b *testing.B, d core.Decoder, raw []byte) {
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Decode(context.Background(), bytes.NewReader(raw)); err != nil {
			b.Fatal(err)
		}
	}
}

func benchEncode(b *testing.B, e core.Encoder, data *core.ImageData, opts core.EncodeOptions) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Encode(context.Background(), data, opts); err != nil {
			b.Fatal(err)
		}
	}
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	benchDecode(b, decoder.NewJPEG(), makeJPEG(b, 1920, 1080))
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: 85})
	defer backend.Shutdown()
	benchDecode(b, backend, makeJPEG(b, 1920, 1080))
}

// ─── Export a 2x snapshot ─────────────────────────────────────────────────────

func BenchmarkExportPNG_Stdlib(b *testing.B) {
	data := core.FromImage(gradient(1600, 1200))
	data.Format = core.FormatPNG
	benchEncode(b, encoder.NewPNG(), data, core.EncodeOptions{})
}

func BenchmarkExportPNG_Vips(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: 85})
	defer backend.Shutdown()
	data := core.FromImage(gradient(1600, 1200))
	data.Format = core.FormatPNG
	benchEncode(b, backend, data, core.EncodeOptions{})
}

func BenchmarkExportJPEG_Stdlib(b *testing.B) {
	data := core.FromImage(gradient(1600, 1200))
	data.Format = core.FormatJPEG
	benchEncode(b, encoder.NewJPEG(85), data, core.EncodeOptions{Quality: 85})
}

func BenchmarkExportJPEG_Vips(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: 85})
	defer backend.Shutdown()
	data := core.FromImage(gradient(1600, 1200))
	data.Format = core.FormatJPEG
	benchEncode(b, backend, data, core.EncodeOptions{Quality: 85})
}

// WebP export exists only on the vips backend.
func BenchmarkExportWebP_Vips(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: 80})
	defer backend.Shutdown()
	data := core.FromImage(gradient(1600, 1200))
	data.Format = core.FormatWebP
	benchEncode(b, backend, data, core.EncodeOptions{Quality: 80, StripEXIF: true})
}
