package utils

import (
	"mime"
	"net/http"
	"strings"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatWebP    = "webp"
	formatUnknown = "unknown"
)

// DetectFormat sniffs the leading bytes of data and returns the image format.
func DetectFormat(data []byte) string {
	if len(data) < 4 {
		return formatUnknown
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return formatJPEG
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return formatPNG
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 &&
		data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return formatWebP
	}
	return FormatFromContentType(http.DetectContentType(data))
}

// FormatFromContentType maps a MIME type (parameters allowed) to a format name.
func FormatFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(ct))
	}
	switch mt {
	case "image/jpeg", "image/jpg":
		return formatJPEG
	case "image/png":
		return formatPNG
	case "image/webp":
		return formatWebP
	}
	return formatUnknown
}

// ContentType is the inverse of FormatFromContentType.
func ContentType(format string) string {
	switch format {
	case formatJPEG:
		return "image/jpeg"
	case formatPNG:
		return "image/png"
	case formatWebP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// ScaleDimensions computes output (w, h) preserving aspect ratio.
// Pass 0 for either axis to calculate it from the other.
func ScaleDimensions(srcW, srcH, targetW, targetH int) (int, int) {
	if targetW == 0 && targetH == 0 {
		return srcW, srcH
	}
	if targetW == 0 {
		ratio := float64(targetH) / float64(srcH)
		return int(float64(srcW) * ratio), targetH
	}
	if targetH == 0 {
		ratio := float64(targetW) / float64(srcW)
		return targetW, int(float64(srcH) * ratio)
	}
	return targetW, targetH
}

// FitDimensions shrinks (w, h) to fit within maxW x maxH, preserving aspect
// ratio. A zero bound leaves that axis free. Sizes already inside are kept.
func FitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}
	ratio := 1.0
	if maxW > 0 && srcW > maxW {
		ratio = float64(maxW) / float64(srcW)
	}
	if maxH > 0 && srcH > maxH {
		if r := float64(maxH) / float64(srcH); r < ratio {
			ratio = r
		}
	}
	if ratio == 1 {
		return srcW, srcH
	}
	w, h := int(float64(srcW)*ratio), int(float64(srcH)*ratio)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
