// Package service defines the external image-edit collaborator. Calls are
// slow, fallible and single-shot; callers own recovery.
package service

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
)

// ImageEditor rewrites an image according to a natural-language instruction.
// aspect is a ratio string such as "1:1" or "4:5".
type ImageEditor interface {
	Edit(ctx context.Context, img image.Image, instruction, aspect string) (image.Image, error)
}

// Generator produces a new image from a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, aspect string, size ImageSize) (image.Image, error)
}

// EditFunc adapts a function to ImageEditor.
type EditFunc func(ctx context.Context, img image.Image, instruction, aspect string) (image.Image, error)

func (f EditFunc) Edit(ctx context.Context, img image.Image, instruction, aspect string) (image.Image, error) {
	return f(ctx, img, instruction, aspect)
}

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, prompt, aspect string, size ImageSize) (image.Image, error)

func (f GenerateFunc) Generate(ctx context.Context, prompt, aspect string, size ImageSize) (image.Image, error) {
	return f(ctx, prompt, aspect, size)
}

// ImageSize is the output resolution class of a generated image.
type ImageSize string

const (
	Size1K ImageSize = "1K"
	Size2K ImageSize = "2K"
	Size4K ImageSize = "4K"
)

// ParseImageSize accepts "1K", "2k", ... and falls back to 1K.
func ParseImageSize(s string) ImageSize {
	switch ImageSize(strings.ToUpper(strings.TrimSpace(s))) {
	case Size2K:
		return Size2K
	case Size4K:
		return Size4K
	}
	return Size1K
}

// Instructions sent with edit requests.
const (
	RemoveBackgroundInstruction = "STRICT: Remove background. Output the design on PURE WHITE #FFFFFF background. Clean edges."

	FabricBlendInstruction = "STRICT FABRIC BLEND: Precisely integrate the graphic onto the fabric textile. " +
		"The graphic must follow wrinkles, shadows, and textile highlights perfectly. " +
		"DO NOT change the garment color, garment shape, or background. " +
		"Only affect the graphic layer to make it look printed on the shirt. " +
		"The output must have exactly the same garment and background as the input image."

	EnhanceInstruction = "ULTRA HD ENHANCEMENT: Sharpen fabric textures and design edges. Professional studio 4K quality."

	StudioUploadInstruction = "Enhance product photo on studio background. 1:1."
)

// BackdropInstruction asks for the area around the garment to become a flat
// colour.
func BackdropInstruction(colour string) string {
	return fmt.Sprintf("Replace background outside the garment with SOLID FLAT %s color. Keep garment original.",
		strings.TrimSpace(colour))
}

// BackgroundInstruction asks for a commercial scene in the given mood behind
// an unchanged product.
func BackgroundInstruction(mood string) string {
	return "DEEP PRODUCT ANALYSIS & ADVERTISING BACKGROUND GENERATION:\n" +
		"1. FIRST, analyze the product in the image: item category, material texture, lighting direction and core color palette.\n" +
		"2. SECOND, based on that analysis, create a contextual high-end commercial background for a " + strings.TrimSpace(mood) + " mood.\n" +
		"3. The new background MUST match the product's perspective, scale, and lighting direction perfectly.\n" +
		"4. Preserve 100% of the product's original appearance. Do not alter its shape or color.\n" +
		"5. Place the product naturally in the scene with realistic contact shadows and depth of field.\n" +
		"6. The final result should look like a professional brand catalog photo where the product belongs to the environment."
}

// GeneratePrompt builds the text prompt for a new garment photo.
func GeneratePrompt(garment, color, design string) string {
	return fmt.Sprintf("High quality product photography of a %s %s with design: %s. Professional apparel mockup. NO HUMANS.",
		strings.TrimSpace(color), strings.TrimSpace(garment), strings.TrimSpace(design))
}

// aspectRatios are the ratios the image models accept.
var aspectRatios = []struct {
	name  string
	value float64
}{
	{"1:1", 1},
	{"2:3", 2.0 / 3},
	{"3:2", 3.0 / 2},
	{"3:4", 3.0 / 4},
	{"4:3", 4.0 / 3},
	{"4:5", 4.0 / 5},
	{"5:4", 5.0 / 4},
	{"9:16", 9.0 / 16},
	{"16:9", 16.0 / 9},
	{"21:9", 21.0 / 9},
}

// AspectRatio returns the supported ratio closest to w:h, compared in log
// space so that 2:1 and 1:2 are equally far from 1:1.
func AspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return "1:1"
	}
	target := math.Log(float64(w) / float64(h))
	best, bestDist := aspectRatios[0].name, math.Inf(1)
	for _, r := range aspectRatios {
		if d := math.Abs(math.Log(r.value) - target); d < bestDist {
			best, bestDist = r.name, d
		}
	}
	return best
}
