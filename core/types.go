package core

import (
	"context"
	"image"
	"io"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ParseFormat normalises a user supplied format name.
func ParseFormat(s string) Format {
	switch s {
	case "jpeg", "jpg", "JPEG", "JPG", "image/jpeg":
		return FormatJPEG
	case "png", "PNG", "image/png":
		return FormatPNG
	case "webp", "WEBP", "image/webp":
		return FormatWebP
	}
	return FormatUnknown
}

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information.
type Metadata struct {
	Width       int
	Height      int
	Format      Format
	ColorSpace  ColorSpace
	HasAlpha    bool
	SizeBytes   int64
	Orientation int // EXIF orientation tag (1-8), 0 when unknown
}

// ImageData is the in-memory representation passed through the export pipeline.
// Data holds encoded bytes; Image holds the decoded pixel buffer.
type ImageData struct {
	Data   []byte
	Format Format
	Image  image.Image
	Meta   Metadata

	// Size of the first encoding, used by adaptive compression.
	OriginalSize int64

	// Quality requested by a quality step; 0 leaves the encoder default.
	Quality int

	// Stored is set once a store step has persisted Data.
	Stored *StorageKey
}

// FromImage wraps an already decoded raster.
func FromImage(img image.Image) *ImageData {
	b := img.Bounds()
	return &ImageData{
		Image: img,
		Meta: Metadata{
			Width:      b.Dx(),
			Height:     b.Dy(),
			ColorSpace: ColorSpaceRGBA,
			HasAlpha:   true,
		},
	}
}

// ProcessingResult is returned after an export pipeline completes.
type ProcessingResult struct {
	Primary *ImageData
	Key     *StorageKey // set when a store step persisted the output

	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Source describes where an image comes from. URI may be an http(s) URL, a
// data URI, a file:// URL or a plain filesystem path. When Reader is set it
// takes precedence and URI only serves as identity.
type Source struct {
	URI         string
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // optional logical name / filename
	Size        int64  // -1 if unknown
}

// Identity is the value used to recognise superseded loads.
func (s Source) Identity() string {
	if s.URI != "" {
		return s.URI
	}
	return s.Name
}

// Asset is a decoded image owned by the editor. Assets are immutable once
// built; edits produce new assets with new identities.
type Asset struct {
	ID    string
	Image image.Image
	Meta  Metadata
}

// NewAsset wraps img under the given identity.
func NewAsset(id string, img image.Image) *Asset {
	b := img.Bounds()
	return &Asset{ID: id, Image: img, Meta: Metadata{Width: b.Dx(), Height: b.Dy()}}
}

// Width is the intrinsic pixel width.
func (a *Asset) Width() int { return a.Image.Bounds().Dx() }

// Height is the intrinsic pixel height.
func (a *Asset) Height() int { return a.Image.Bounds().Dy() }

// Aspect is width divided by height, or 0 for a degenerate image.
func (a *Asset) Aspect() float64 {
	h := a.Height()
	if h == 0 {
		return 0
	}
	return float64(a.Width()) / float64(h)
}

// AssetState tracks the lifecycle of an image slot.
type AssetState int

const (
	AssetAbsent AssetState = iota
	AssetLoading
	AssetReady
	AssetFailed
)

func (s AssetState) String() string {
	switch s {
	case AssetLoading:
		return "loading"
	case AssetReady:
		return "ready"
	case AssetFailed:
		return "failed"
	}
	return "absent"
}

// MarshalText encodes the state by name.
func (s AssetState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Job encapsulates a single unit of background work for the Pool.
type Job struct {
	ID  string
	Ctx context.Context //nolint:containedctx // intentional for async jobs
	Run func(ctx context.Context) error
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// JobResult wraps the outcome of an async job.
type JobResult struct {
	JobID string
	Err   error
}

// Step is the fundamental export pipeline building block.  Each Step transforms
// an *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// StorageKey uniquely identifies a stored image.
type StorageKey struct {
	Bucket string `json:"bucket,omitempty"`
	Path   string `json:"path"`
}
