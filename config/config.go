package config

import (
	"errors"
	"time"
)

// StorageBackend selects the storage adapter for exported images.
type StorageBackend string

const (
	StorageNone  StorageBackend = "none"
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// Backend selects the codec implementation.
type Backend string

const (
	BackendStdlib Backend = "stdlib"
	BackendVips   Backend = "vips"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int           `toml:"worker_count"` // default: runtime.NumCPU()
	QueueSize   int           `toml:"queue_size"`   // max queued jobs before backpressure
	JobTimeout  time.Duration `toml:"job_timeout"`

	// Retry, applied to transient export storage failures only.
	MaxRetries int           `toml:"max_retries"`
	RetryDelay time.Duration `toml:"retry_delay"`

	// Default encode options applied when an export does not override.
	DefaultQuality int    `toml:"default_quality"` // 1-100
	DefaultFormat  string `toml:"default_format"`

	// Loader limits.
	MaxImageBytes int64         `toml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int           `toml:"chunk_size"`      // streaming chunk size in bytes
	FetchTimeout  time.Duration `toml:"fetch_timeout"`

	Backend Backend `toml:"backend"`

	Transform TransformConfig `toml:"transform"`
	Panel     PanelConfig     `toml:"panel"`
	Dock      DockConfig      `toml:"dock"`
	Preview   PreviewConfig   `toml:"preview"`
	Export    ExportConfig    `toml:"export"`
	Service   ServiceConfig   `toml:"service"`

	// Storage.
	Storage StorageBackend `toml:"storage"`
	Local   LocalConfig    `toml:"local"`
	S3      S3Config       `toml:"s3"`

	AdaptiveCompression AdaptiveConfig `toml:"adaptive_compression"`

	Server ServerConfig `toml:"server"`

	LogLevel  string `toml:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `toml:"log_format"` // "text" or "json"
}

// TransformConfig bounds the overlay transform and sets its initial value.
type TransformConfig struct {
	MinScale       float64 `toml:"min_scale"`
	MaxScale       float64 `toml:"max_scale"`
	InitialScale   float64 `toml:"initial_scale"`
	InitialX       float64 `toml:"initial_x"`
	InitialY       float64 `toml:"initial_y"`
	InitialOpacity float64 `toml:"initial_opacity"`
}

// PanelConfig bounds the draggable desktop control panel.
type PanelConfig struct {
	Margin   float64 `toml:"margin"`
	Width    float64 `toml:"width"`
	Grip     float64 `toml:"grip"` // height that must stay on screen
	InitialX float64 `toml:"initial_x"`
	InitialY float64 `toml:"initial_y"`
}

// DockConfig bounds the mobile dock, which can also be pinch-scaled.
type DockConfig struct {
	Margin       float64 `toml:"margin"`
	Width        float64 `toml:"width"`
	Height       float64 `toml:"height"`
	MinScale     float64 `toml:"min_scale"`
	MaxScale     float64 `toml:"max_scale"`
	InitialScale float64 `toml:"initial_scale"`
}

// PreviewConfig toggles the decorations drawn on interactive renders only.
type PreviewConfig struct {
	Shadow bool `toml:"shadow"`
	Guide  bool `toml:"guide"`
}

// ExportConfig controls the full-resolution export.
type ExportConfig struct {
	Multiplier int    `toml:"multiplier"`
	Format     string `toml:"format"`
	Enhance    bool   `toml:"enhance"`
	Store      bool   `toml:"store"`
	KeyPrefix  string `toml:"key_prefix"`
}

// ServiceConfig configures the external image-edit service.
type ServiceConfig struct {
	BaseURL       string        `toml:"base_url"`
	APIKey        string        `toml:"api_key"`
	EditModel     string        `toml:"edit_model"`
	GenerateModel string        `toml:"generate_model"`
	Timeout       time.Duration `toml:"timeout"`

	// MaxResponseBytes caps a response body; images arrive base64-encoded.
	MaxResponseBytes int64 `toml:"max_response_bytes"`
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string `toml:"root_dir"`
	Permissions uint32 `toml:"permissions"` // default 0644
}

// S3Config configures the AWS S3 storage adapter.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"` // optional custom endpoint (MinIO, etc.)
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// AdaptiveConfig controls the adaptive compression algorithm.
type AdaptiveConfig struct {
	Enabled         bool  `toml:"enabled"`
	TargetSizeBytes int64 `toml:"target_size_bytes"` // desired maximum output size
	MinQuality      int   `toml:"min_quality"`       // floor to prevent over-compression
	MaxQuality      int   `toml:"max_quality"`
	StepSize        int   `toml:"step_size"` // quality decrement per iteration
}

// ServerConfig configures the HTTP/socket.io front end.
type ServerConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	MaxSessions    int      `toml:"max_sessions"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:    0, // resolved at runtime to NumCPU
		QueueSize:      256,
		JobTimeout:     90 * time.Second,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		DefaultQuality: 92,
		DefaultFormat:  "png",
		MaxImageBytes:  25 << 20,
		ChunkSize:      32 * 1024,
		FetchTimeout:   30 * time.Second,
		Backend:        BackendStdlib,
		Transform: TransformConfig{
			MinScale:       0.05,
			MaxScale:       0.8,
			InitialScale:   0.25,
			InitialX:       0.5,
			InitialY:       0.45,
			InitialOpacity: 1,
		},
		Panel: PanelConfig{Margin: 10, Width: 340, Grip: 70, InitialX: 20, InitialY: 80},
		Dock: DockConfig{
			Margin:       10,
			Width:        320,
			Height:       460,
			MinScale:     0.4,
			MaxScale:     1.2,
			InitialScale: 0.85,
		},
		Preview: PreviewConfig{Shadow: true},
		Export:  ExportConfig{Multiplier: 2, Format: "png", KeyPrefix: "exports"},
		Service: ServiceConfig{
			BaseURL:       "https://generativelanguage.googleapis.com",
			EditModel:     "gemini-2.5-flash-image",
			GenerateModel: "gemini-3-pro-image-preview",
			Timeout:       60 * time.Second,

			MaxResponseBytes: 48 << 20,
		},
		Storage: StorageNone,
		Local:   LocalConfig{RootDir: "./exports", Permissions: 0o644},
		AdaptiveCompression: AdaptiveConfig{
			MinQuality: 30,
			MaxQuality: 95,
			StepSize:   5,
		},
		Server: ServerConfig{
			Listen:         ":8080",
			AllowedOrigins: []string{"*"},
			MaxUploadBytes: 25 << 20,
			MaxSessions:    1024,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.AdaptiveCompression.Enabled {
		if c.AdaptiveCompression.MinQuality >= c.AdaptiveCompression.MaxQuality {
			return errors.New("config: AdaptiveCompression.MinQuality must be less than MaxQuality")
		}
		if c.AdaptiveCompression.StepSize <= 0 {
			return errors.New("config: AdaptiveCompression.StepSize must be positive")
		}
	}
	t := c.Transform
	if t.MinScale <= 0 || t.MinScale > t.MaxScale {
		return errors.New("config: Transform.MinScale must be positive and not above MaxScale")
	}
	if t.InitialScale < t.MinScale || t.InitialScale > t.MaxScale {
		return errors.New("config: Transform.InitialScale must lie within [MinScale, MaxScale]")
	}
	if t.InitialX < 0 || t.InitialX > 1 || t.InitialY < 0 || t.InitialY > 1 {
		return errors.New("config: Transform initial position must lie within [0,1]")
	}
	if t.InitialOpacity < 0 || t.InitialOpacity > 1 {
		return errors.New("config: Transform.InitialOpacity must lie within [0,1]")
	}
	d := c.Dock
	if d.MinScale <= 0 || d.MinScale > d.MaxScale {
		return errors.New("config: Dock.MinScale must be positive and not above MaxScale")
	}
	if d.InitialScale < d.MinScale || d.InitialScale > d.MaxScale {
		return errors.New("config: Dock.InitialScale must lie within [MinScale, MaxScale]")
	}
	if c.Panel.Margin < 0 || c.Dock.Margin < 0 {
		return errors.New("config: panel margins must not be negative")
	}
	if c.Export.Multiplier < 1 {
		return errors.New("config: Export.Multiplier must be at least 1")
	}
	switch c.Backend {
	case BackendStdlib, BackendVips:
	default:
		return errors.New("config: Backend must be \"stdlib\" or \"vips\"")
	}
	switch c.Storage {
	case StorageNone, StorageLocal:
	case StorageS3:
		if c.S3.Bucket == "" {
			return errors.New("config: S3.Bucket is required for s3 storage")
		}
	default:
		return errors.New("config: unknown Storage backend")
	}
	if c.Export.Store && c.Storage == StorageNone {
		return errors.New("config: Export.Store requires a Storage backend")
	}
	return nil
}
