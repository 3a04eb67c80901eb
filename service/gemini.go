package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/Skryldev/mockup-studio/config"
	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/utils"
)

// ErrNoImage is returned when a response carries no inline image part.
var ErrNoImage = errors.New("response contains no image")

// Gemini calls the generateContent REST endpoint of the Gemini image models.
type Gemini struct {
	cfg    config.ServiceConfig
	reg    core.Registry
	client *http.Client
	logger core.Logger
}

// NewGemini returns a client. reg supplies the PNG encoder for request
// images and the decoders for responses.
func NewGemini(cfg config.ServiceConfig, reg core.Registry) *Gemini {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gemini{
		cfg:    cfg,
		reg:    reg,
		client: &http.Client{Timeout: timeout},
		logger: core.NopLogger{},
	}
}

// SetLogger attaches a structured logger.
func (g *Gemini) SetLogger(l core.Logger) {
	if l != nil {
		g.logger = l
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (g *Gemini) SetHTTPClient(c *http.Client) {
	if c != nil {
		g.client = c
	}
}

// ── wire types ────────────────────────────────────────────────────────────────

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string    `json:"responseModalities,omitempty"`
	ImageConfig        imageConfig `json:"imageConfig"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ── operations ────────────────────────────────────────────────────────────────

// Edit sends img with instruction to the edit model.
func (g *Gemini) Edit(ctx context.Context, img image.Image, instruction, aspect string) (image.Image, error) {
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "gemini.edit", apperrors.ErrEmptyInput)
	}
	enc, ok := g.reg.EncoderFor(core.FormatPNG)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryConfig, "gemini.edit",
			fmt.Errorf("%w: png", apperrors.ErrUnsupportedFormat))
	}
	data, err := enc.Encode(ctx, &core.ImageData{Image: img, Format: core.FormatPNG}, core.EncodeOptions{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, "gemini.edit.encode", err)
	}
	req := generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(data)}},
			{Text: instruction},
		}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        imageConfig{AspectRatio: aspect},
		},
	}
	return g.call(ctx, "gemini.edit", g.cfg.EditModel, req)
}

// Generate asks the generation model for a new image.
func (g *Gemini) Generate(ctx context.Context, prompt, aspect string, size ImageSize) (image.Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperrors.New(apperrors.CategoryInput, "gemini.generate", apperrors.ErrEmptyInput)
	}
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        imageConfig{AspectRatio: aspect, ImageSize: string(size)},
		},
	}
	return g.call(ctx, "gemini.generate", g.cfg.GenerateModel, req)
}

func (g *Gemini) call(ctx context.Context, op, model string, body generateRequest) (image.Image, error) {
	if g.cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, op, errors.New("missing API key"))
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, op, err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.cfg.BaseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperrors.Transient(op, err)
	}
	defer resp.Body.Close()

	raw, err := utils.ReadAll(ctx, resp.Body, 32*1024, g.cfg.MaxResponseBytes)
	if errors.Is(err, utils.ErrLimitExceeded) {
		return nil, apperrors.New(apperrors.CategoryService, op,
			fmt.Errorf("response over %d bytes: %w", g.cfg.MaxResponseBytes, apperrors.ErrImageTooLarge))
	}
	if err != nil {
		return nil, apperrors.Transient(op, err)
	}
	g.logger.Debug("gemini.response", "op", op, "model", model, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp.StatusCode, raw)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, op, err)
	}
	if reason := out.PromptFeedback.BlockReason; reason != "" {
		return nil, apperrors.New(apperrors.CategoryService, op, fmt.Errorf("request blocked: %s", reason))
	}
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			return g.decode(ctx, op, p.InlineData)
		}
	}
	if len(out.Candidates) > 0 && out.Candidates[0].FinishReason != "" {
		return nil, apperrors.New(apperrors.CategoryService, op,
			fmt.Errorf("%w (finish reason %s)", ErrNoImage, out.Candidates[0].FinishReason))
	}
	return nil, apperrors.New(apperrors.CategoryService, op, ErrNoImage)
}

func (g *Gemini) decode(ctx context.Context, op string, d *inlineData) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, op+".decode", err)
	}
	dec, format, ok := g.reg.Sniff(data, d.MimeType)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryService, op+".decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	img, err := dec.Decode(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryService, op+".decode", err)
	}
	return img.Image, nil
}

// statusError maps an HTTP failure to a ProcessingError. Rate limits and
// server errors are marked retryable.
func statusError(op string, code int, body []byte) error {
	msg := http.StatusText(code)
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}
	err := fmt.Errorf("status %d: %s", code, msg)
	if code == http.StatusTooManyRequests || code >= 500 {
		return apperrors.Transient(op, err)
	}
	return apperrors.New(apperrors.CategoryService, op, err)
}

// compile-time interface checks
var (
	_ ImageEditor = (*Gemini)(nil)
	_ Generator   = (*Gemini)(nil)
)
