// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
)

// GeminiClient implements schemas.VisionClient on top of the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float32
	logger      *zap.Logger
}

var _ schemas.VisionClient = (*GeminiClient)(nil)

// GeminiOption customizes client construction.
type GeminiOption func(*genai.ClientConfig)

// WithHTTPClient makes the client use hc for every request.
func WithHTTPClient(hc *http.Client) GeminiOption {
	return func(cc *genai.ClientConfig) { cc.HTTPClient = hc }
}

// NewGeminiClient initializes the client. A missing API key is a configuration error.
func NewGeminiClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger, opts ...GeminiOption) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		base := cfg.Endpoint
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		cc.HTTPOptions.BaseURL = base
	}
	for _, opt := range opts {
		opt(cc)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		timeout:     cfg.APITimeout,
		temperature: cfg.Temperature,
		logger:      logger.Named("llm_client.gemini"),
	}, nil
}

// DescribeImage sends the instruction and image as one user turn and returns the model's text.
func (c *GeminiClient) DescribeImage(ctx context.Context, req schemas.VisionRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("vision request has no image")
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Instruction),
			genai.NewPartFromBytes(req.Image, mimeType),
		}, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	duration := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("gemini request failed after %s: %w", duration, err)
	}

	fields := []zap.Field{zap.String("model", c.model), zap.Duration("duration", duration)}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	c.logger.Debug("Gemini image request completed.", fields...)

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}
	return resp.Text(), nil
}

// Close is a no-op; the underlying client holds no long-lived resources.
func (c *GeminiClient) Close() error {
	return nil
}
