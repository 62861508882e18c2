// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
)

// NewVisionClient creates the VisionClient for the configured provider.
func NewVisionClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (schemas.VisionClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported vision provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// probePNG is a 1x1 transparent pixel used to verify credentials without a real challenge.
const probePNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// ProbeImage returns the decoded probe pixel.
func ProbeImage() []byte {
	img, err := base64.StdEncoding.DecodeString(probePNG)
	if err != nil {
		panic(fmt.Sprintf("probe image is corrupt: %v", err))
	}
	return img
}

// Probe sends a trivial image to the model so credentials and model name can be checked up front.
func Probe(ctx context.Context, client schemas.VisionClient) (string, error) {
	reply, err := client.DescribeImage(ctx, schemas.VisionRequest{
		Instruction: "Describe this image in one word.",
		Image:       ProbeImage(),
		MIMEType:    "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("vision probe failed: %w", err)
	}
	return reply, nil
}
