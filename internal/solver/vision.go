// File: internal/solver/vision.go
package solver

import (
	"context"
	"time"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StrategyVisionName identifies VisionSolver in logs and reports.
const StrategyVisionName = "vision"

// VisionOptions configures a VisionSolver.
type VisionOptions struct {
	Selector string
	Prompt   string
	MIMEType string
	// Limiter throttles outbound model calls. It may be shared between solvers; nil means no limit.
	Limiter *rate.Limiter
}

// VisionSolver photographs the challenge element and asks an external model to read it.
// Every Solve makes exactly one model call; nothing is cached or retried.
type VisionSolver struct {
	client schemas.VisionClient
	opts   VisionOptions
	logger *zap.Logger
}

var _ schemas.ChallengeSolver = (*VisionSolver)(nil)

// NewVisionSolver creates a VisionSolver. Empty prompt and MIME type fall back to defaults.
func NewVisionSolver(client schemas.VisionClient, opts VisionOptions, logger *zap.Logger) *VisionSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Prompt == "" {
		opts.Prompt = config.DefaultVisionPrompt
	}
	if opts.MIMEType == "" {
		opts.MIMEType = "image/png"
	}
	return &VisionSolver{
		client: client,
		opts:   opts,
		logger: logger.Named("VisionSolver"),
	}
}

func (v *VisionSolver) Name() string { return StrategyVisionName }

// Solve captures the challenge, sends it to the model and normalizes the reply.
func (v *VisionSolver) Solve(ctx context.Context, src schemas.ChallengeSource) (string, error) {
	img, err := src.CaptureElement(ctx, v.opts.Selector)
	if err != nil {
		return "", &Error{Strategy: StrategyVisionName, Op: "capture " + v.opts.Selector, Err: err}
	}

	if v.opts.Limiter != nil {
		if err := v.opts.Limiter.Wait(ctx); err != nil {
			return "", &Error{Strategy: StrategyVisionName, Op: "rate limit", Err: err}
		}
	}

	start := time.Now()
	reply, err := v.client.DescribeImage(ctx, schemas.VisionRequest{
		Instruction: v.opts.Prompt,
		Image:       img,
		MIMEType:    v.opts.MIMEType,
	})
	if err != nil {
		return "", &Error{Strategy: StrategyVisionName, Op: "describe image", Err: err}
	}

	answer := Normalize(reply)
	v.logger.Debug("Challenge decoded.",
		zap.Int("image_bytes", len(img)),
		zap.Duration("duration", time.Since(start)),
		zap.Int("answer_len", len(answer)),
	)
	if answer == "" {
		return "", &Error{Strategy: StrategyVisionName, Op: "normalize reply", Err: ErrEmptyAnswer}
	}
	return answer, nil
}
