// File: internal/solver/solver.go
package solver

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyAnswer is returned when a strategy produced nothing usable.
var ErrEmptyAnswer = errors.New("empty challenge answer")

// Error is the single failure type of every strategy. Sessions treat it as
// recoverable and skip the current slot.
type Error struct {
	Strategy string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("solver %s: %s: %v", e.Strategy, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Normalize trims a model reply and drops every whitespace rune inside it.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// New builds the strategy named by cfg.Strategy. client is only required for the vision strategy.
func New(cfg config.SolverConfig, selector string, client schemas.VisionClient, logger *zap.Logger) (schemas.ChallengeSolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("challenge selector is empty")
	}

	switch cfg.Strategy {
	case config.StrategyDirect:
		return NewDirectReader(selector), nil
	case config.StrategyVision:
		if client == nil {
			return nil, fmt.Errorf("vision strategy requires a vision client")
		}
		var limiter *rate.Limiter
		if cfg.Vision.RateLimit > 0 {
			burst := cfg.Vision.Burst
			if burst < 1 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(cfg.Vision.RateLimit), burst)
		}
		return NewVisionSolver(client, VisionOptions{
			Selector: selector,
			Prompt:   cfg.Vision.Prompt,
			MIMEType: cfg.Vision.MIMEType,
			Limiter:  limiter,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown solver strategy %q", cfg.Strategy)
	}
}
