// File: internal/solver/direct.go
package solver

import (
	"context"

	"github.com/xkilldash9x/slotrunner/api/schemas"
)

// StrategyDirectName identifies DirectReader in logs and reports.
const StrategyDirectName = "direct"

// DirectReader copies the challenge text straight out of the page.
type DirectReader struct {
	selector string
}

var _ schemas.ChallengeSolver = (*DirectReader)(nil)

// NewDirectReader reads the challenge from the element matching selector.
func NewDirectReader(selector string) *DirectReader {
	return &DirectReader{selector: selector}
}

func (d *DirectReader) Name() string { return StrategyDirectName }

// Solve returns the element's text verbatim.
func (d *DirectReader) Solve(ctx context.Context, src schemas.ChallengeSource) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Strategy: StrategyDirectName, Op: "read", Err: err}
	}
	text, err := src.Text(ctx, d.selector)
	if err != nil {
		return "", &Error{Strategy: StrategyDirectName, Op: "read " + d.selector, Err: err}
	}
	return text, nil
}
