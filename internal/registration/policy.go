// internal/registration/policy.go
package registration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
)

// settlePollInterval is how often the sub-slot list is re-read in wait mode.
const settlePollInterval = 50 * time.Millisecond

// orderSlots returns the attempt order. Random order is a uniform permutation,
// i.e. each attempt draws uniformly from the slots not yet tried.
func orderSlots(slots []schemas.SlotOption, order config.SlotOrder, rng *rand.Rand) []schemas.SlotOption {
	out := append([]schemas.SlotOption(nil), slots...)
	if order == config.SlotOrderRandom && len(out) > 1 {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

// pickSubSlot applies the sub-slot policy to the offered options.
func pickSubSlot(opts []schemas.SessionOption, policy config.SubSlotPolicy, fixed string, rng *rand.Rand) (string, bool) {
	switch policy {
	case config.SubSlotFixed:
		for _, o := range opts {
			if o.Value == fixed {
				return fixed, true
			}
		}
		return "", false
	case config.SubSlotFirst:
		if len(opts) == 0 {
			return "", false
		}
		return opts[0].Value, true
	case config.SubSlotRandom:
		if len(opts) == 0 {
			return "", false
		}
		return opts[rng.IntN(len(opts))].Value, true
	}
	return "", false
}

// awaitSubSlot waits for the dependent sub-slot list and returns the value to select.
// Wait mode polls until the policy can be satisfied; delay mode sleeps once and reads.
// An unsatisfiable policy yields ErrSubSlotUnavailable; other errors come from ctx or the page.
func (s *Session) awaitSubSlot(ctx context.Context) (string, error) {
	cfg := s.opts.Session
	sel := s.opts.Form.SubSlot

	if cfg.Settle == config.SettleDelay {
		if err := sleep(ctx, cfg.SettleDelay); err != nil {
			return "", err
		}
		opts, err := s.page.Options(ctx, sel)
		if err != nil {
			return "", err
		}
		if v, ok := pickSubSlot(opts, cfg.SubSlot, cfg.SubSlotValue, s.rng); ok {
			return v, nil
		}
		return "", fmt.Errorf("%w: policy %s, %d options offered", ErrSubSlotUnavailable, cfg.SubSlot, len(opts))
	}

	settleCtx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	var (
		lastErr  error
		lastSeen int
	)
	for {
		opts, err := s.page.Options(settleCtx, sel)
		if err == nil {
			if v, ok := pickSubSlot(opts, cfg.SubSlot, cfg.SubSlotValue, s.rng); ok {
				return v, nil
			}
			lastSeen = len(opts)
		}
		lastErr = err

		select {
		case <-settleCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if lastErr != nil {
				return "", fmt.Errorf("%w after %s: %v", ErrSubSlotUnavailable, cfg.SettleTimeout, lastErr)
			}
			return "", fmt.Errorf("%w after %s: policy %s, %d options offered", ErrSubSlotUnavailable, cfg.SettleTimeout, cfg.SubSlot, lastSeen)
		case <-ticker.C:
		}
	}
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
