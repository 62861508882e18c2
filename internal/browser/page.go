// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/api/schemas"
)

// Page is one browser tab. It implements schemas.Page.
type Page struct {
	id            string
	ctx           context.Context
	cancel        context.CancelFunc
	logger        *zap.Logger
	actionTimeout time.Duration
	onClose       func()

	mu     sync.Mutex
	closed bool
}

var _ schemas.Page = (*Page)(nil)

func (p *Page) ID() string { return p.id }

// run executes actions on the tab, bounded by the caller's ctx, the tab's own lifetime and,
// when bounded is set, the per-action timeout.
func (p *Page) run(ctx context.Context, bounded bool, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	if bounded && p.actionTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, p.actionTimeout)
		defer cancelTimeout()
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ctxErr, err)
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for its load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, false, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady waits until selector is in the DOM. The caller's ctx supplies the bound,
// which lets it span redirects that replace the document.
func (p *Page) WaitReady(ctx context.Context, selector string) error {
	if err := p.run(ctx, false, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait ready %s: %w", selector, err)
	}
	return nil
}

// WaitVisible waits until selector is visible. The caller's ctx supplies the bound.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := p.run(ctx, false, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

const optionsScript = `(() => {
	const el = document.querySelector(%[1]s);
	if (!el) { throw new Error("no element matches " + %[1]s); }
	return Array.from(el.options || [])
		.filter(o => o.value !== "")
		.map(o => ({ value: o.value, label: (o.textContent || "").trim() }));
})()`

// Options lists the options of a select element, skipping empty-valued placeholders.
func (p *Page) Options(ctx context.Context, selector string) ([]schemas.Option, error) {
	var opts []schemas.Option
	err := p.run(ctx, true,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(optionsScript, jsString(selector)), &opts),
	)
	if err != nil {
		return nil, fmt.Errorf("read options of %s: %w", selector, err)
	}
	return opts, nil
}

// Fill clears the input and types value into it.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	actions := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(selector, value, chromedp.ByQuery))
	}
	if err := p.run(ctx, true, actions); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

const selectScript = `(() => {
	const el = document.querySelector(%[1]s);
	if (!el) { throw new Error("no element matches " + %[1]s); }
	const value = %[2]s;
	if (!Array.from(el.options || []).some(o => o.value === value)) {
		throw new Error("no option " + value + " in " + %[1]s);
	}
	el.value = value;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
})()`

// Select sets a select element's value and fires input and change so dependent controls refresh.
func (p *Page) Select(ctx context.Context, selector, value string) error {
	var ok bool
	err := p.run(ctx, true,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(selectScript, jsString(selector), jsString(value)), &ok),
	)
	if err != nil {
		return fmt.Errorf("select %q in %s: %w", value, selector, err)
	}
	return nil
}

// Click scrolls to and clicks the element.
func (p *Page) Click(ctx context.Context, selector string) error {
	err := p.run(ctx, true, chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Reload reloads the document and waits for it to load.
func (p *Page) Reload(ctx context.Context) error {
	if err := p.run(ctx, true, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// Text returns the element's rendered text.
func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, true, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return text, nil
}

// CaptureElement returns a PNG of the element.
func (p *Page) CaptureElement(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, true, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("capture %s: %w", selector, err)
	}
	return buf, nil
}

// Snapshot returns a full-page PNG.
func (p *Page) Snapshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 selects PNG encoding.
	if err := p.run(ctx, true, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return buf, nil
}

// Close shuts the tab. Safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Debug("Closing page.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	p.cancel()
	if p.onClose != nil {
		p.onClose()
	}
	if err != nil && err != context.Canceled {
		return fmt.Errorf("close page %s: %w", p.id, err)
	}
	return nil
}
