// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
)

// Manager owns the single browser process and hands out isolated tabs.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process; browserCtx is its first target,
	// and every page is a new tab derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu    sync.Mutex
	pages map[string]*Page
	wg    sync.WaitGroup
}

var _ schemas.PageFactory = (*Manager)(nil)

// NewManager launches the browser and checks that it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		pages:  make(map[string]*Page),
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(m.cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	launchTimeout := m.cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	boundCtx, cancelBound := context.WithTimeout(ctx, launchTimeout)
	defer cancelBound()

	if err := runOnTarget(boundCtx, m.browserCtx, m.browserCancel, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// NewPage opens a fresh tab. The tab lives until it is closed or the manager shuts down;
// ctx only bounds the creation itself.
func (m *Manager) NewPage(ctx context.Context) (schemas.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)

	var setup chromedp.Tasks
	if m.cfg.DisableCache {
		// Slot lists change between reloads; a cached form would show stale options.
		setup = append(setup, network.Enable(), network.SetCacheDisabled(true))
	}
	if err := runOnTarget(ctx, tabCtx, tabCancel, setup); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	id := uuid.NewString()
	page := &Page{
		id:            id,
		ctx:           tabCtx,
		cancel:        tabCancel,
		logger:        m.logger.Named("page").With(zap.String("page_id", id)),
		actionTimeout: m.cfg.ActionTimeout,
	}
	page.onClose = func() { m.release(id) }

	m.mu.Lock()
	m.pages[id] = page
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("Opened page.", zap.String("page_id", id))
	return page, nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[id]; ok {
		delete(m.pages, id)
		m.wg.Done()
	}
}

// runOnTarget performs the first Run on a fresh chromedp context. That Run allocates the
// target and binds it to the context it is given, so it must receive the target context
// itself; bound is enforced from the outside by cancelling the target.
func runOnTarget(bound, target context.Context, cancelTarget context.CancelFunc, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target, actions...) }()
	select {
	case err := <-done:
		return err
	case <-bound.Done():
		cancelTarget()
		<-done
		return bound.Err()
	}
}

// OpenPages reports how many tabs are still open, including ones left open on purpose.
func (m *Manager) OpenPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// Shutdown closes every remaining tab and terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	remaining := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		remaining = append(remaining, p)
	}
	m.mu.Unlock()

	m.logger.Info("Browser manager shutdown initiated.", zap.Int("open_pages", len(remaining)))
	for _, p := range remaining {
		if err := p.Close(ctx); err != nil {
			m.logger.Warn("Failed to close page during shutdown.", zap.String("page_id", p.id), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
