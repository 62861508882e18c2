// internal/browser/page_test.go
package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/browser"
	"github.com/xkilldash9x/slotrunner/internal/config"
)

// findChrome locates a Chrome binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser integration tests are skipped in -short mode")
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome/Chromium binary found; set CHROME_PATH to run browser tests")
	return ""
}

// setupManager launches a headless browser for the test and shuts it down afterwards.
func setupManager(t *testing.T) *browser.Manager {
	t.Helper()
	execPath := findChrome(t)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	cfg := config.BrowserConfig{
		Headless:      true,
		DisableCache:  true,
		ExecPath:      execPath,
		LaunchTimeout: 60 * time.Second,
		ActionTimeout: 10 * time.Second,
	}
	mgr, err := browser.NewManager(context.Background(), cfg, logger)
	require.NoError(t, err, "failed to launch browser")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return mgr
}

func serveForm(t *testing.T) *httptest.Server {
	t.Helper()
	html, err := os.ReadFile("testdata/form.html")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(html)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPage_FormRoundTrip(t *testing.T) {
	mgr := setupManager(t)
	srv := serveForm(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := mgr.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close(ctx)
	assert.Equal(t, 1, mgr.OpenPages())

	require.NoError(t, page.Navigate(ctx, srv.URL))
	require.NoError(t, page.WaitReady(ctx, "#slNgayBanHang"))

	slots, err := page.Options(ctx, "#slNgayBanHang")
	require.NoError(t, err)
	assert.Equal(t, []schemas.Option{{Value: "d1", Label: "Day one"}, {Value: "d2", Label: "Day two"}}, slots)

	require.NoError(t, page.Fill(ctx, "#txtHoTen", "Nguyen Van A"))
	require.NoError(t, page.Select(ctx, "#slNgayBanHang", "d1"))

	// Sub-slots arrive asynchronously after the change event.
	require.Eventually(t, func() bool {
		opts, err := page.Options(ctx, "#slPhien")
		return err == nil && len(opts) == 2
	}, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, page.Select(ctx, "#slPhien", "1"))

	text, err := page.Text(ctx, "#dvCaptcha")
	require.NoError(t, err)
	assert.Equal(t, "X7k2", text)

	img, err := page.CaptureElement(ctx, "#dvCaptcha")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img[:4])

	require.NoError(t, page.Fill(ctx, "#txtCaptcha", text))
	require.NoError(t, page.Click(ctx, "#ckbDongY"))
	require.NoError(t, page.Click(ctx, "#btDangKyThamGia"))

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	require.NoError(t, page.WaitVisible(waitCtx, "#dvTaoMaQR"))

	snap, err := page.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap)

	require.NoError(t, page.Reload(ctx))
	opts, err := page.Options(ctx, "#slPhien")
	require.NoError(t, err)
	assert.Empty(t, opts, "reload resets the dependent select")
}

func TestPage_Errors(t *testing.T) {
	mgr := setupManager(t)
	srv := serveForm(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := mgr.NewPage(ctx)
	require.NoError(t, err)
	defer page.Close(ctx)
	require.NoError(t, page.Navigate(ctx, srv.URL))

	t.Run("select missing option", func(t *testing.T) {
		err := page.Select(ctx, "#slNgayBanHang", "d9")
		assert.Error(t, err)
	})

	t.Run("wait for hidden element times out", func(t *testing.T) {
		waitCtx, waitCancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer waitCancel()
		err := page.WaitVisible(waitCtx, "#dvTaoMaQR")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestManager_ShutdownClosesKeptPages(t *testing.T) {
	mgr := setupManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		_, err := mgr.NewPage(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, mgr.OpenPages())

	require.NoError(t, mgr.Shutdown(ctx))
	assert.Equal(t, 0, mgr.OpenPages())
}

func TestPage_CloseIsIdempotent(t *testing.T) {
	mgr := setupManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := mgr.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Close(ctx))
	require.NoError(t, page.Close(ctx))
	assert.Equal(t, 0, mgr.OpenPages())
}
