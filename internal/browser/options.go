// internal/browser/options.go
package browser

import (
	"runtime"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/slotrunner/internal/config"
)

// AllocatorFlags computes the command-line flags layered over chromedp's defaults.
// Later entries win, so custom args can override anything set here.
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		// chromedp's defaults turn this on; it shows an infobar and sets navigator.webdriver.
		"enable-automation":         false,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"headless":                  cfg.Headless,
		"disable-gpu":               cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
	}
	if cfg.IgnoreTLSErrors {
		flags["allow-insecure-localhost"] = true
	}
	if cfg.DisableCache {
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
	}

	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions converts the browser config into exec allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	flags := AllocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
