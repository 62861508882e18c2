// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context that inherits values, deadline and cancellation
// from ctx1 and is additionally cancelled when ctx2 is done.
// The chromedp target lives in ctx1, the caller's deadline in ctx2.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	if deadline, ok := ctx2.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}

	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
