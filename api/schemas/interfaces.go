package schemas

import (
	"context"
)

// -- Browser Interfaces --

// ChallengeSource is the part of a page a challenge solver is allowed to read.
type ChallengeSource interface {
	// Text returns the rendered text content of the element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// CaptureElement returns a PNG of the element matching selector.
	CaptureElement(ctx context.Context, selector string) ([]byte, error)
}

// Page is one browser tab under exclusive control of a registration session.
// Every method honours ctx cancellation and deadlines; selectors are CSS queries.
type Page interface {
	ChallengeSource

	// Navigate loads url. It does not wait for later automatic redirects;
	// callers follow it with WaitReady on an element of the final page.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until an element matching selector is present in the DOM.
	WaitReady(ctx context.Context, selector string) error
	// WaitVisible blocks until an element matching selector is visible.
	WaitVisible(ctx context.Context, selector string) error
	// Options returns the non-empty options of the select element matching selector.
	Options(ctx context.Context, selector string) ([]Option, error)
	// Fill types value into the input matching selector.
	Fill(ctx context.Context, selector, value string) error
	// Select sets the value of the select element matching selector.
	Select(ctx context.Context, selector, value string) error
	// Click clicks the element matching selector.
	Click(ctx context.Context, selector string) error
	// Reload reloads the current document, resetting the form.
	Reload(ctx context.Context) error
	// Snapshot returns a full-page PNG for diagnostics.
	Snapshot(ctx context.Context) ([]byte, error)
	// Close releases the tab. Calling it more than once is safe.
	Close(ctx context.Context) error
}

// PageFactory hands out fresh, isolated pages.
type PageFactory interface {
	NewPage(ctx context.Context) (Page, error)
}

// -- Challenge Solving --

// ChallengeSolver decodes the verification challenge shown on a page.
type ChallengeSolver interface {
	// Solve returns the decoded challenge text or a solver error.
	Solve(ctx context.Context, src ChallengeSource) (string, error)
	// Name identifies the strategy in logs and reports.
	Name() string
}

// VisionRequest is a single image question sent to a vision-capable model.
type VisionRequest struct {
	Instruction string `json:"instruction"`
	Image       []byte `json:"-"`
	MIMEType    string `json:"mime_type"`
}

// VisionClient is an external model able to read text out of an image.
type VisionClient interface {
	// DescribeImage returns the model's raw text reply for req.
	DescribeImage(ctx context.Context, req VisionRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}

// -- Snapshots --

// SnapshotWriter persists diagnostic page images.
type SnapshotWriter interface {
	// WriteSnapshot stores png under a name derived from key and returns its location.
	WriteSnapshot(key string, png []byte) (string, error)
}
