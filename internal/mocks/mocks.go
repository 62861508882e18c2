// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/slotrunner/api/schemas"
)

// -- Page Mock --

// MockPage mocks the schemas.Page interface.
type MockPage struct {
	mock.Mock
}

var _ schemas.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockPage) WaitReady(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) WaitVisible(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) Options(ctx context.Context, selector string) ([]schemas.Option, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Option), args.Error(1)
}
func (m *MockPage) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}
func (m *MockPage) Select(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}
func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockPage) Text(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}
func (m *MockPage) CaptureElement(ctx context.Context, selector string) ([]byte, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
func (m *MockPage) Snapshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Page Factory Mock --

// MockPageFactory mocks the schemas.PageFactory interface.
type MockPageFactory struct {
	mock.Mock
}

// NewPage accepts either a schemas.Page or a func(context.Context) schemas.Page
// as the first return value, so each call can hand out a distinct page.
func (m *MockPageFactory) NewPage(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func(context.Context) schemas.Page); ok {
		return fn(ctx), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Page), args.Error(1)
}

// -- Solver Mocks --

// MockSolver mocks the schemas.ChallengeSolver interface.
type MockSolver struct {
	mock.Mock
}

func (m *MockSolver) Solve(ctx context.Context, src schemas.ChallengeSource) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, src)
	return args.String(0), args.Error(1)
}

func (m *MockSolver) Name() string {
	return "mock"
}

// MockVisionClient mocks the schemas.VisionClient interface.
type MockVisionClient struct {
	mock.Mock
}

func (m *MockVisionClient) DescribeImage(ctx context.Context, req schemas.VisionRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockVisionClient) Close() error {
	return m.Called().Error(0)
}

// -- Snapshot Writer Mock --

// MockSnapshotWriter mocks the schemas.SnapshotWriter interface.
type MockSnapshotWriter struct {
	mock.Mock
}

func (m *MockSnapshotWriter) WriteSnapshot(key string, png []byte) (string, error) {
	args := m.Called(key, png)
	return args.String(0), args.Error(1)
}
