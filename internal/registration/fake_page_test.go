// internal/registration/fake_page_test.go
package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xkilldash9x/slotrunner/api/schemas"
	"github.com/xkilldash9x/slotrunner/internal/config"
)

// fakePage is a scriptable in-memory form. It records every interaction so
// tests can assert on call counts without a browser.
type fakePage struct {
	mu   sync.Mutex
	form config.FormConfig

	slots    []schemas.Option
	subSlots []schemas.Option
	// subSlotsAfter delays sub-slot availability by this many Options reads after a date is selected.
	subSlotsAfter int
	challenge     string

	navigateErr error
	blockReady  bool
	optionsErr  error
	fillErr     map[string]error
	reloadErr   error
	panicOnFill string
	// unconfirmed lists dates whose success indicator never appears.
	unconfirmed map[string]bool
	// onConfirmWait runs when the session starts waiting for confirmation.
	onConfirmWait func()

	date        string
	subReads    int
	fills       map[string][]string
	profileFill int
	submits     int
	reloads     int
	closes      int
	snapshots   int
}

var _ schemas.Page = (*fakePage)(nil)

func newFakePage(form config.FormConfig, slots ...string) *fakePage {
	p := &fakePage{
		form:      form,
		challenge: "X7k2",
		subSlots:  []schemas.Option{{Value: "1", Label: "Morning"}, {Value: "2", Label: "Afternoon"}},
		fills:     make(map[string][]string),
	}
	for _, s := range slots {
		p.slots = append(p.slots, schemas.Option{Value: s, Label: "Label " + s})
	}
	return p
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.navigateErr
}

func (p *fakePage) WaitReady(ctx context.Context, selector string) error {
	if p.blockReady {
		<-ctx.Done()
		return fmt.Errorf("wait ready %s: %w", selector, ctx.Err())
	}
	return ctx.Err()
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	date := p.date
	hook := p.onConfirmWait
	unconfirmed := p.unconfirmed[date]
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if unconfirmed {
		<-ctx.Done()
		return fmt.Errorf("wait visible %s: %w", selector, ctx.Err())
	}
	return ctx.Err()
}

func (p *fakePage) Options(ctx context.Context, selector string) ([]schemas.Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.optionsErr != nil {
		return nil, p.optionsErr
	}
	switch selector {
	case p.form.Date:
		return append([]schemas.Option(nil), p.slots...), nil
	case p.form.SubSlot:
		if p.date == "" {
			return nil, nil
		}
		p.subReads++
		if p.subReads <= p.subSlotsAfter {
			return nil, nil
		}
		return append([]schemas.Option(nil), p.subSlots...), nil
	}
	return nil, fmt.Errorf("unexpected options selector %s", selector)
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if selector == p.panicOnFill {
		panic("renderer crashed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fillErr[selector]; err != nil {
		return err
	}
	p.fills[selector] = append(p.fills[selector], value)
	if selector == p.form.Name {
		p.profileFill++
	}
	return nil
}

func (p *fakePage) Select(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.form.Date {
		p.date = value
		p.subReads = 0
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.form.Submit {
		p.submits++
	}
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	p.date = ""
	return p.reloadErr
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	if selector != p.form.Challenge {
		return "", errors.New("no such element")
	}
	return p.challenge, ctx.Err()
}

func (p *fakePage) CaptureElement(ctx context.Context, selector string) ([]byte, error) {
	return []byte("png:" + selector), ctx.Err()
}

func (p *fakePage) Snapshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots++
	return []byte("full-page"), ctx.Err()
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePage) currentDate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.date
}

// scriptedSolver reads the fake page's challenge and fails for the listed dates.
type scriptedSolver struct {
	mu     sync.Mutex
	failOn map[string]bool
	calls  int
}

func (s *scriptedSolver) Name() string { return "scripted" }

func (s *scriptedSolver) Solve(ctx context.Context, src schemas.ChallengeSource) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	page := src.(*fakePage)
	if s.failOn[page.currentDate()] {
		return "", errors.New("challenge unreadable")
	}
	return src.Text(ctx, page.form.Challenge)
}
