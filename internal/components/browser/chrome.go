package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"otelms-backend/internal/components/telemetry"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const report_chrome = "browser.chrome"

type ChromeOptions struct {
	Headless  bool
	UserAgent string
	// ActionTimeout bounds every single browser action (navigate, click, read).
	ActionTimeout time.Duration
}

// Chrome is a Page backed by a chromedp tab.
type Chrome struct {
	tab           context.Context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	actionTimeout time.Duration
	tel           telemetry.API
}

// StartChrome launches the browser process and opens a single tab.
func StartChrome(ctx context.Context, opts ChromeOptions, tel telemetry.API) (*Chrome, error) {
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	// the browser must outlive the ctx that started it, only Close stops it
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tab, cancelTab := chromedp.NewContext(
		allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			tel.ReportWarning(report_chrome, fmt.Sprintf(format, args...))
		}),
	)

	// starts the browser
	err := chromedp.Run(tab)
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	timeout := opts.ActionTimeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}

	return &Chrome{
		tab:           tab,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		actionTimeout: timeout,
		tel:           tel,
	}, nil
}

func (c *Chrome) Interactive() bool {
	return true
}

// run executes actions on the tab, bounded by both ctx and timeout.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, c.actionTimeout, chromedp.Navigate(url))
}

func (c *Chrome) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := c.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Chrome) Content(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, c.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var location string
	err := c.run(ctx, c.actionTimeout, chromedp.Location(&location))
	return location, err
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, c.actionTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (c *Chrome) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := c.run(ctx, c.actionTimeout, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	return html, err
}

func (c *Chrome) PressEscape(ctx context.Context) error {
	return c.run(ctx, c.actionTimeout, chromedp.KeyEvent(kb.Escape))
}

func (c *Chrome) AddCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, cookie := range cookies {
		params = append(params, &network.CookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
		})
	}
	return c.run(ctx, c.actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

func (c *Chrome) Close() error {
	c.cancelTab()
	c.cancelAlloc()
	return nil
}
