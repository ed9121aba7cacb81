// Package browser is the page capability the scraper drives: one mutable
// page with one navigation state and at most one open dialog.
//
// Two implementations exist. Chrome runs a real headless browser for pages
// that need scripts (dialogs, clicks). HTTP issues plain GETs for pages that
// render server side and reports ErrUnsupported for interactive operations.
package browser

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupported = errors.New("browser: operation not supported by this page")

type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Page is not safe for concurrent use.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitForSelector reports false (and no error) when the timeout elapses
	// before the selector matches.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	Content(ctx context.Context) (string, error)
	// Location is the page's current URL after any redirects.
	Location(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	// OuterHTML returns the markup of the first node matching selector.
	OuterHTML(ctx context.Context, selector string) (string, error)
	PressEscape(ctx context.Context) error
	AddCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}

// Interactive reports whether p can click and dismiss dialogs.
func Interactive(p Page) bool {
	i, ok := p.(interface{ Interactive() bool })
	return ok && i.Interactive()
}
