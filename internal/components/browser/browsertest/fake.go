// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otelms-backend/internal/components/browser"

	"github.com/PuerkitoBio/goquery"
)

type Document struct {
	HTML string
	// RedirectTo makes navigating to this document land on another url,
	// like a session that expired and bounced to the login page.
	RedirectTo string
}

// Page serves fixed documents by url. Clicking a selector listed in
// OnClick appends the given markup to the body, PressEscape removes it.
type Page struct {
	Documents map[string]Document
	OnClick   map[string]string
	// NavigateErr is returned by every Navigate when set.
	NavigateErr error

	Calls   []string
	Cookies []browser.Cookie

	location string
	html     string
	overlay  string
}

func New() *Page {
	return &Page{
		Documents: map[string]Document{},
		OnClick:   map[string]string{},
	}
}

func (p *Page) Interactive() bool {
	return true
}

func (p *Page) record(format string, args ...any) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

// CallsWithPrefix counts recorded calls starting with prefix, e.g. "navigate ".
func (p *Page) CallsWithPrefix(prefix string) int {
	n := 0
	for _, c := range p.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (p *Page) current() string {
	if p.overlay == "" {
		return p.html
	}
	if idx := strings.LastIndex(p.html, "</body>"); idx >= 0 {
		return p.html[:idx] + p.overlay + p.html[idx:]
	}
	return p.html + p.overlay
}

func (p *Page) document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.current()))
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.record("navigate %s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	doc, ok := p.Documents[url]
	if !ok {
		return fmt.Errorf("browsertest: no document for %s", url)
	}
	p.location = url
	p.overlay = ""
	if doc.RedirectTo != "" {
		p.location = doc.RedirectTo
		doc = p.Documents[doc.RedirectTo]
	}
	p.html = doc.HTML
	return nil
}

func (p *Page) WaitForSelector(_ context.Context, selector string, _ time.Duration) (bool, error) {
	p.record("wait %s", selector)
	doc, err := p.document()
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (p *Page) Content(context.Context) (string, error) {
	p.record("content")
	return p.current(), nil
}

func (p *Page) Location(context.Context) (string, error) {
	return p.location, nil
}

func (p *Page) Click(_ context.Context, selector string) error {
	p.record("click %s", selector)
	doc, err := p.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("browsertest: nothing to click at %s", selector)
	}
	p.overlay = p.OnClick[selector]
	return nil
}

func (p *Page) OuterHTML(_ context.Context, selector string) (string, error) {
	p.record("outer %s", selector)
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("browsertest: no node matches %s", selector)
	}
	return goquery.OuterHtml(sel)
}

func (p *Page) PressEscape(context.Context) error {
	p.record("escape")
	p.overlay = ""
	return nil
}

func (p *Page) AddCookies(_ context.Context, cookies []browser.Cookie) error {
	p.record("cookies %d", len(cookies))
	p.Cookies = append(p.Cookies, cookies...)
	return nil
}

func (p *Page) Close() error {
	p.record("close")
	return nil
}
