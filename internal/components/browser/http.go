package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// HTTP is a Page that fetches documents with plain GET requests. It shares
// the resty client (and therefore the cookie jar) of whoever constructed
// it, so a session established over HTTP is visible here without copying.
type HTTP struct {
	client   *resty.Client
	location string
	body     []byte
	doc      *goquery.Document
}

func NewHTTP(client *resty.Client) *HTTP {
	return &HTTP{client: client}
}

func (h *HTTP) Interactive() bool {
	return false
}

func (h *HTTP) Navigate(ctx context.Context, target string) error {
	res, err := h.client.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return fmt.Errorf("http page: get %s: %w", target, err)
	}
	if res.IsError() {
		return fmt.Errorf("http page: get %s: status %d", target, res.StatusCode())
	}

	h.body = res.Body()
	h.doc = nil
	h.location = target
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		h.location = res.RawResponse.Request.URL.String()
	}
	return nil
}

func (h *HTTP) document() (*goquery.Document, error) {
	if h.doc != nil {
		return h.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(h.body))
	if err != nil {
		return nil, err
	}
	h.doc = doc
	return doc, nil
}

// WaitForSelector does not wait, a server rendered document is either
// complete or it is not.
func (h *HTTP) WaitForSelector(_ context.Context, selector string, _ time.Duration) (bool, error) {
	doc, err := h.document()
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (h *HTTP) Content(context.Context) (string, error) {
	return string(h.body), nil
}

func (h *HTTP) Location(context.Context) (string, error) {
	return h.location, nil
}

func (h *HTTP) Click(context.Context, string) error {
	return ErrUnsupported
}

func (h *HTTP) OuterHTML(_ context.Context, selector string) (string, error) {
	doc, err := h.document()
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("http page: no node matches %q", selector)
	}
	return goquery.OuterHtml(sel)
}

func (h *HTTP) PressEscape(context.Context) error {
	return ErrUnsupported
}

func (h *HTTP) AddCookies(_ context.Context, cookies []Cookie) error {
	jar := h.client.GetClient().Jar
	if jar == nil {
		return fmt.Errorf("http page: client has no cookie jar")
	}
	for _, c := range cookies {
		u := &url.URL{Scheme: "https", Host: c.Domain, Path: c.Path}
		jar.SetCookies(u, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}})
	}
	return nil
}

func (h *HTTP) Close() error {
	return nil
}
