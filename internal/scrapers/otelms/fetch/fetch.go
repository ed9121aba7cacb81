// Package fetch turns logical otelms pages into raw markup, going through a
// TTL cache and detecting expired sessions on the way.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/browser"
	"otelms-backend/internal/components/cache"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/errs"

	"github.com/PuerkitoBio/purell"
)

const (
	report_fetcher_fetch             = "fetcher.fetch"
	report_fetcher_wait_ready        = "fetcher.wait-ready"
	report_fetcher_accommodation     = "fetcher.accommodation-modal"
	report_fetcher_reservation_modal = "fetcher.reservation-modal"
	report_fetcher_cache             = "fetcher.cache"
	report_fetcher_dismiss           = "fetcher.dismiss-dialog"
)

type PageKind int

const (
	PageCalendar PageKind = iota
	PageFolio
	PageGuestCard
)

type pageSpec struct {
	name  string
	path  string
	ready string
}

var pages = map[PageKind]pageSpec{
	PageCalendar:  {name: "calendar", path: "/reservation_c2/calendar", ready: "table.calendar_table"},
	PageFolio:     {name: "folio", path: "/reservation_c2/folio/%s/1", ready: "div.panel"},
	PageGuestCard: {name: "guest card", path: "/reservation_c2/guestfolio/%s", ready: "div.panel"},
}

func (k PageKind) String() string {
	spec, ok := pages[k]
	if !ok {
		return fmt.Sprintf("PageKind(%d)", int(k))
	}
	return spec.name
}

const (
	editButtonSelector    = "#edit_reservation"
	accommodationDialog   = "div.modal-dialog:has(#modalform)"
	reservationDialog     = "div.modal-content"
	accommodationModalTag = "#accommodation_modal"
	reservationModalTag   = "#reservation_modal"
)

// reservation ids end up inside a css selector
var reservationIDPattern = regexp.MustCompile(`^[0-9]+$`)

// Params are the path id (folio and guest card) and the query string.
type Params struct {
	ID    string
	Query url.Values
}

type Options struct {
	BaseURL      string
	TTL          time.Duration
	ReadyTimeout time.Duration
}

type Fetcher struct {
	page  browser.Page
	cache cache.Store
	base  *url.URL
	ttl   time.Duration
	ready time.Duration
	tel   telemetry.API
}

func NewFetcher(page browser.Page, store cache.Store, opts Options, tel telemetry.API) (*Fetcher, error) {
	assert.NotNil(page)
	assert.NotNil(store)
	assert.NotNil(tel)
	assert.Positive("ttl", opts.TTL)

	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse base url: %w", err)
	}
	ready := opts.ReadyTimeout
	if ready <= 0 {
		ready = time.Second * 10
	}

	return &Fetcher{
		page:  page,
		cache: store,
		base:  base,
		ttl:   opts.TTL,
		ready: ready,
		tel:   telemetry.NewScopedAPI("fetch", tel),
	}, nil
}

// URL is the absolute url of a logical page.
func (f *Fetcher) URL(kind PageKind, params Params) (string, error) {
	spec, ok := pages[kind]
	if !ok {
		return "", fmt.Errorf("fetcher: unknown page kind %d", int(kind))
	}
	path := spec.path
	if strings.Contains(path, "%s") {
		if params.ID == "" {
			return "", fmt.Errorf("fetcher: %s needs an id", spec.name)
		}
		path = fmt.Sprintf(path, url.PathEscape(params.ID))
	}
	u := *f.base
	u.Path = u.Path + path
	u.RawQuery = params.Query.Encode()
	return u.String(), nil
}

// Key is the cache key of a url, normalized so that parameter order and
// default ports do not produce distinct entries.
func Key(rawURL string) string {
	normalized, err := purell.NormalizeURLString(
		rawURL,
		purell.FlagsSafe|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
	if err != nil {
		return rawURL
	}
	return normalized
}

func (f *Fetcher) cached(ctx context.Context, key string) (string, bool) {
	html, ok := f.cache.Get(ctx, key)
	if ok {
		f.tel.ReportDebug("cache hit", key)
	}
	return html, ok
}

func (f *Fetcher) store(ctx context.Context, key, html string) {
	err := f.cache.Set(ctx, key, html, f.ttl)
	if err != nil {
		// a cache that cannot be written only costs a refetch
		f.tel.ReportWarning(report_fetcher_cache, err, key)
	}
}

// Invalidate forgets the cached copy of a page so the next Fetch navigates.
func (f *Fetcher) Invalidate(ctx context.Context, kind PageKind, params Params) error {
	target, err := f.URL(kind, params)
	if err != nil {
		return err
	}
	key := Key(target)
	for _, k := range []string{key, key + accommodationModalTag} {
		err = f.cache.Delete(ctx, k)
		if err != nil {
			return err
		}
	}
	return f.cache.DeletePrefix(ctx, key+reservationModalTag+"/")
}

// navigate loads target, waits for ready (a timeout is not fatal) and
// fails with errs.ErrAuthentication if the page bounced to the login form.
func (f *Fetcher) navigate(ctx context.Context, target, ready string) error {
	err := f.page.Navigate(ctx, target)
	if err != nil {
		f.tel.ReportBroken(report_fetcher_fetch, err, target)
		return errs.Network(err, "fetch: navigate %s", target)
	}

	found, err := f.page.WaitForSelector(ctx, ready, f.ready)
	if err != nil {
		f.tel.ReportWarning(report_fetcher_wait_ready, err, ready)
	} else if !found {
		f.tel.ReportWarning(report_fetcher_wait_ready, "timed out, continuing with partial page", ready, target)
	}

	location, err := f.page.Location(ctx)
	if err != nil {
		return errs.Network(err, "fetch: read location")
	}
	if strings.Contains(location, "/login") {
		f.tel.ReportWarning(report_fetcher_fetch, "session expired", location)
		return errs.Authentication("fetch: %s redirected to %s", target, location)
	}
	return nil
}

// Fetch returns the markup of a logical page, from cache when possible.
func (f *Fetcher) Fetch(ctx context.Context, kind PageKind, params Params) (string, error) {
	target, err := f.URL(kind, params)
	if err != nil {
		return "", err
	}
	key := Key(target)
	if html, ok := f.cached(ctx, key); ok {
		return html, nil
	}

	f.tel.ReportDebug("fetch", kind.String(), target)
	err = f.navigate(ctx, target, pages[kind].ready)
	if err != nil {
		return "", err
	}

	html, err := f.page.Content(ctx)
	if err != nil {
		f.tel.ReportBroken(report_fetcher_fetch, err, target)
		return "", errs.Network(err, "fetch: read content of %s", target)
	}

	f.store(ctx, key, html)
	return html, nil
}

// dismiss closes whatever dialog is open. It runs on every path after a
// click so the next navigation never sees stale UI.
func (f *Fetcher) dismiss(ctx context.Context) {
	err := f.page.PressEscape(ctx)
	if err != nil {
		f.tel.ReportWarning(report_fetcher_dismiss, err)
	}
}

func (f *Fetcher) openDialog(ctx context.Context, reportID, trigger, dialog string) (html string, err error) {
	found, err := f.page.WaitForSelector(ctx, trigger, f.ready)
	if err != nil || !found {
		f.tel.ReportWarning(reportID, "trigger not found", trigger)
		return "", errs.Network(err, "fetch: %s not found", trigger)
	}

	defer f.dismiss(ctx)
	err = f.page.Click(ctx, trigger)
	if err != nil {
		f.tel.ReportBroken(reportID, err, trigger)
		return "", errs.Network(err, "fetch: click %s", trigger)
	}

	found, err = f.page.WaitForSelector(ctx, dialog, f.ready)
	if err != nil || !found {
		f.tel.ReportWarning(reportID, "dialog did not open", dialog)
		return "", errs.Network(err, "fetch: dialog %s did not open", dialog)
	}

	html, err = f.page.OuterHTML(ctx, dialog)
	if err != nil {
		f.tel.ReportBroken(reportID, err, dialog)
		return "", errs.Network(err, "fetch: read dialog %s", dialog)
	}
	return html, nil
}

// AccommodationModal opens the reservation's edit dialog and returns its
// markup. Pages that cannot click return browser.ErrUnsupported.
func (f *Fetcher) AccommodationModal(ctx context.Context, reservationID string) (string, error) {
	if !browser.Interactive(f.page) {
		return "", browser.ErrUnsupported
	}

	target, err := f.URL(PageFolio, Params{ID: reservationID})
	if err != nil {
		return "", err
	}
	key := Key(target) + accommodationModalTag
	if html, ok := f.cached(ctx, key); ok {
		return html, nil
	}

	err = f.navigate(ctx, target, pages[PageFolio].ready)
	if err != nil {
		return "", err
	}
	html, err := f.openDialog(ctx, report_fetcher_accommodation, editButtonSelector, accommodationDialog)
	if err != nil {
		return "", err
	}

	f.store(ctx, key, html)
	return html, nil
}

// ReservationModal opens the quick-view dialog of a reservation block on
// the calendar for the given query (usually a date).
func (f *Fetcher) ReservationModal(ctx context.Context, reservationID string, query url.Values) (string, error) {
	if !browser.Interactive(f.page) {
		return "", browser.ErrUnsupported
	}

	if !reservationIDPattern.MatchString(reservationID) {
		return "", fmt.Errorf("fetch: invalid reservation id %q", reservationID)
	}

	calendarURL, err := f.URL(PageCalendar, Params{Query: query})
	if err != nil {
		return "", err
	}
	key := Key(calendarURL) + reservationModalTag + "/" + reservationID
	if html, ok := f.cached(ctx, key); ok {
		return html, nil
	}

	location, err := f.page.Location(ctx)
	if err != nil || Key(location) != Key(calendarURL) {
		err = f.navigate(ctx, calendarURL, pages[PageCalendar].ready)
		if err != nil {
			return "", err
		}
	}

	trigger := fmt.Sprintf("div[resid='%s']", reservationID)
	html, err := f.openDialog(ctx, report_fetcher_reservation_modal, trigger, reservationDialog)
	if err != nil {
		return "", err
	}

	f.store(ctx, key, html)
	return html, nil
}
