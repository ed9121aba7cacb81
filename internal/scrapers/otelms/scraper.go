// Package otelms drives a logged-in otelms session: it fetches the calendar
// and reservation pages and turns them into the calendar and folio models.
package otelms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/browser"
	"otelms-backend/internal/components/cache"
	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/config"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/internal/scrapers/otelms/fetch"
	"otelms-backend/internal/scrapers/otelms/folio"
	"otelms-backend/internal/scrapers/otelms/session"
)

const (
	report_scraper_start   = "scraper.start"
	report_scraper_details = "scraper.reservation-details"
	report_scraper_close   = "scraper.close"
	report_scraper_prune   = "scraper.prune-cache"
)

const memoryCacheSize = 512

type Options struct {
	// BaseURL overrides the hotel url derived from the config.
	BaseURL string
	// ForceRefresh drops the cached copy of every page before fetching it.
	ForceRefresh bool
	// Page is used instead of starting a browser, Close does not close it.
	//
	// note: fault injection point
	Page browser.Page
}

// Scraper is not safe for concurrent use, every call drives the same page.
type Scraper struct {
	cfg   config.Config
	opts  Options
	clock chrono.API
	tel   telemetry.API

	bridge   *session.Bridge
	page     browser.Page
	store    cache.Store
	fetcher  *fetch.Fetcher
	folios   *folio.Aggregator
	loggedIn bool
}

func New(cfg config.Config, opts Options, clock chrono.API, tel telemetry.API) *Scraper {
	assert.NotNil(clock)
	assert.NotNil(tel)
	if opts.BaseURL == "" {
		opts.BaseURL = cfg.BaseURL()
	}
	return &Scraper{
		cfg:   cfg,
		opts:  opts,
		clock: clock,
		tel:   telemetry.NewScopedAPI("otelms", tel),
	}
}

// openStore picks the page cache. A persistent cache drops its expired
// pages on every start.
func (s *Scraper) openStore(ctx context.Context) (cache.Store, error) {
	if s.cfg.CacheDir == "" {
		return cache.NewMemoryStore(memoryCacheSize, s.cfg.CacheTTL()), nil
	}
	store, err := cache.OpenSQLiteStore(s.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	pruned, err := store.Prune(ctx)
	if err != nil {
		s.tel.ReportWarning(report_scraper_prune, err)
	} else {
		s.tel.ReportCount(report_scraper_prune, pruned)
	}
	return store, nil
}

func (s *Scraper) openPage(ctx context.Context) (browser.Page, error) {
	if s.opts.Page != nil {
		return s.opts.Page, nil
	}
	if s.cfg.HttpOnly {
		return browser.NewHTTP(s.bridge.Http), nil
	}
	return browser.StartChrome(ctx, browser.ChromeOptions{
		Headless:      s.cfg.IsHeadless(),
		UserAgent:     s.cfg.UserAgent,
		ActionTimeout: s.cfg.WaitTimeout() * 3,
	}, s.tel)
}

// Start creates the http session, the page and the cache. It is called
// implicitly by every other method and does nothing once started.
func (s *Scraper) Start(ctx context.Context) error {
	if s.fetcher != nil {
		return nil
	}

	bridge, err := session.NewBridge(session.Options{
		BaseURL:           s.opts.BaseURL,
		UserAgent:         s.cfg.UserAgent,
		RetryCount:        3,
		RetryWait:         time.Second,
		RequestsPerSecond: 2,
	}, s.tel)
	if err != nil {
		s.tel.ReportBroken(report_scraper_start, err)
		return err
	}
	s.bridge = bridge

	store, err := s.openStore(ctx)
	if err != nil {
		s.tel.ReportBroken(report_scraper_start, err)
		return err
	}

	page, err := s.openPage(ctx)
	if err != nil {
		store.Close()
		s.tel.ReportBroken(report_scraper_start, err)
		return errs.Network(err, "otelms: start page")
	}

	fetcher, err := fetch.NewFetcher(page, store, fetch.Options{
		BaseURL:      s.opts.BaseURL,
		TTL:          s.cfg.CacheTTL(),
		ReadyTimeout: s.cfg.WaitTimeout(),
	}, s.tel)
	if err != nil {
		store.Close()
		if s.opts.Page == nil {
			page.Close()
		}
		return err
	}

	s.store = store
	s.page = page
	s.fetcher = fetcher
	s.folios = folio.NewAggregator(fetcher, s.tel)
	return nil
}

// Login posts the credentials and hands the session cookies to the page.
func (s *Scraper) Login(ctx context.Context) error {
	err := s.Start(ctx)
	if err != nil {
		return err
	}
	err = s.bridge.Login(ctx, session.Credentials{
		Username: s.cfg.Username,
		Password: s.cfg.Password,
	})
	if err != nil {
		return err
	}
	err = s.bridge.Sync(ctx, s.page)
	if err != nil {
		return err
	}
	s.loggedIn = true
	return nil
}

func (s *Scraper) ensureLogin(ctx context.Context) error {
	if s.loggedIn {
		return nil
	}
	return s.Login(ctx)
}

func calendarParams(date string) fetch.Params {
	if date == "" {
		return fetch.Params{}
	}
	return fetch.Params{Query: url.Values{"date": {date}}}
}

func (s *Scraper) fetch(ctx context.Context, kind fetch.PageKind, params fetch.Params) (string, error) {
	if s.opts.ForceRefresh {
		err := s.fetcher.Invalidate(ctx, kind, params)
		if err != nil {
			return "", err
		}
	}
	return s.fetcher.Fetch(ctx, kind, params)
}

func (s *Scraper) calendarHTML(ctx context.Context, date string) (string, error) {
	err := s.ensureLogin(ctx)
	if err != nil {
		return "", err
	}
	return s.fetch(ctx, fetch.PageCalendar, calendarParams(date))
}

// Calendar is the occupancy grid around date (YYYY-MM-DD), or around today
// when date is empty.
func (s *Scraper) Calendar(ctx context.Context, date string) (calendar.Calendar, error) {
	html, err := s.calendarHTML(ctx, date)
	if err != nil {
		return calendar.Calendar{}, err
	}
	return calendar.Parse(html, s.clock, s.tel)
}

func (s *Scraper) Categories(ctx context.Context, date string) ([]calendar.RoomCategory, error) {
	cal, err := s.Calendar(ctx, date)
	if err != nil {
		return nil, err
	}
	return cal.Categories, nil
}

// ReservationIDs lists every reservation visible on the calendar page.
func (s *Scraper) ReservationIDs(ctx context.Context, date string) ([]string, error) {
	html, err := s.calendarHTML(ctx, date)
	if err != nil {
		return nil, err
	}
	return calendar.VisibleReservationIDs(html)
}

func (s *Scraper) ReservationDetail(ctx context.Context, reservationID string) (folio.Detail, error) {
	err := s.ensureLogin(ctx)
	if err != nil {
		return folio.Detail{}, err
	}
	if s.opts.ForceRefresh {
		err = s.fetcher.Invalidate(ctx, fetch.PageFolio, fetch.Params{ID: reservationID})
		if err != nil {
			return folio.Detail{}, err
		}
	}
	return s.folios.Aggregate(ctx, reservationID)
}

// ReservationDetails aggregates each reservation in turn. A failure that
// concerns the whole session stops the batch and is returned along with the
// details gathered so far, any other failure skips that reservation.
func (s *Scraper) ReservationDetails(ctx context.Context, reservationIDs []string) ([]folio.Detail, error) {
	out := []folio.Detail{}
	for _, id := range reservationIDs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		detail, err := s.ReservationDetail(ctx, id)
		if errs.Fatal(err) {
			s.tel.ReportBroken(report_scraper_details, id, err)
			return out, err
		}
		if err != nil {
			s.tel.ReportWarning(report_scraper_details, id, err)
			continue
		}
		out = append(out, detail)
	}
	s.tel.ReportCount(report_scraper_details, int64(len(out)))
	return out, nil
}

// ReservationModal opens the calendar quick-view of a reservation. It needs
// a browser page, over plain http it fails with browser.ErrUnsupported.
func (s *Scraper) ReservationModal(ctx context.Context, reservationID, date string) (folio.ModalSummary, error) {
	err := s.ensureLogin(ctx)
	if err != nil {
		return folio.ModalSummary{}, err
	}
	params := calendarParams(date)
	if s.opts.ForceRefresh {
		err = s.fetcher.Invalidate(ctx, fetch.PageCalendar, params)
		if err != nil {
			return folio.ModalSummary{}, err
		}
	}
	html, err := s.fetcher.ReservationModal(ctx, reservationID, params.Query)
	if err != nil {
		return folio.ModalSummary{}, fmt.Errorf("otelms: reservation modal %s: %w", reservationID, err)
	}
	return folio.ParseReservationModal(html)
}

// Close releases the page and the cache.
func (s *Scraper) Close() error {
	var err error
	if s.page != nil && s.opts.Page == nil {
		err = errors.Join(err, s.page.Close())
	}
	if s.store != nil {
		err = errors.Join(err, s.store.Close())
	}
	if err != nil {
		s.tel.ReportWarning(report_scraper_close, err)
	}
	s.page, s.store, s.fetcher, s.folios = nil, nil, nil, nil
	s.loggedIn = false
	return err
}
