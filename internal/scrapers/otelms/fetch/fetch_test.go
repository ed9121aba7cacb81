package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"otelms-backend/internal/components/browser"
	"otelms-backend/internal/components/browser/browsertest"
	"otelms-backend/internal/components/cache"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/errs"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

const base = "https://andes.otelms.com"

func newTestFetcher(t *testing.T, page browser.Page, tel telemetry.API) *Fetcher {
	f, err := NewFetcher(page, cache.NewMemoryStore(64, time.Hour), Options{
		BaseURL:      base,
		TTL:          time.Hour,
		ReadyTimeout: time.Millisecond,
	}, tel)
	require.NoError(t, err)
	return f
}

func TestURLAndKey(t *testing.T) {
	f := newTestFetcher(t, browsertest.New(), telemetry.NoopAPI{})

	calendar, err := f.URL(PageCalendar, Params{Query: url.Values{"date": {"2026-01-10"}}})
	require.NoError(t, err)
	require.Equal(t, base+"/reservation_c2/calendar?date=2026-01-10", calendar)

	folio, err := f.URL(PageFolio, Params{ID: "22796"})
	require.NoError(t, err)
	require.Equal(t, base+"/reservation_c2/folio/22796/1", folio)

	_, err = f.URL(PageGuestCard, Params{})
	require.Error(t, err)

	require.Equal(
		t,
		Key("https://andes.otelms.com:443/reservation_c2/calendar?date=2026-01-10&b=1"),
		Key("https://ANDES.otelms.com/reservation_c2/calendar?b=1&date=2026-01-10#top"),
	)
}

func TestFetchUsesCache(t *testing.T) {
	page := browsertest.New()
	page.Documents[base+"/reservation_c2/folio/22796/1"] = browsertest.Document{
		HTML: `<html><body><div class="panel"><h2>Servicios</h2></div></body></html>`,
	}
	f := newTestFetcher(t, page, telemetry.NoopAPI{})
	ctx := context.Background()

	first, err := f.Fetch(ctx, PageFolio, Params{ID: "22796"})
	require.NoError(t, err)
	require.Contains(t, first, "Servicios")

	second, err := f.Fetch(ctx, PageFolio, Params{ID: "22796"})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, page.CallsWithPrefix("navigate "))

	require.NoError(t, f.Invalidate(ctx, PageFolio, Params{ID: "22796"}))
	_, err = f.Fetch(ctx, PageFolio, Params{ID: "22796"})
	require.NoError(t, err)
	require.Equal(t, 2, page.CallsWithPrefix("navigate "))
}

func TestFetchReadyTimeoutIsSoft(t *testing.T) {
	page := browsertest.New()
	page.Documents[base+"/reservation_c2/calendar"] = browsertest.Document{
		HTML: `<html><body><p>still loading</p></body></html>`,
	}
	rec := &telemetry.Recorder{}
	f := newTestFetcher(t, page, rec)

	html, err := f.Fetch(context.Background(), PageCalendar, Params{})
	require.NoError(t, err)
	require.Contains(t, html, "still loading")
	require.Equal(t, 1, rec.Count("warning", "fetch: fetcher.wait-ready"))
}

func TestFetchDetectsExpiredSession(t *testing.T) {
	page := browsertest.New()
	page.Documents[base+"/reservation_c2/calendar"] = browsertest.Document{RedirectTo: base + "/login/"}
	page.Documents[base+"/login/"] = browsertest.Document{HTML: `<form id="login"></form>`}
	store := cache.NewMemoryStore(8, time.Hour)
	f, err := NewFetcher(page, store, Options{BaseURL: base, TTL: time.Hour, ReadyTimeout: time.Millisecond}, telemetry.NoopAPI{})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), PageCalendar, Params{})
	require.ErrorIs(t, err, errs.ErrAuthentication)
	require.Equal(t, 0, store.Len(), "a login page must never be cached")
}

func TestFetchNavigationFailure(t *testing.T) {
	page := browsertest.New()
	page.NavigateErr = errors.New("net::ERR_CONNECTION_RESET")
	f := newTestFetcher(t, page, telemetry.NoopAPI{})

	_, err := f.Fetch(context.Background(), PageCalendar, Params{})
	require.ErrorIs(t, err, errs.ErrNetwork)
}

const folioWithDialogs = `<html><body>
	<div class="panel"><a id="edit_reservation">Editar</a></div>
	<div class="modal-dialog"><form id="paymentform"><input id="amount" value="10"></form></div>
</body></html>`

const accommodationDialogHTML = `<div class="modal-dialog"><form id="modalform"><input id="datein" value="2026-01-10"></form></div>`

func TestAccommodationModal(t *testing.T) {
	page := browsertest.New()
	page.Documents[base+"/reservation_c2/folio/22796/1"] = browsertest.Document{HTML: folioWithDialogs}
	page.OnClick["#edit_reservation"] = accommodationDialogHTML
	f := newTestFetcher(t, page, telemetry.NoopAPI{})
	ctx := context.Background()

	html, err := f.AccommodationModal(ctx, "22796")
	require.NoError(t, err)
	require.Contains(t, html, `id="modalform"`)
	require.NotContains(t, html, "paymentform", "the other dialog on the page must not be picked")
	require.Equal(t, "escape", page.Calls[len(page.Calls)-1])

	// the dialog was dismissed, the page is back to its original state
	content, err := page.Content(ctx)
	require.NoError(t, err)
	require.False(t, strings.Contains(content, "modalform"))

	again, err := f.AccommodationModal(ctx, "22796")
	require.NoError(t, err)
	require.Equal(t, html, again)
	require.Equal(t, 1, page.CallsWithPrefix("click "))
}

func TestAccommodationModalDialogMissing(t *testing.T) {
	page := browsertest.New()
	page.Documents[base+"/reservation_c2/folio/22796/1"] = browsertest.Document{HTML: folioWithDialogs}
	f := newTestFetcher(t, page, telemetry.NoopAPI{})

	_, err := f.AccommodationModal(context.Background(), "22796")
	require.ErrorIs(t, err, errs.ErrNetwork)
	require.Equal(t, 1, page.CallsWithPrefix("escape"), "a click must always be followed by a dismiss")
}

func TestAccommodationModalNeedsInteractivePage(t *testing.T) {
	f := newTestFetcher(t, browser.NewHTTP(resty.New()), telemetry.NoopAPI{})

	_, err := f.AccommodationModal(context.Background(), "22796")
	require.ErrorIs(t, err, browser.ErrUnsupported)
}

func TestReservationModal(t *testing.T) {
	page := browsertest.New()
	query := url.Values{"date": {"2026-01-10"}}
	page.Documents[base+"/reservation_c2/calendar?date=2026-01-10"] = browsertest.Document{
		HTML: `<html><body><table class="calendar_table"><tr><td><div class="calendar_item" resid="22796">R</div></td></tr></table></body></html>`,
	}
	page.OnClick["div[resid='22796']"] = `<div class="modal-content"><h2 class="nameofgroup">Reserva 22796</h2></div>`
	f := newTestFetcher(t, page, telemetry.NoopAPI{})

	html, err := f.ReservationModal(context.Background(), "22796", query)
	require.NoError(t, err)
	require.Contains(t, html, "Reserva 22796")
	require.Equal(t, 1, page.CallsWithPrefix("escape"))

	_, err = f.ReservationModal(context.Background(), "99999", query)
	require.ErrorIs(t, err, errs.ErrNetwork)
}

func TestInvalidateDropsReservationModals(t *testing.T) {
	page := browsertest.New()
	query := url.Values{"date": {"2026-01-10"}}
	page.Documents[base+"/reservation_c2/calendar?date=2026-01-10"] = browsertest.Document{
		HTML: `<html><body><table class="calendar_table"><tr><td><div class="calendar_item" resid="22796">R</div></td></tr></table></body></html>`,
	}
	page.OnClick["div[resid='22796']"] = `<div class="modal-content"><h2 class="nameofgroup">Reserva 22796</h2></div>`
	f := newTestFetcher(t, page, telemetry.NoopAPI{})
	ctx := context.Background()

	_, err := f.ReservationModal(ctx, "22796", query)
	require.NoError(t, err)
	_, err = f.ReservationModal(ctx, "22796", query)
	require.NoError(t, err)
	require.Equal(t, 1, page.CallsWithPrefix("click "))

	require.NoError(t, f.Invalidate(ctx, PageCalendar, Params{Query: query}))
	_, err = f.ReservationModal(ctx, "22796", query)
	require.NoError(t, err)
	require.Equal(t, 2, page.CallsWithPrefix("click "))
}

func TestReservationModalRejectsInvalidID(t *testing.T) {
	testCases := []string{"", "22796']", "22796 or 1", "abc"}

	for _, id := range testCases {
		t.Run(id, func(t *testing.T) {
			page := browsertest.New()
			f := newTestFetcher(t, page, telemetry.NoopAPI{})

			_, err := f.ReservationModal(context.Background(), id, url.Values{})
			require.ErrorContains(t, err, "invalid reservation id")
			require.Empty(t, page.Calls)
		})
	}
}
