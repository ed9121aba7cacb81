// Package folio assembles the full detail of one reservation out of the
// folio page, the guest card and the accommodation edit dialog.
//
// Each section is parsed on its own and is optional: a missing panel or a
// malformed row leaves that section empty without affecting the others.
// A folio page that cannot be fetched at all fails the aggregation, the
// guest card and the dialog are optional.
package folio

import (
	"context"
	"errors"
	"fmt"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/browser"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/internal/scrapers/otelms/fetch"
	"otelms-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_aggregator_fetch_folio = "aggregator.fetch-folio"
	report_aggregator_fetch_guest = "aggregator.fetch-guest-card"
	report_aggregator_fetch_modal = "aggregator.fetch-accommodation-modal"
	report_aggregator_section     = "aggregator.section"
)

// Section names, as listed in Detail.Missing.
const (
	SectionHeader        = "header"
	SectionBasicInfo     = "basic_info"
	SectionGuest         = "guest"
	SectionAccommodation = "accommodation"
	SectionResidents     = "residents"
	SectionServices      = "services"
	SectionPayments      = "payments"
	SectionCards         = "cards"
	SectionCars          = "cars"
	SectionNotes         = "notes"
	SectionDailyTariffs  = "daily_tariffs"
	SectionChangeLog     = "change_log"
)

var sectionNames = []string{
	SectionHeader, SectionBasicInfo, SectionGuest, SectionAccommodation,
	SectionResidents, SectionServices, SectionPayments, SectionCards,
	SectionCars, SectionNotes, SectionDailyTariffs, SectionChangeLog,
}

type Detail struct {
	ReservationID string                     `json:"reservation_id"`
	Status        calendar.ReservationStatus `json:"status,omitempty"`
	GuestID       string                     `json:"guest_id,omitempty"`

	Guest         Guest         `json:"guest"`
	BasicInfo     BasicInfo     `json:"basic_info"`
	Accommodation Accommodation `json:"accommodation"`

	Residents    []Resident    `json:"residents"`
	Services     []Service     `json:"services"`
	Payments     []Payment     `json:"payments"`
	Cards        []Card        `json:"cards"`
	Cars         []Car         `json:"cars"`
	Notes        []Note        `json:"notes"`
	DailyTariffs []DailyTariff `json:"daily_tariffs"`
	ChangeLog    []ChangeLog   `json:"change_log"`

	ServicesTotal float64 `json:"services_total"`
	PaymentsTotal float64 `json:"payments_total"`
	// Balance is the folio's own "Saldo:" when shown, services minus
	// payments otherwise.
	Balance float64 `json:"balance"`

	// Missing lists the sections that were not found in any document.
	Missing []string `json:"missing,omitempty"`
}

// Empty reports whether no section at all was found.
func (d Detail) Empty() bool {
	return len(d.Missing) >= len(sectionNames)
}

// Documents are the raw pages a Detail is assembled from, any of them may
// be empty.
type Documents struct {
	Folio              string
	GuestCard          string
	AccommodationModal string
}

func parseOrEmpty(markup string, tel telemetry.API, which string) *goquery.Selection {
	doc, err := htmlutil.Parse(markup)
	if err != nil {
		tel.ReportWarning(report_aggregator_section, which, err)
		doc, _ = htmlutil.Parse("")
	}
	return doc.Selection
}

type assembler struct {
	detail  Detail
	missing []string
}

func (a *assembler) found(section string, ok bool) {
	if !ok {
		a.missing = append(a.missing, section)
	}
}

// Assemble merges the documents into a Detail. It never fails: given no
// recognizable panel at all it returns every list empty and every amount
// at zero.
func Assemble(reservationID string, docs Documents, tel telemetry.API) Detail {
	folio := parseOrEmpty(docs.Folio, tel, "folio")
	guestCard := parseOrEmpty(docs.GuestCard, tel, "guest card")
	modal := parseOrEmpty(docs.AccommodationModal, tel, "accommodation modal")

	a := &assembler{detail: Detail{ReservationID: reservationID}}
	d := &a.detail

	header := ParseHeader(folio)
	a.found(SectionHeader, header.ReservationID != "" || header.Balance != nil)
	if d.ReservationID == "" {
		d.ReservationID = header.ReservationID
	}
	d.Status = header.Status
	d.GuestID, _ = GuestID(context.Background(), folio)

	var ok bool
	d.BasicInfo, ok = ParseBasicInfo(folio)
	a.found(SectionBasicInfo, ok)

	guest, ok := ParseGuestCard(guestCard)
	if !ok {
		// some folios embed the guest card panel
		guest, ok = ParseGuestCard(folio)
	}
	d.Guest = guest
	if d.Guest.ID == "" {
		d.Guest.ID = d.GuestID
	}
	a.found(SectionGuest, ok)

	summary, summaryOK := ParseAccommodationSummary(folio)
	form, formOK := ParseAccommodationForm(modal)
	d.Accommodation = merge(summary, form)
	a.found(SectionAccommodation, summaryOK || formOK)

	d.Residents, ok = ParseResidents(folio)
	a.found(SectionResidents, ok)
	d.Services, ok = ParseServices(folio)
	a.found(SectionServices, ok)
	d.Payments, ok = ParsePayments(folio)
	a.found(SectionPayments, ok)
	d.Cards, ok = ParseCards(folio)
	a.found(SectionCards, ok)
	d.Cars, ok = ParseCars(folio)
	a.found(SectionCars, ok)
	d.Notes, ok = ParseNotes(folio)
	a.found(SectionNotes, ok)
	d.DailyTariffs, ok = ParseDailyTariffs(folio)
	a.found(SectionDailyTariffs, ok)
	d.ChangeLog, ok = ParseChangeLog(folio)
	a.found(SectionChangeLog, ok)

	for _, s := range d.Services {
		d.ServicesTotal += s.Total
	}
	for _, p := range d.Payments {
		d.PaymentsTotal += p.Amount
	}
	d.Balance = d.ServicesTotal - d.PaymentsTotal
	if header.Balance != nil {
		d.Balance = *header.Balance
	}

	d.Missing = a.missing
	if len(a.missing) > 0 {
		tel.ReportDebug("sections not found", d.ReservationID, a.missing)
	}
	return a.detail
}

// PageSource is the part of the page fetcher the aggregator needs.
type PageSource interface {
	Fetch(ctx context.Context, kind fetch.PageKind, params fetch.Params) (string, error)
	AccommodationModal(ctx context.Context, reservationID string) (string, error)
}

type Aggregator struct {
	pages PageSource
	tel   telemetry.API
}

func NewAggregator(pages PageSource, tel telemetry.API) *Aggregator {
	assert.NotNil(pages)
	assert.NotNil(tel)
	return &Aggregator{
		pages: pages,
		tel:   telemetry.NewScopedAPI("folio", tel),
	}
}

// tolerate turns a failure on an optional page into an empty document unless
// the session itself was rejected.
func (a *Aggregator) tolerate(reportID string, html string, err error, params ...any) (string, error) {
	if err == nil {
		return html, nil
	}
	if errors.Is(err, errs.ErrAuthentication) {
		a.tel.ReportBroken(reportID, append(params, err)...)
		return "", err
	}
	if errors.Is(err, browser.ErrUnsupported) {
		a.tel.ReportDebug("page source cannot open dialogs", params...)
		return "", nil
	}
	a.tel.ReportWarning(reportID, append(params, err)...)
	return "", nil
}

// Aggregate fetches every page of a reservation and assembles its Detail.
// Any failure to fetch the folio itself is returned, on the other pages only
// errs.ErrAuthentication is.
func (a *Aggregator) Aggregate(ctx context.Context, reservationID string) (Detail, error) {
	docs := Documents{}

	html, err := a.pages.Fetch(ctx, fetch.PageFolio, fetch.Params{ID: reservationID})
	if err != nil {
		if errs.Fatal(err) {
			a.tel.ReportBroken(report_aggregator_fetch_folio, reservationID, err)
		} else {
			a.tel.ReportWarning(report_aggregator_fetch_folio, reservationID, err)
		}
		return Detail{}, fmt.Errorf("folio %s: %w", reservationID, err)
	}
	docs.Folio = html

	if docs.Folio != "" {
		doc := parseOrEmpty(docs.Folio, a.tel, "folio")
		if guestID, ok := GuestID(ctx, doc); ok {
			html, err = a.pages.Fetch(ctx, fetch.PageGuestCard, fetch.Params{ID: guestID})
			docs.GuestCard, err = a.tolerate(report_aggregator_fetch_guest, html, err, reservationID, guestID)
			if err != nil {
				return Detail{}, err
			}
		}
	}

	html, err = a.pages.AccommodationModal(ctx, reservationID)
	docs.AccommodationModal, err = a.tolerate(report_aggregator_fetch_modal, html, err, reservationID)
	if err != nil {
		return Detail{}, err
	}

	return Assemble(reservationID, docs, a.tel), nil
}
