// Package calendar turns the otelms reservation calendar into categories
// and per-day room cells.
//
// The calendar encodes dates only by position: grid cells carry an opaque
// day_id and the month headers above the grid carry the dates. Rooms are
// split the same way between the desk skeleton (ids) and the room legend
// (names and numbers). Both lookups are built completely before any cell
// is classified.
package calendar

import (
	"time"

	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// skeleton is the set of selectors of which at least one must exist for a
// document to be a calendar at all.
const skeleton = "table.calendar_table, table#desk, td.calendar_td, .calendar_month"

type Calendar struct {
	Categories  []RoomCategory `json:"categories"`
	Cells       []Cell         `json:"cells"`
	Range       DateRange      `json:"date_range"`
	ExtractedAt time.Time      `json:"extracted_at"`
}

// Occupied returns only the occupied cells.
func (c Calendar) Occupied() []Cell {
	return Occupied(c.Cells)
}

func (c Calendar) ReservationIDs() []string {
	return ReservationIDs(c.Cells)
}

// ParseDocument runs the two lookups and the classifier over doc.
func ParseDocument(doc *goquery.Document, clock chrono.API, tel telemetry.API) (Calendar, error) {
	tel = telemetry.NewScopedAPI("calendar", tel)

	if doc.Find(skeleton).Length() == 0 {
		tel.ReportBroken(report_cells_classify, "document has no calendar skeleton")
		return Calendar{}, errs.Parsing(nil, "calendar: no calendar skeleton in document")
	}

	dates := BuildDateMapping(doc, tel)
	rooms := ResolveRooms(doc, tel)
	cells := ClassifyCells(doc, dates, rooms, tel)

	return Calendar{
		Categories:  rooms.Categories,
		Cells:       cells,
		Range:       dates.Range(),
		ExtractedAt: clock.Now(),
	}, nil
}

func Parse(markup string, clock chrono.API, tel telemetry.API) (Calendar, error) {
	doc, err := htmlutil.Parse(markup)
	if err != nil {
		return Calendar{}, errs.Parsing(err, "calendar: read markup")
	}
	return ParseDocument(doc, clock, tel)
}

// VisibleReservationIDs lists every distinct resid on the page, including
// blocks that are not inside an addressable grid cell.
func VisibleReservationIDs(markup string) ([]string, error) {
	doc, err := htmlutil.Parse(markup)
	if err != nil {
		return nil, errs.Parsing(err, "calendar: read markup")
	}
	seen := map[string]bool{}
	ids := []string{}
	doc.Find("div[resid]").Each(func(_ int, s *goquery.Selection) {
		id := htmlutil.Clean(s.AttrOr("resid", ""))
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	})
	return ids, nil
}
