package calendar

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/pkg/htmlutil"
	"otelms-backend/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_cells_classify = "cells.classify"
	report_cells_status   = "cells.reservation-status"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusLocked    Status = "locked"
	StatusOccupied  Status = "occupied"
)

// ReservationStatus is the lifecycle stage otelms attaches to a reservation.
type ReservationStatus int

const (
	ReservationUnknown ReservationStatus = iota
	ReservationBooked
	ReservationCheckedIn
	ReservationCheckedOut
)

func (s ReservationStatus) String() string {
	switch s {
	case ReservationBooked:
		return "booked"
	case ReservationCheckedIn:
		return "checked-in"
	case ReservationCheckedOut:
		return "checked-out"
	}
	return "unknown"
}

// ReservationStatusFromWord maps the heading words of the site
// ("Reserva", "Alojamiento", "Salida") to a status.
func ReservationStatusFromWord(word string) ReservationStatus {
	switch textutil.NormalizeLabel(word) {
	case "reserva":
		return ReservationBooked
	case "alojamiento":
		return ReservationCheckedIn
	case "salida":
		return ReservationCheckedOut
	}
	return ReservationUnknown
}

// ReservationSummary is what a calendar cell tells about the reservation
// occupying it. Fields the tooltip did not carry are left empty.
type ReservationSummary struct {
	ID         string            `json:"reservation_id"`
	Status     ReservationStatus `json:"reservation_status,omitempty"`
	GuestName  string            `json:"guest_name,omitempty"`
	Source     string            `json:"source,omitempty"`
	CheckIn    string            `json:"check_in,omitempty"`
	CheckOut   string            `json:"check_out,omitempty"`
	Balance    string            `json:"balance,omitempty"`
	CreatedAt  string            `json:"created_at,omitempty"`
	GuestCount int               `json:"guest_count,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Email      string            `json:"email,omitempty"`
	User       string            `json:"user,omitempty"`
	Comments   string            `json:"comments,omitempty"`
}

// BalanceAmount is Balance as a number.
func (r ReservationSummary) BalanceAmount() (float64, bool) {
	if r.Balance == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(r.Balance, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Cell is one room on one day.
type Cell struct {
	RoomID       string              `json:"room_id"`
	RoomNumber   string              `json:"room_number"`
	CategoryID   string              `json:"category_id,omitempty"`
	CategoryName string              `json:"category_name,omitempty"`
	DayID        string              `json:"day_id"`
	Date         string              `json:"date"`
	Status       Status              `json:"status"`
	Availability *int                `json:"availability,omitempty"`
	Reservation  *ReservationSummary `json:"reservation,omitempty"`
}

var (
	guestPattern      = regexp.MustCompile(`Huésped:\s*([^<]+)`)
	checkInPattern    = regexp.MustCompile(`Llegada:\s*(\d{4}-\d{2}-\d{2})`)
	checkOutPattern   = regexp.MustCompile(`Salida:\s*(\d{4}-\d{2}-\d{2})`)
	balancePattern    = regexp.MustCompile(`Balance:\s*([+-]?\d+\.?\d*)`)
	sourcePattern     = regexp.MustCompile(`Reserva .+?,\s*([^<]+)`)
	createdPattern    = regexp.MustCompile(`(?i)fecha de creación:\s*(\d{4}-\d{2}-\d{2}\s\d{2}:\d{2}:\d{2})`)
	guestCountPattern = regexp.MustCompile(`Cantidad de huéspedes:\s*(\d+)`)
	phonePattern      = regexp.MustCompile(`Teléfono:\s*([^<]*)`)
	emailPattern      = regexp.MustCompile(`Email:\s*([^<]*)`)
	userPattern       = regexp.MustCompile(`Usuario:\s*([^<]*)`)
	commentsPattern   = regexp.MustCompile(`Comentarios:\s*(.*?)<`)
)

// tooltip is the un-escaped data-title blob of a reservation block. Every
// accessor is independent, a pattern that does not match only leaves its
// own field unset.
type tooltip string

func (t tooltip) match(pattern *regexp.Regexp) (string, bool) {
	m := pattern.FindStringSubmatch(string(t))
	if m == nil {
		return "", false
	}
	value := strings.TrimSpace(m[1])
	return value, value != ""
}

func (t tooltip) Guest() (string, bool)     { return t.match(guestPattern) }
func (t tooltip) CheckIn() (string, bool)   { return t.match(checkInPattern) }
func (t tooltip) CheckOut() (string, bool)  { return t.match(checkOutPattern) }
func (t tooltip) Balance() (string, bool)   { return t.match(balancePattern) }
func (t tooltip) Source() (string, bool)    { return t.match(sourcePattern) }
func (t tooltip) CreatedAt() (string, bool) { return t.match(createdPattern) }
func (t tooltip) Phone() (string, bool)     { return t.match(phonePattern) }
func (t tooltip) Email() (string, bool)     { return t.match(emailPattern) }
func (t tooltip) User() (string, bool)      { return t.match(userPattern) }
func (t tooltip) Comments() (string, bool)  { return t.match(commentsPattern) }

func (t tooltip) GuestCount() (int, bool) {
	value, ok := t.match(guestCountPattern)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	return n, err == nil
}

func set(dst *string, value string, ok bool) {
	if ok {
		*dst = value
	}
}

// decodeTooltip undoes the extra escaping layers of a data-title blob and
// turns no-break spaces into plain ones so \s in the patterns matches them.
func decodeTooltip(blob string) tooltip {
	for i := 0; i < 3; i++ {
		decoded := html.UnescapeString(blob)
		if decoded == blob {
			break
		}
		blob = decoded
	}
	return tooltip(strings.ReplaceAll(blob, "\u00a0", " "))
}

// ParseTooltip extracts a reservation summary from a data-title blob.
func ParseTooltip(blob string) ReservationSummary {
	t := decodeTooltip(blob)
	summary := ReservationSummary{}

	value, ok := t.Guest()
	set(&summary.GuestName, value, ok)
	value, ok = t.CheckIn()
	set(&summary.CheckIn, value, ok)
	value, ok = t.CheckOut()
	set(&summary.CheckOut, value, ok)
	value, ok = t.Balance()
	set(&summary.Balance, value, ok)
	value, ok = t.Source()
	set(&summary.Source, value, ok)
	value, ok = t.CreatedAt()
	set(&summary.CreatedAt, value, ok)
	value, ok = t.Phone()
	set(&summary.Phone, value, ok)
	value, ok = t.Email()
	set(&summary.Email, value, ok)
	value, ok = t.User()
	set(&summary.User, value, ok)
	value, ok = t.Comments()
	set(&summary.Comments, value, ok)
	if n, ok := t.GuestCount(); ok {
		summary.GuestCount = n
	}
	return summary
}

// bookingName reads the inline "R:<id>, NAME," label of a reservation block.
func bookingName(block *goquery.Selection) (string, bool) {
	text := htmlutil.Text(block.Find("div.calendar_booking_nam").First())
	parts := strings.Split(text, ",")
	if len(parts) < 2 {
		return "", false
	}
	name := strings.TrimSpace(parts[1])
	return name, name != ""
}

func reservationBlock(cell *goquery.Selection) *goquery.Selection {
	return cell.Find("div[resid]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.AttrOr("resid", "")) != ""
	}).First()
}

func extractReservation(cell *goquery.Selection, tel telemetry.API) *ReservationSummary {
	block := reservationBlock(cell)
	if block.Length() == 0 {
		return nil
	}

	summary := ParseTooltip(block.AttrOr("data-title", ""))
	summary.ID = strings.TrimSpace(block.AttrOr("resid", ""))

	if raw, ok := block.Attr("status"); ok && raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			tel.ReportWarning(report_cells_status, "non-numeric status", summary.ID, raw)
		} else {
			summary.Status = ReservationStatus(n)
		}
	}
	if summary.GuestName == "" {
		name, ok := bookingName(block)
		set(&summary.GuestName, name, ok)
	}
	if summary.Source == "" {
		summary.Source = htmlutil.Text(block.Find("div.calendar_booking_info").First())
	}
	return &summary
}

func availability(doc *goquery.Document, categoryID, dayID string) *int {
	if categoryID == "" {
		return nil
	}
	text := htmlutil.Text(doc.Find(fmt.Sprintf("#availability_%s_%s", categoryID, dayID)).First())
	n, ok := textutil.ParseInt(text)
	if !ok {
		return nil
	}
	return &n
}

// ClassifyCells turns every addressable grid cell into a Cell. Category
// summary cells (room_id "0") and cells without a day_id are skipped.
// The result depends only on its inputs, classifying a document twice
// yields the same cells.
func ClassifyCells(doc *goquery.Document, dates DateMapping, rooms RoomLookup, tel telemetry.API) []Cell {
	cells := []Cell{}
	skipped := 0

	doc.Find("td.calendar_td[day_id][room_id]").Each(func(_ int, td *goquery.Selection) {
		roomID := strings.TrimSpace(td.AttrOr("room_id", ""))
		dayID := strings.TrimSpace(td.AttrOr("day_id", ""))
		if roomID == "" || roomID == "0" || dayID == "" || dayID == "0" {
			skipped++
			return
		}

		cell := Cell{
			RoomID:     roomID,
			RoomNumber: "Unknown_" + roomID,
			DayID:      dayID,
			Date:       dates.Date(dayID),
			Status:     StatusAvailable,
			CategoryID: strings.TrimSpace(td.AttrOr("category_id", "")),
		}
		if room, ok := rooms.Room(roomID); ok {
			cell.RoomNumber = room.Number
			cell.CategoryID = room.CategoryID
		}
		if name, ok := rooms.CategoryName(cell.CategoryID); ok {
			cell.CategoryName = name
		}

		cell.Reservation = extractReservation(td, tel)
		switch {
		case cell.Reservation != nil:
			cell.Status = StatusOccupied
		case td.HasClass("bg_padlock"):
			cell.Status = StatusLocked
		}
		cell.Availability = availability(doc, cell.CategoryID, dayID)

		cells = append(cells, cell)
	})

	tel.ReportCount(report_cells_classify, int64(len(cells)))
	if skipped > 0 {
		tel.ReportDebug("skipped summary cells", skipped)
	}
	return cells
}

// Occupied keeps only cells holding a reservation.
func Occupied(cells []Cell) []Cell {
	out := []Cell{}
	for _, c := range cells {
		if c.Status == StatusOccupied {
			out = append(out, c)
		}
	}
	return out
}

// ReservationIDs lists the distinct reservation ids of cells, in the order
// they first appear.
func ReservationIDs(cells []Cell) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, c := range cells {
		if c.Reservation == nil || seen[c.Reservation.ID] {
			continue
		}
		seen[c.Reservation.ID] = true
		ids = append(ids, c.Reservation.ID)
	}
	return ids
}
