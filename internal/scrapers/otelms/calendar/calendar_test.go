package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fixtureMonth struct {
	title string
	days  []int
}

type fixtureRoom struct {
	id     string
	number string
}

type fixtureCategory struct {
	id    string
	name  string
	rooms []fixtureRoom
	// legend overrides the legend room numbers, nil means one per room
	legend []string
}

type fixtureCell struct {
	class string
	inner string
}

type fixture struct {
	months     []fixtureMonth
	dayIDs     int
	categories []fixtureCategory
	// cells are keyed by "<room_id>/<day_id>"
	cells        map[string]fixtureCell
	availability map[string]int
}

func days(from, to int) []int {
	out := []int{}
	for d := from; d <= to; d++ {
		out = append(out, d)
	}
	return out
}

func dayID(i int) string {
	return strconv.Itoa(1000 + i)
}

func (f fixture) html() string {
	b := strings.Builder{}
	b.WriteString("<html><body>")

	b.WriteString(`<div class="calendar_header">`)
	for _, m := range f.months {
		fmt.Fprintf(&b, `<div class="calendar_month"><div class="calendar_month_title">%s</div>`, m.title)
		for _, d := range m.days {
			fmt.Fprintf(&b, `<div class="calendar_dates"><div class="calendar_date">%d</div><div class="calendar_weekday">lu</div></div>`, d)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)

	for _, c := range f.categories {
		fmt.Fprintf(&b, `<div id="btn_close%s" class="calendar_rooms" catid="%s">`, c.id, c.id)
		if c.name != "" {
			fmt.Fprintf(&b, `<div class="calendar_rooms_dott">%s</div>`, c.name)
		}
		b.WriteString(`</div>`)
		legend := c.legend
		if legend == nil {
			for _, r := range c.rooms {
				legend = append(legend, r.number+" STD")
			}
		}
		for _, number := range legend {
			fmt.Fprintf(&b, `<div class="calendar_num_room btn_close_box%s"><div class="calendar_number_room">%s</div></div>`, c.id, number)
		}
	}

	b.WriteString(`<table id="desk" class="calendar_table">`)
	for _, c := range f.categories {
		fmt.Fprintf(&b, `<tbody class="calendar_tbody my_category"><tr><td category_id="%s" room_id="0">%s</td>`, c.id, c.name)
		for i := 0; i < f.dayIDs; i++ {
			fmt.Fprintf(&b, `<td class="calendar_td" day_id="%s" room_id="0" category_id="%s">`, dayID(i), c.id)
			if n, ok := f.availability[c.id+"/"+dayID(i)]; ok {
				fmt.Fprintf(&b, `<span id="availability_%s_%s">%d</span>`, c.id, dayID(i), n)
			}
			b.WriteString(`</td>`)
		}
		b.WriteString(`</tr></tbody>`)

		for _, r := range c.rooms {
			fmt.Fprintf(&b, `<tbody class="calendar_tbody"><tr><td class="calendar_room" room_id="%s">%s</td>`, r.id, r.number)
			for i := 0; i < f.dayIDs; i++ {
				cell := f.cells[r.id+"/"+dayID(i)]
				fmt.Fprintf(
					&b,
					`<td class="calendar_td %s" day_id="%s" room_id="%s" category_id="%s">%s</td>`,
					cell.class, dayID(i), r.id, c.id, cell.inner,
				)
			}
			b.WriteString(`</tr></tbody>`)
		}
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func (f fixture) doc(t *testing.T) *goquery.Document {
	doc, err := htmlutil.Parse(f.html())
	require.NoError(t, err)
	return doc
}

var singleRoom = []fixtureCategory{{id: "1", name: "Doble", rooms: []fixtureRoom{{id: "11", number: "101"}}}}

func TestBuildDateMappingCountsEveryDay(t *testing.T) {
	testCases := []struct {
		name   string
		months []fixtureMonth
		expect DateRange
	}{
		{
			name:   "single month",
			months: []fixtureMonth{{title: "Enero 2026", days: days(10, 16)}},
			expect: DateRange{StartDate: "2026-01-10", EndDate: "2026-01-16", TotalDays: 7},
		},
		{
			name: "across a year boundary",
			months: []fixtureMonth{
				{title: "Diciembre 2025", days: days(29, 31)},
				{title: "Enero 2026", days: days(1, 3)},
			},
			expect: DateRange{StartDate: "2025-12-29", EndDate: "2026-01-03", TotalDays: 6},
		},
		{
			name: "three months of four days",
			months: []fixtureMonth{
				{title: "Setiembre 2026", days: days(27, 30)},
				{title: "octubre  2026", days: days(1, 4)},
				{title: "November 2026", days: days(1, 4)},
			},
			expect: DateRange{StartDate: "2026-09-27", EndDate: "2026-11-04", TotalDays: 12},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			total := 0
			for _, m := range test.months {
				total += len(m.days)
			}
			rec := &telemetry.Recorder{}
			doc := fixture{months: test.months, dayIDs: total, categories: singleRoom}.doc(t)

			mapping := BuildDateMapping(doc, rec)
			require.Equal(t, total, mapping.Len())
			require.Equal(t, test.expect, mapping.Range())
			require.Zero(t, mapping.Unpaired)
			require.Zero(t, mapping.Unused)
			require.Zero(t, rec.Kinds("warning"))
		})
	}
}

func TestBuildDateMappingSkipsUnreadableMonth(t *testing.T) {
	rec := &telemetry.Recorder{}
	doc := fixture{
		months: []fixtureMonth{
			{title: "Enero 2026", days: days(30, 31)},
			{title: "Mes desconocido", days: days(1, 2)},
			{title: "Febrero 2026", days: days(1, 2)},
		},
		dayIDs:     6,
		categories: singleRoom,
	}.doc(t)

	mapping := BuildDateMapping(doc, rec)

	require.Equal(t, 4, mapping.Len())
	require.Equal(t, "2026-01-30", mapping.Date(dayID(0)))
	require.Equal(t, "2026-02-01", mapping.Date(dayID(2)))
	require.Equal(t, "unknown_date_"+dayID(5), mapping.Date(dayID(5)))
	require.Equal(t, 2, mapping.Unused)
	require.Equal(t, 1, rec.Count("warning", report_datemap_month_title))
	require.Equal(t, 1, rec.Count("warning", report_datemap_mismatch))
}

func TestBuildDateMappingFlagsMissingDayIDs(t *testing.T) {
	rec := &telemetry.Recorder{}
	doc := fixture{
		months:     []fixtureMonth{{title: "Marzo 2026", days: days(1, 4)}},
		dayIDs:     2,
		categories: singleRoom,
	}.doc(t)

	mapping := BuildDateMapping(doc, rec)
	require.Equal(t, 2, mapping.Len())
	require.Equal(t, 2, mapping.Unpaired)
	require.Equal(t, 1, rec.Count("warning", report_datemap_mismatch))
}

func TestBuildDateMappingKeepsPositionOfInvalidDays(t *testing.T) {
	rec := &telemetry.Recorder{}
	doc := fixture{
		months:     []fixtureMonth{{title: "Febrero 2026", days: []int{27, 28, 30, 1}}},
		dayIDs:     4,
		categories: singleRoom,
	}.doc(t)

	mapping := BuildDateMapping(doc, rec)
	require.Equal(t, "2026-02-27", mapping.Date(dayID(0)))
	require.Equal(t, "2026-02-28", mapping.Date(dayID(1)))
	require.Equal(t, "unknown_date_"+dayID(2), mapping.Date(dayID(2)))
	require.Equal(t, "2026-02-01", mapping.Date(dayID(3)))
	require.Equal(t, 3, mapping.Len())
	require.Zero(t, mapping.Unpaired)
	require.Zero(t, mapping.Unused)
	require.Equal(t, 1, rec.Count("warning", report_datemap_day))
}

func TestEmptyDateMapping(t *testing.T) {
	doc, err := htmlutil.Parse(`<table id="desk"></table>`)
	require.NoError(t, err)

	mapping := BuildDateMapping(doc, telemetry.NoopAPI{})
	require.Equal(t, DateRange{StartDate: "Unknown", EndDate: "Unknown", TotalDays: 0}, mapping.Range())
	require.Equal(t, "unknown_date_7", mapping.Date("7"))
}

func TestResolveRooms(t *testing.T) {
	rec := &telemetry.Recorder{}
	doc := fixture{
		months: []fixtureMonth{{title: "Enero 2026", days: days(1, 1)}},
		dayIDs: 1,
		categories: []fixtureCategory{
			{
				id:   "1",
				name: "Doble",
				// desk order is not numeric order
				rooms:  []fixtureRoom{{id: "12", number: "102"}, {id: "3", number: "101"}},
				legend: []string{"101 DBL", "102 DBL"},
			},
			{
				id:     "2",
				legend: []string{"201"},
			},
		},
	}.doc(t)

	lookup := ResolveRooms(doc, rec)

	diff := cmp.Diff([]RoomCategory{
		{
			ID:   "1",
			Name: "Doble",
			Rooms: []Room{
				{ID: "3", Number: "101", CategoryID: "1"},
				{ID: "12", Number: "102", CategoryID: "1"},
			},
		},
		{
			ID:    "2",
			Name:  "Category_2",
			Rooms: []Room{{Number: "201", CategoryID: "2"}},
		},
	}, lookup.Categories)
	require.Empty(t, diff)

	require.Equal(t, "101", lookup.Number("3"))
	require.Equal(t, "99", lookup.Number("99"))
	require.Equal(t, 1, lookup.Unpaired)
	require.Zero(t, lookup.Unused)
	require.Equal(t, 1, rec.Count("warning", report_rooms_mismatch))

	name, ok := lookup.CategoryName("2")
	require.True(t, ok)
	require.Equal(t, "Category_2", name)
}

const exampleTooltip = `Reserva 22796, Booking.com&lt;br&gt;Huésped: JOHN DOE&lt;br&gt;Llegada: 2026-01-10&lt;br&gt;Salida: 2026-01-12&lt;br&gt;Balance: -45.50`

func TestParseTooltip(t *testing.T) {
	testCases := []struct {
		name   string
		blob   string
		expect ReservationSummary
	}{
		{
			name: "labeled fields",
			blob: "Huésped: JOHN DOE<br>Llegada: 2026-01-10<br>Salida: 2026-01-12<br>Balance: -45.50",
			expect: ReservationSummary{
				GuestName: "JOHN DOE",
				CheckIn:   "2026-01-10",
				CheckOut:  "2026-01-12",
				Balance:   "-45.50",
			},
		},
		{
			name: "still entity-escaped",
			blob: "Reserva 22796, Booking.com&lt;br&gt;Huésped: JOHN DOE",
			expect: ReservationSummary{
				GuestName: "JOHN DOE",
				Source:    "Booking.com",
			},
		},
		{
			name: "no-break spaces",
			blob: "Huésped:&nbsp;JOHN DOE<br>Llegada:&nbsp;2026-01-10<br>Salida:\u00a02026-01-12<br>Balance:&amp;nbsp;-45.50",
			expect: ReservationSummary{
				GuestName: "JOHN DOE",
				CheckIn:   "2026-01-10",
				CheckOut:  "2026-01-12",
				Balance:   "-45.50",
			},
		},
		{
			name: "every optional field",
			blob: "Reserva 1, Directo<br>Huésped: ANA<br>Fecha de creación: 2026-01-02 10:11:12<br>" +
				"Cantidad de huéspedes: 3<br>Teléfono: +51 999<br>Email: ana@example.com<br>" +
				"Usuario: recepcion<br>Comentarios: late arrival<br>",
			expect: ReservationSummary{
				GuestName:  "ANA",
				Source:     "Directo",
				CreatedAt:  "2026-01-02 10:11:12",
				GuestCount: 3,
				Phone:      "+51 999",
				Email:      "ana@example.com",
				User:       "recepcion",
				Comments:   "late arrival",
			},
		},
		{
			name: "a broken field does not affect the others",
			blob: "Llegada: mañana<br>Salida: 2026-01-12<br>Teléfono: <br>",
			expect: ReservationSummary{
				CheckOut: "2026-01-12",
			},
		},
		{
			name:   "empty",
			blob:   "",
			expect: ReservationSummary{},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			diff := cmp.Diff(test.expect, ParseTooltip(test.blob))
			require.Empty(t, diff)
		})
	}
}

func reservationDiv(id, status, title, name string) string {
	return fmt.Sprintf(
		`<div class="calendar_item" resid="%s" status="%s" data-title="%s"><div class="calendar_booking_nam">%s</div><div class="calendar_booking_info">Booking.com</div></div>`,
		id, status, title, name,
	)
}

func classifiedFixture() fixture {
	return fixture{
		months: []fixtureMonth{{title: "Enero 2026", days: days(10, 12)}},
		dayIDs: 3,
		categories: []fixtureCategory{
			{id: "1", name: "Doble", rooms: []fixtureRoom{{id: "11", number: "101"}, {id: "12", number: "102"}}},
			// a room the legend does not know about
			{id: "2", name: "Suite", rooms: []fixtureRoom{{id: "21", number: "201"}}, legend: []string{}},
		},
		cells: map[string]fixtureCell{
			"11/" + dayID(0): {inner: reservationDiv("22796", "1", exampleTooltip, "R:22796, JOHN DOE,")},
			"11/" + dayID(1): {
				class: "bg_padlock",
				inner: reservationDiv("22796", "1", exampleTooltip, "R:22796, JOHN DOE,"),
			},
			"12/" + dayID(1): {class: "bg_padlock"},
			"21/" + dayID(2): {inner: reservationDiv("30001", "2", "", "R:30001, MARIA LOPEZ,")},
		},
		availability: map[string]int{"1/" + dayID(0): 1},
	}
}

func TestClassifyCells(t *testing.T) {
	doc := classifiedFixture().doc(t)
	dates := BuildDateMapping(doc, telemetry.NoopAPI{})
	rooms := ResolveRooms(doc, telemetry.NoopAPI{})

	cells := ClassifyCells(doc, dates, rooms, telemetry.NoopAPI{})

	// 3 rooms x 3 days, the category summary rows are excluded
	require.Len(t, cells, 9)
	for _, c := range cells {
		require.NotEqual(t, "0", c.RoomID)
		require.NotEmpty(t, c.DayID)
		if c.Reservation != nil {
			require.Equal(t, StatusOccupied, c.Status)
		}
	}

	byKey := map[string]Cell{}
	for _, c := range cells {
		byKey[c.RoomID+"/"+c.DayID] = c
	}

	one := 1
	john := &ReservationSummary{
		ID:        "22796",
		Status:    ReservationBooked,
		GuestName: "JOHN DOE",
		Source:    "Booking.com",
		CheckIn:   "2026-01-10",
		CheckOut:  "2026-01-12",
		Balance:   "-45.50",
	}
	diff := cmp.Diff(Cell{
		RoomID:       "11",
		RoomNumber:   "101",
		CategoryID:   "1",
		CategoryName: "Doble",
		DayID:        dayID(0),
		Date:         "2026-01-10",
		Status:       StatusOccupied,
		Availability: &one,
		Reservation:  john,
	}, byKey["11/"+dayID(0)])
	require.Empty(t, diff)

	// reservation presence wins over the padlock marker
	require.Equal(t, StatusOccupied, byKey["11/"+dayID(1)].Status)
	require.Equal(t, StatusLocked, byKey["12/"+dayID(1)].Status)
	require.Equal(t, StatusAvailable, byKey["12/"+dayID(0)].Status)

	maria := byKey["21/"+dayID(2)]
	require.Equal(t, "Unknown_21", maria.RoomNumber)
	require.Equal(t, "2", maria.CategoryID)
	require.Equal(t, "Suite", maria.CategoryName)
	require.Equal(t, "2026-01-12", maria.Date)
	require.Equal(t, "MARIA LOPEZ", maria.Reservation.GuestName)
	require.Equal(t, "Booking.com", maria.Reservation.Source)
	require.Equal(t, ReservationCheckedIn, maria.Reservation.Status)

	require.Equal(t, []string{"22796", "30001"}, ReservationIDs(cells))
	require.Len(t, Occupied(cells), 3)

	balance, ok := john.BalanceAmount()
	require.True(t, ok)
	require.Equal(t, -45.5, balance)
}

func TestClassifyCellsIsIdempotent(t *testing.T) {
	doc := classifiedFixture().doc(t)
	dates := BuildDateMapping(doc, telemetry.NoopAPI{})
	rooms := ResolveRooms(doc, telemetry.NoopAPI{})

	first := ClassifyCells(doc, dates, rooms, telemetry.NoopAPI{})
	second := ClassifyCells(doc, dates, rooms, telemetry.NoopAPI{})
	require.Empty(t, cmp.Diff(first, second))
}

func TestClassifyCellsSkipsUnaddressableCells(t *testing.T) {
	doc, err := htmlutil.Parse(`<table id="desk"><tbody class="calendar_tbody"><tr>
		<td class="calendar_td" day_id="1001" room_id="0"><div resid="1"></div></td>
		<td class="calendar_td" day_id="" room_id="11"><div resid="2"></div></td>
		<td class="calendar_td" day_id="1001" room_id="11"><div resid="">empty</div></td>
	</tr></tbody></table>`)
	require.NoError(t, err)

	cells := ClassifyCells(doc, DateMapping{}, RoomLookup{}, telemetry.NoopAPI{})
	require.Len(t, cells, 1)
	require.Equal(t, StatusAvailable, cells[0].Status)
	require.Equal(t, "unknown_date_1001", cells[0].Date)
	require.Equal(t, "Unknown_11", cells[0].RoomNumber)
}

func TestParse(t *testing.T) {
	at := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	cal, err := Parse(classifiedFixture().html(), chrono.Fixed{At: at}, telemetry.NoopAPI{})
	require.NoError(t, err)

	require.Equal(t, at, cal.ExtractedAt)
	require.Equal(t, DateRange{StartDate: "2026-01-10", EndDate: "2026-01-12", TotalDays: 3}, cal.Range)
	require.Len(t, cal.Categories, 2)
	require.Len(t, cal.Cells, 9)
	require.Equal(t, []string{"22796", "30001"}, cal.ReservationIDs())
}

func TestParseRejectsForeignDocument(t *testing.T) {
	_, err := Parse(`<html><body><form id="login"></form></body></html>`, chrono.Fixed{}, telemetry.NoopAPI{})
	require.ErrorIs(t, err, errs.ErrParsing)
}

func TestVisibleReservationIDs(t *testing.T) {
	ids, err := VisibleReservationIDs(`<div resid="5"></div><div><div resid="7"></div></div><div resid="5"></div><div resid=" "></div>`)
	require.NoError(t, err)
	require.Equal(t, []string{"5", "7"}, ids)
}

func TestReservationStatusFromWord(t *testing.T) {
	require.Equal(t, ReservationBooked, ReservationStatusFromWord("Reserva"))
	require.Equal(t, ReservationCheckedIn, ReservationStatusFromWord("ALOJAMIENTO"))
	require.Equal(t, ReservationCheckedOut, ReservationStatusFromWord("Salida:"))
	require.Equal(t, ReservationUnknown, ReservationStatusFromWord("Cancelada"))
}
