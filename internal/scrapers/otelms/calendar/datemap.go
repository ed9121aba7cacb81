package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/pkg/htmlutil"
	"otelms-backend/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_datemap_month_title = "datemap.month-title"
	report_datemap_day         = "datemap.day"
	report_datemap_mismatch    = "datemap.mismatch"
	report_datemap_duplicate   = "datemap.duplicate-day-id"
)

const unknownRange = "Unknown"

// keys are normalized with textutil.NormalizeLabel
var monthNames = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,

	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TotalDays int    `json:"total_days"`
}

// DateMapping resolves the opaque day_id of a grid column to an ISO date.
// It is built once per document and never modified afterwards.
type DateMapping struct {
	byDayID map[string]string

	// Unpaired counts day headers that found no day_id left to pair with.
	Unpaired int
	// Unused counts day_ids that no day header consumed.
	Unused int
}

func (m DateMapping) Lookup(dayID string) (string, bool) {
	date, ok := m.byDayID[dayID]
	return date, ok
}

// Date is the ISO date of dayID or the sentinel "unknown_date_<day_id>".
func (m DateMapping) Date(dayID string) string {
	if date, ok := m.byDayID[dayID]; ok {
		return date
	}
	return "unknown_date_" + dayID
}

func (m DateMapping) Len() int {
	return len(m.byDayID)
}

func (m DateMapping) Range() DateRange {
	if len(m.byDayID) == 0 {
		return DateRange{StartDate: unknownRange, EndDate: unknownRange}
	}
	dates := make([]string, 0, len(m.byDayID))
	for _, d := range m.byDayID {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return DateRange{
		StartDate: dates[0],
		EndDate:   dates[len(dates)-1],
		TotalDays: len(dates),
	}
}

// parseMonthTitle reads titles like "Enero 2026", splitting at the last space.
func parseMonthTitle(title string) (time.Month, int, bool) {
	title = htmlutil.Clean(title)
	idx := strings.LastIndex(title, " ")
	if idx < 0 {
		return 0, 0, false
	}
	month, ok := monthNames[textutil.NormalizeLabel(title[:idx])]
	if !ok {
		return 0, 0, false
	}
	year, err := strconv.Atoi(title[idx+1:])
	if err != nil || year <= 0 {
		return 0, 0, false
	}
	return month, year, true
}

func isoDate(year int, month time.Month, day int) (string, bool) {
	if day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflowing days into the next month
	if t.Month() != month {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

// dayIDs are the day_id attributes of the first data row, in column order.
func dayIDs(doc *goquery.Document) []string {
	row := doc.Find("tbody.calendar_tbody:not(.my_category) tr").First()
	ids := []string{}
	row.Find("td[day_id]").Each(func(_ int, td *goquery.Selection) {
		id, _ := td.Attr("day_id")
		ids = append(ids, strings.TrimSpace(id))
	})
	return ids
}

// BuildDateMapping pairs the Nth day header of the month blocks (in
// document order, across all blocks) with the Nth day_id of the grid's
// first data row. A month block with an unreadable title contributes no
// days at all so it cannot shift the months after it, while an unreadable
// or impossible day keeps its position and stays unmapped.
func BuildDateMapping(doc *goquery.Document, tel telemetry.API) DateMapping {
	ids := dayIDs(doc)
	mapping := DateMapping{byDayID: map[string]string{}}
	index := 0

	doc.Find(".calendar_month").Each(func(_ int, block *goquery.Selection) {
		title := htmlutil.Text(block.Find(".calendar_month_title").First())
		month, year, ok := parseMonthTitle(title)
		if !ok {
			tel.ReportWarning(report_datemap_month_title, "unreadable month title, skipping block", title)
			return
		}

		block.Find(".calendar_dates").Each(func(_ int, cell *goquery.Selection) {
			dayText := htmlutil.Text(cell.Find(".calendar_date").First())
			date, ok := "", false
			day, err := strconv.Atoi(dayText)
			if err != nil {
				tel.ReportWarning(report_datemap_day, "unreadable day", dayText, title)
			} else if date, ok = isoDate(year, month, day); !ok {
				tel.ReportWarning(report_datemap_day, "day out of range", day, title)
			}

			// the header still occupies a grid column, its day_id is left
			// unmapped so it resolves to the unknown date sentinel
			if index >= len(ids) {
				mapping.Unpaired++
				index++
				return
			}
			dayID := ids[index]
			index++
			if dayID == "" || !ok {
				return
			}
			if existing, ok := mapping.byDayID[dayID]; ok {
				tel.ReportWarning(report_datemap_duplicate, dayID, existing, date)
				return
			}
			mapping.byDayID[dayID] = date
		})
	})

	if index < len(ids) {
		mapping.Unused = len(ids) - index
	}
	if mapping.Unpaired > 0 || mapping.Unused > 0 {
		tel.ReportWarning(
			report_datemap_mismatch,
			fmt.Sprintf("%d day headers vs %d day ids", index, len(ids)),
			fmt.Sprintf("unpaired: %d", mapping.Unpaired),
			fmt.Sprintf("unused: %d", mapping.Unused),
		)
	}
	tel.ReportCount(report_datemap_day, int64(len(mapping.byDayID)))
	return mapping
}
