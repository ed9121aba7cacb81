// Package export writes calendars and reservation details to files in the
// output directory.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/folio"
)

const timestampLayout = "20060102_150405"

var cellHeader = []string{
	"date", "room_id", "room_number", "category_id", "category_name",
	"status", "availability", "day_id", "reservation_id", "guest_name",
}

type Exporter struct {
	dir string
}

func New(dir string) Exporter {
	assert.NotEmptyStr(dir)
	return Exporter{dir: dir}
}

func (e Exporter) path(name string) (string, error) {
	err := os.MkdirAll(e.dir, 0777)
	if err != nil {
		return "", fmt.Errorf("export: create %s: %w", e.dir, err)
	}
	return filepath.Join(e.dir, name), nil
}

func writeJSON(path string, value any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	err = enc.Encode(value)
	if err != nil {
		return fmt.Errorf("export: encode %s: %w", path, err)
	}
	return f.Close()
}

type calendarMetadata struct {
	ExtractedAt     time.Time          `json:"extracted_at"`
	DateRange       calendar.DateRange `json:"date_range"`
	TotalCategories int                `json:"total_categories"`
	TotalCells      int                `json:"total_cells"`
	Occupied        int                `json:"occupied"`
}

type calendarFile struct {
	Metadata   calendarMetadata        `json:"metadata"`
	Categories []calendar.RoomCategory `json:"categories"`
	Cells      []calendar.Cell         `json:"cells"`
}

// CalendarJSON writes otelms_calendar_<timestamp>.json and returns its path.
func (e Exporter) CalendarJSON(cal calendar.Calendar) (string, error) {
	path, err := e.path(fmt.Sprintf("otelms_calendar_%s.json", cal.ExtractedAt.Format(timestampLayout)))
	if err != nil {
		return "", err
	}
	err = writeJSON(path, calendarFile{
		Metadata: calendarMetadata{
			ExtractedAt:     cal.ExtractedAt,
			DateRange:       cal.Range,
			TotalCategories: len(cal.Categories),
			TotalCells:      len(cal.Cells),
			Occupied:        len(cal.Occupied()),
		},
		Categories: cal.Categories,
		Cells:      cal.Cells,
	})
	return path, err
}

func cellRow(cell calendar.Cell) []string {
	availability := ""
	if cell.Availability != nil {
		availability = strconv.Itoa(*cell.Availability)
	}
	reservation, guest := "", ""
	if cell.Reservation != nil {
		reservation = cell.Reservation.ID
		guest = cell.Reservation.GuestName
	}
	return []string{
		cell.Date, cell.RoomID, cell.RoomNumber, cell.CategoryID, cell.CategoryName,
		string(cell.Status), availability, cell.DayID, reservation, guest,
	}
}

// CalendarCSV writes one row per cell to otelms_calendar_<timestamp>.csv.
func (e Exporter) CalendarCSV(cal calendar.Calendar) (string, error) {
	path, err := e.path(fmt.Sprintf("otelms_calendar_%s.csv", cal.ExtractedAt.Format(timestampLayout)))
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	err = w.Write(cellHeader)
	if err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	for _, cell := range cal.Cells {
		err = w.Write(cellRow(cell))
		if err != nil {
			return "", fmt.Errorf("export: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, f.Close()
}

// Reservation writes otelms_reservation_<id>.json, replacing an earlier
// export of the same reservation.
func (e Exporter) Reservation(detail folio.Detail) (string, error) {
	if detail.ReservationID == "" {
		return "", fmt.Errorf("export: reservation without id")
	}
	path, err := e.path(fmt.Sprintf("otelms_reservation_%s.json", detail.ReservationID))
	if err != nil {
		return "", err
	}
	return path, writeJSON(path, detail)
}
