package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/folio"

	"github.com/stretchr/testify/require"
)

func testCalendar() calendar.Calendar {
	three := 3
	return calendar.Calendar{
		Categories: []calendar.RoomCategory{{ID: "1", Name: "Doble"}},
		Cells: []calendar.Cell{
			{
				RoomID: "11", RoomNumber: "101", CategoryID: "1", CategoryName: "Doble",
				DayID: "501", Date: "2026-01-10", Status: calendar.StatusOccupied,
				Reservation: &calendar.ReservationSummary{ID: "22796", GuestName: "Pérez, Ana"},
			},
			{
				RoomID: "11", RoomNumber: "101", CategoryID: "1", CategoryName: "Doble",
				DayID: "502", Date: "2026-01-11", Status: calendar.StatusAvailable,
				Availability: &three,
			},
		},
		Range:       calendar.DateRange{StartDate: "2026-01-10", EndDate: "2026-01-11", TotalDays: 2},
		ExtractedAt: time.Date(2026, 1, 10, 9, 5, 30, 0, time.UTC),
	}
}

func TestCalendarCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := New(dir).CalendarCSV(testCalendar())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "otelms_calendar_20260110_090530.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Equal(t, [][]string{
		cellHeader,
		{"2026-01-10", "11", "101", "1", "Doble", "occupied", "", "501", "22796", "Pérez, Ana"},
		{"2026-01-11", "11", "101", "1", "Doble", "available", "3", "502", "", ""},
	}, rows)
}

func TestCalendarJSON(t *testing.T) {
	path, err := New(t.TempDir()).CalendarJSON(testCalendar())
	require.NoError(t, err)
	require.Equal(t, "otelms_calendar_20260110_090530.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file struct {
		Metadata struct {
			TotalCategories int `json:"total_categories"`
			TotalCells      int `json:"total_cells"`
			Occupied        int `json:"occupied"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &file))
	require.Equal(t, 1, file.Metadata.TotalCategories)
	require.Equal(t, 2, file.Metadata.TotalCells)
	require.Equal(t, 1, file.Metadata.Occupied)
}

func TestReservation(t *testing.T) {
	exporter := New(t.TempDir())

	detail := folio.Assemble("22796", folio.Documents{}, telemetry.NoopAPI{})
	path, err := exporter.Reservation(detail)
	require.NoError(t, err)
	require.Equal(t, "otelms_reservation_22796.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got folio.Detail
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "22796", got.ReservationID)
	require.NotNil(t, got.Services)

	_, err = exporter.Reservation(folio.Detail{})
	require.Error(t, err)
}
